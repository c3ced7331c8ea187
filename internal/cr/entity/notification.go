package entity

import (
	"time"
)

// Notification 站内通知
type Notification struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	UserID    string    `json:"userId" gorm:"size:32;not null;index"`
	Type      string    `json:"type" gorm:"size:32;not null"`
	Title     string    `json:"title" gorm:"size:256;not null"`
	Message   string    `json:"message" gorm:"type:text"`
	RequestID string    `json:"requestId" gorm:"size:32;index"`
	Read      bool      `json:"read" gorm:"not null;default:false;index"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Notification) TableName() string {
	return "notifications"
}

// 通知类型常量
const (
	NotifyTypeSubmitted         = "REQUEST_SUBMITTED"
	NotifyTypeApproved          = "REQUEST_APPROVED"
	NotifyTypeRejected          = "REQUEST_REJECTED"
	NotifyTypeRevisionRequested = "REVISION_REQUESTED"
	NotifyTypeAssigned          = "REQUEST_ASSIGNED"
	NotifyTypeCompleted         = "REQUEST_COMPLETED"
)
