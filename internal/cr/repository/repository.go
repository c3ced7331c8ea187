package repository

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// Repositories 仓库聚合
type Repositories struct {
	User         *UserRepository
	Request      *RequestRepository
	Notification *NotificationRepository
	Document     *DocumentRepository
}

// NewRepositories 创建全部仓库
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Request:      NewRequestRepository(db),
		Notification: NewNotificationRepository(db),
		Document:     NewDocumentRepository(db),
	}
}
