package entity

import (
	"time"
)

// ChangeRequest 变更请求单
type ChangeRequest struct {
	ID                   string     `json:"id" gorm:"primaryKey;size:32"`
	Code                 string     `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Title                string     `json:"title" gorm:"size:256;not null"`
	Status               string     `json:"status" gorm:"size:48;not null;default:DRAFT;index"`
	TargetDate           *time.Time `json:"targetDate"`
	Requester1           string     `json:"requester1" gorm:"size:128"`
	Requester2           string     `json:"requester2" gorm:"size:128"`
	BusinessArea         string     `json:"businessArea" gorm:"size:128"`
	CategoryImpact       string     `json:"categoryImpact" gorm:"size:64"`
	ImpactDescription    string     `json:"impactDescription" gorm:"type:text"`
	Background           string     `json:"background" gorm:"type:text"`
	Objective            string     `json:"objective" gorm:"type:text"`
	ServiceExplanation   string     `json:"serviceExplanation" gorm:"type:text"`
	ServicesNeeded       JSONB      `json:"servicesNeeded" gorm:"type:jsonb"`
	CreatedBy            string     `json:"createdBy" gorm:"size:32;not null;index"`
	Division             string     `json:"division" gorm:"size:64;index"`
	CurrentApproverRole  string     `json:"currentApproverRole" gorm:"size:16"`
	RevisionCount        int        `json:"revisionCount" gorm:"not null;default:0"`
	ManagerRevisionCount int        `json:"managerRevisionCount" gorm:"not null;default:0"`
	VPRevisionCount      int        `json:"vpRevisionCount" gorm:"column:vp_revision_count;not null;default:0"`
	SubmittedAt          *time.Time `json:"submittedAt"`
	CompletedAt          *time.Time `json:"completedAt"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`

	// 关联
	Creator      *User                 `json:"creator,omitempty" gorm:"foreignKey:CreatedBy"`
	ApprovalLogs []ApprovalLog         `json:"approvalLogs,omitempty" gorm:"foreignKey:RequestID"`
	Assignments  []DeveloperAssignment `json:"developerAssignments,omitempty" gorm:"foreignKey:RequestID"`
	Documents    []Document            `json:"documents,omitempty" gorm:"foreignKey:RequestID"`
}

func (ChangeRequest) TableName() string {
	return "change_requests"
}

// ApprovalLog 审批日志（只追加，不修改）
type ApprovalLog struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	RequestID  string    `json:"requestId" gorm:"size:32;not null;index"`
	ApproverID string    `json:"approverId" gorm:"size:32;not null"`
	Action     string    `json:"action" gorm:"size:32;not null"`
	FromStatus string    `json:"fromStatus" gorm:"size:48"`
	ToStatus   string    `json:"toStatus" gorm:"size:48"`
	Notes      string    `json:"notes" gorm:"type:text"`
	CreatedAt  time.Time `json:"createdAt"`

	// 关联
	Approver *User `json:"approver,omitempty" gorm:"foreignKey:ApproverID"`
}

func (ApprovalLog) TableName() string {
	return "approval_logs"
}

// DeveloperAssignment 开发人员分派记录
type DeveloperAssignment struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	RequestID   string    `json:"requestId" gorm:"size:32;not null;index"`
	DeveloperID string    `json:"developerId" gorm:"size:32;not null;index"`
	AssignedBy  string    `json:"assignedBy" gorm:"size:32;not null"`
	Notes       string    `json:"notes" gorm:"type:text"`
	Active      bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"createdAt"`

	// 关联
	Developer *User `json:"developer,omitempty" gorm:"foreignKey:DeveloperID"`
}

func (DeveloperAssignment) TableName() string {
	return "developer_assignments"
}

// 请求状态常量（全大写为唯一规范词汇表）
const (
	StatusDraft             = "DRAFT"
	StatusPendingManager    = "PENDING_MANAGER"
	StatusPendingVP         = "PENDING_VP"
	StatusRevisionByManager = "REVISION_REQUESTED_BY_MANAGER"
	StatusRevisionByVP      = "REVISION_REQUESTED_BY_VP"
	StatusApproved          = "APPROVED"
	StatusRejected          = "REJECTED"
	StatusAssigned          = "ASSIGNED"
	StatusInProgress        = "IN_PROGRESS"
	StatusCompleted         = "COMPLETED"
)

// 审批日志动作常量
const (
	ActionSubmitted         = "SUBMITTED"
	ActionResubmitted       = "RESUBMITTED"
	ActionApproved          = "APPROVED"
	ActionRejected          = "REJECTED"
	ActionRevisionRequested = "REVISION_REQUESTED"
	ActionAssigned          = "ASSIGNED"
	ActionCompleted         = "COMPLETED"
)
