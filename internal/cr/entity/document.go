package entity

import (
	"time"
)

// Document 请求附件文档
type Document struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	RequestID  string    `json:"requestId" gorm:"size:32;not null;index"`
	FileName   string    `json:"fileName" gorm:"size:256;not null"`
	FileType   string    `json:"fileType" gorm:"size:32;not null;default:USER_ATTACHMENT"`
	ObjectPath string    `json:"-" gorm:"size:512;not null"`
	FileSize   int64     `json:"fileSize"`
	MimeType   string    `json:"mimeType" gorm:"size:128"`
	UploadedBy string    `json:"uploadedBy" gorm:"size:32;not null"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (Document) TableName() string {
	return "documents"
}

// 文档类型常量，PDF_FORM 和 PDF_APPROVAL 由系统生成，禁止删除
const (
	DocTypeUserAttachment = "USER_ATTACHMENT"
	DocTypePDFForm        = "PDF_FORM"
	DocTypePDFApproval    = "PDF_APPROVAL"
)

// IsSystemDocument 是否为系统生成文档
func IsSystemDocument(fileType string) bool {
	return fileType == DocTypePDFForm || fileType == DocTypePDFApproval
}
