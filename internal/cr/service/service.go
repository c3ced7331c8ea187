package service

import (
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sagara-io/crflow/internal/config"
	"github.com/sagara-io/crflow/internal/cr/repository"
	"github.com/sagara-io/crflow/internal/cr/sse"
)

// Services 服务聚合
type Services struct {
	Auth         *AuthService
	Request      *RequestService
	Approval     *ApprovalService
	Notification *NotificationService
	Document     *DocumentService
	Dashboard    *DashboardService
}

// NewServices 创建全部服务
func NewServices(db *gorm.DB, repos *repository.Repositories, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) (*Services, error) {
	// 初始化MinIO客户端，未配置时文档功能降级
	var minioClient *minio.Client
	if cfg.MinIO.Endpoint != "" {
		var err error
		minioClient, err = minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, err
		}
	}

	hub := sse.GlobalHub

	notification := NewNotificationService(repos.Notification, repos.User, rdb, hub, logger)
	document := NewDocumentService(repos.Document, repos.Request, minioClient, cfg.MinIO.Bucket, logger)

	return &Services{
		Auth:         NewAuthService(repos.User, cfg.JWT, logger),
		Request:      NewRequestService(db, repos.Request, repos.User, notification, logger),
		Approval:     NewApprovalService(db, repos.Request, repos.User, repos.Document, notification, document, hub, logger),
		Notification: notification,
		Document:     document,
		Dashboard:    NewDashboardService(repos.Request, repos.User, logger),
	}, nil
}
