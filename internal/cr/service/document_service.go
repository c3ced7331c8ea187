package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"github.com/sagara-io/crflow/internal/cr/entity"
	"github.com/sagara-io/crflow/internal/cr/repository"
	"github.com/sagara-io/crflow/internal/cr/workflow"
)

// 下载链接有效期
const downloadURLExpiry = 15 * time.Minute

// DocumentService 文档服务
type DocumentService struct {
	docRepo     *repository.DocumentRepository
	requestRepo *repository.RequestRepository
	minioClient *minio.Client
	bucketName  string
	logger      *zap.Logger
}

// NewDocumentService 创建文档服务
func NewDocumentService(docRepo *repository.DocumentRepository, requestRepo *repository.RequestRepository, minioClient *minio.Client, bucketName string, logger *zap.Logger) *DocumentService {
	return &DocumentService{
		docRepo:     docRepo,
		requestRepo: requestRepo,
		minioClient: minioClient,
		bucketName:  bucketName,
		logger:      logger,
	}
}

// DownloadResult 下载链接
type DownloadResult struct {
	DownloadURL string    `json:"downloadUrl"`
	FileName    string    `json:"fileName"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Upload 上传用户附件，仅所有者在可编辑状态下
func (s *DocumentService) Upload(ctx context.Context, user *entity.User, requestID string, reader io.Reader, fileName string, fileSize int64, contentType string) (*entity.Document, error) {
	req, err := s.requestRepo.FindLite(ctx, requestID)
	if err != nil {
		return nil, err
	}

	perms := workflow.Evaluate(user, req, false)
	if !perms.CanUploadDocuments {
		return nil, ErrForbidden
	}

	objectName := fmt.Sprintf("requests/%s/%s/%s%s",
		req.ID, time.Now().Format("2006/01/02"), uuid.New().String()[:8], filepath.Ext(fileName))

	if s.minioClient != nil {
		_, err = s.minioClient.PutObject(ctx, s.bucketName, objectName, reader, fileSize, minio.PutObjectOptions{
			ContentType: contentType,
		})
		if err != nil {
			return nil, fmt.Errorf("upload file: %w", err)
		}
	}

	doc := &entity.Document{
		ID:         uuid.New().String()[:32],
		RequestID:  req.ID,
		FileName:   fileName,
		FileType:   entity.DocTypeUserAttachment,
		ObjectPath: objectName,
		FileSize:   fileSize,
		MimeType:   contentType,
		UploadedBy: user.ID,
		CreatedAt:  time.Now(),
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	s.logger.Info("document uploaded",
		zap.String("document_id", doc.ID),
		zap.String("request_id", req.ID),
		zap.Int64("size", fileSize))
	return doc, nil
}

// StoreGenerated 归档系统生成的 PDF 文档
func (s *DocumentService) StoreGenerated(ctx context.Context, req *entity.ChangeRequest, fileType, fileName string, buf *bytes.Buffer) error {
	objectName := fmt.Sprintf("requests/%s/generated/%s", req.ID, fileName)

	if s.minioClient != nil {
		_, err := s.minioClient.PutObject(ctx, s.bucketName, objectName, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{
			ContentType: "application/pdf",
		})
		if err != nil {
			return fmt.Errorf("store generated pdf: %w", err)
		}
	}

	doc := &entity.Document{
		ID:         uuid.New().String()[:32],
		RequestID:  req.ID,
		FileName:   fileName,
		FileType:   fileType,
		ObjectPath: objectName,
		FileSize:   int64(buf.Len()),
		MimeType:   "application/pdf",
		UploadedBy: req.CreatedBy,
		CreatedAt:  time.Now(),
	}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		return fmt.Errorf("create generated document: %w", err)
	}
	return nil
}

// Download 签发限时下载链接
func (s *DocumentService) Download(ctx context.Context, user *entity.User, documentID string) (*DownloadResult, error) {
	doc, err := s.docRepo.FindByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	req, err := s.requestRepo.FindLite(ctx, doc.RequestID)
	if err != nil {
		return nil, err
	}
	assigned, _ := s.requestRepo.IsAssigned(ctx, req.ID, user.ID)
	if !workflow.CanView(user, req, assigned) {
		return nil, ErrForbidden
	}

	if s.minioClient == nil {
		return nil, fmt.Errorf("storage not configured")
	}

	reqParams := make(url.Values)
	reqParams.Set("response-content-disposition", fmt.Sprintf(`attachment; filename="%s"`, doc.FileName))
	presigned, err := s.minioClient.PresignedGetObject(ctx, s.bucketName, doc.ObjectPath, downloadURLExpiry, reqParams)
	if err != nil {
		return nil, fmt.Errorf("presign download: %w", err)
	}

	return &DownloadResult{
		DownloadURL: presigned.String(),
		FileName:    doc.FileName,
		ExpiresAt:   time.Now().Add(downloadURLExpiry),
	}, nil
}

// Delete 删除用户附件，系统生成文档不可删
func (s *DocumentService) Delete(ctx context.Context, user *entity.User, documentID string) error {
	doc, err := s.docRepo.FindByID(ctx, documentID)
	if err != nil {
		return err
	}

	req, err := s.requestRepo.FindLite(ctx, doc.RequestID)
	if err != nil {
		return err
	}
	if !workflow.CanDeleteDocument(user, req, doc) {
		return ErrForbidden
	}

	if s.minioClient != nil {
		if err := s.minioClient.RemoveObject(ctx, s.bucketName, doc.ObjectPath, minio.RemoveObjectOptions{}); err != nil {
			s.logger.Warn("remove object from storage", zap.Error(err), zap.String("object", doc.ObjectPath))
		}
	}

	if err := s.docRepo.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.logger.Info("document deleted", zap.String("document_id", documentID), zap.String("user_id", user.ID))
	return nil
}

// ListByRequest 请求下的文档列表
func (s *DocumentService) ListByRequest(ctx context.Context, user *entity.User, requestID string) ([]entity.Document, error) {
	req, err := s.requestRepo.FindLite(ctx, requestID)
	if err != nil {
		return nil, err
	}
	assigned, _ := s.requestRepo.IsAssigned(ctx, req.ID, user.ID)
	if !workflow.CanView(user, req, assigned) {
		return nil, ErrForbidden
	}
	return s.docRepo.ListByRequest(ctx, requestID)
}
