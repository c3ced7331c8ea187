package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sagara-io/crflow/internal/cr/entity"
	"github.com/sagara-io/crflow/internal/cr/repository"
	"github.com/sagara-io/crflow/internal/cr/sse"
)

// 未读数缓存，写操作即失效
const (
	unreadCacheKeyFmt = "crflow:notifications:unread:%s"
	unreadCacheTTL    = 60 * time.Second
)

// NotificationService 通知服务
type NotificationService struct {
	repo     *repository.NotificationRepository
	userRepo *repository.UserRepository
	rdb      *redis.Client
	hub      *sse.Hub
	logger   *zap.Logger
}

// NewNotificationService 创建通知服务
func NewNotificationService(repo *repository.NotificationRepository, userRepo *repository.UserRepository, rdb *redis.Client, hub *sse.Hub, logger *zap.Logger) *NotificationService {
	return &NotificationService{repo: repo, userRepo: userRepo, rdb: rdb, hub: hub, logger: logger}
}

// NotificationListResult 通知列表结果
type NotificationListResult struct {
	Items      []entity.Notification `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"pageSize"`
	TotalPages int                   `json:"totalPages"`
}

// List 分页查询通知
func (s *NotificationService) List(ctx context.Context, userID string, page, pageSize int) (*NotificationListResult, error) {
	items, total, err := s.repo.FindByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &NotificationListResult{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// UnreadCount 未读数，优先读 Redis 缓存
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	key := fmt.Sprintf(unreadCacheKeyFmt, userID)

	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, key).Result(); err == nil {
			if n, perr := strconv.ParseInt(cached, 10, 64); perr == nil {
				return n, nil
			}
		}
	}

	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}

	if s.rdb != nil {
		if err := s.rdb.Set(ctx, key, count, unreadCacheTTL).Err(); err != nil {
			s.logger.Warn("cache unread count", zap.Error(err))
		}
	}
	return count, nil
}

// MarkRead 标记单条已读
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		return err
	}
	s.invalidateUnread(ctx, userID)
	return nil
}

// MarkAllRead 标记全部已读
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.repo.MarkAllRead(ctx, userID); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	s.invalidateUnread(ctx, userID)
	return nil
}

// Notify 创建一条通知并通过 SSE 下发
func (s *NotificationService) Notify(ctx context.Context, userID, notifyType, title, message, requestID string) error {
	n := entity.Notification{
		ID:        uuid.New().String()[:32],
		UserID:    userID,
		Type:      notifyType,
		Title:     title,
		Message:   message,
		RequestID: requestID,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, &n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	s.invalidateUnread(ctx, userID)
	s.hub.PublishNotification(userID, n)
	return nil
}

// NotifyMany 向多个用户发送同一事件的通知
func (s *NotificationService) NotifyMany(ctx context.Context, userIDs []string, notifyType, title, message, requestID string) {
	now := time.Now()
	batch := make([]entity.Notification, 0, len(userIDs))
	for _, uid := range userIDs {
		batch = append(batch, entity.Notification{
			ID:        uuid.New().String()[:32],
			UserID:    uid,
			Type:      notifyType,
			Title:     title,
			Message:   message,
			RequestID: requestID,
			CreatedAt: now,
		})
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		s.logger.Error("create notification batch", zap.Error(err), zap.String("request_id", requestID))
		return
	}
	for _, n := range batch {
		s.invalidateUnread(ctx, n.UserID)
		s.hub.PublishNotification(n.UserID, n)
	}
}

func (s *NotificationService) invalidateUnread(ctx context.Context, userID string) {
	if s.rdb == nil {
		return
	}
	key := fmt.Sprintf(unreadCacheKeyFmt, userID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("invalidate unread cache", zap.Error(err))
	}
}
