package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/sagara-io/crflow/internal/cr/entity"
	"github.com/sagara-io/crflow/internal/cr/repository"
	"github.com/sagara-io/crflow/internal/cr/sse"
	"github.com/sagara-io/crflow/internal/cr/testutil"
)

func setupNotificationTest(t *testing.T) (*NotificationService, *entity.User) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewNotificationService(repos.Notification, repos.User, nil, sse.NewHub(), zap.NewNop())
	user := testutil.SeedUser(t, db, "Recipient", entity.RoleUser, "finance")
	return svc, user
}

func TestNotifyAndUnreadCount(t *testing.T) {
	svc, user := setupNotificationTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.Notify(ctx, user.ID, entity.NotifyTypeSubmitted, "title", "message", "req-1"); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}

	count, err := svc.UnreadCount(ctx, user.ID)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 3 {
		t.Fatalf("unread = %d, want 3", count)
	}

	result, err := svc.List(ctx, user.ID, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Total != 3 || len(result.Items) != 3 {
		t.Fatalf("list total = %d items = %d", result.Total, len(result.Items))
	}
}

func TestMarkReadFlow(t *testing.T) {
	svc, user := setupNotificationTest(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.Notify(ctx, user.ID, entity.NotifyTypeApproved, "title", "message", "req-1"); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}

	result, err := svc.List(ctx, user.ID, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if err := svc.MarkRead(ctx, result.Items[0].ID, user.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	count, _ := svc.UnreadCount(ctx, user.ID)
	if count != 1 {
		t.Fatalf("unread after single read = %d, want 1", count)
	}

	// 标记他人的通知应报不存在
	if err := svc.MarkRead(ctx, result.Items[1].ID, "someone-else"); err == nil {
		t.Fatal("expected error marking another user's notification")
	}

	if err := svc.MarkAllRead(ctx, user.ID); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	count, _ = svc.UnreadCount(ctx, user.ID)
	if count != 0 {
		t.Fatalf("unread after mark all = %d, want 0", count)
	}
}

func TestNotificationPagination(t *testing.T) {
	svc, user := setupNotificationTest(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if err := svc.Notify(ctx, user.ID, entity.NotifyTypeSubmitted, "title", "message", "req-1"); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}

	page1, err := svc.List(ctx, user.ID, 1, 10)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1.Items) != 10 || page1.TotalPages != 2 {
		t.Fatalf("page1 items = %d totalPages = %d", len(page1.Items), page1.TotalPages)
	}

	page2, err := svc.List(ctx, user.ID, 2, 10)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2.Items) != 2 {
		t.Fatalf("page2 items = %d, want 2", len(page2.Items))
	}
}
