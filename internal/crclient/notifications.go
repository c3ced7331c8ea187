package crclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sagara-io/crflow/internal/cr/entity"
)

// 通知分页固定为10条
const notificationPageSize = 10

// NotificationPage 通知列表页
type NotificationPage struct {
	Items      []entity.Notification `json:"items"`
	Pagination Pagination            `json:"pagination"`
}

type unreadPayload struct {
	UnreadCount int64 `json:"unreadCount"`
}

func (c *Client) userID() string {
	if u := c.session.User(); u != nil {
		return u.ID
	}
	return ""
}

// ListNotifications 分页拉取通知
func (c *Client) ListNotifications(ctx context.Context, page int) (*NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	path := fmt.Sprintf("/api/v1/notifications?page=%d&limit=%d", page, notificationPageSize)
	var result NotificationPage
	if err := c.get(ctx, KeyNotificationPage(c.userID(), page), ListTTL, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UnreadNotifications 未读数，60秒新鲜度窗口内复用缓存
func (c *Client) UnreadNotifications(ctx context.Context) (int64, error) {
	var payload unreadPayload
	if err := c.get(ctx, KeyUnreadCount(c.userID()), UnreadTTL, "/api/v1/notifications/unread-count", &payload); err != nil {
		return 0, err
	}
	return payload.UnreadCount, nil
}

// MarkNotificationRead 标记已读，乐观更新：先改本地缓存，失败回滚
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	uid := c.userID()
	listKey := KeyNotificationPage(uid, 1)
	unreadKey := KeyUnreadCount(uid)

	return NewOptimistic(c.cache).
		Patch(listKey, func(cache *Cache, key Key) bool {
			return Mutate(cache, key, func(page *NotificationPage) {
				for i := range page.Items {
					if page.Items[i].ID == id {
						page.Items[i].Read = true
					}
				}
			})
		}).
		Patch(unreadKey, func(cache *Cache, key Key) bool {
			return Mutate(cache, key, func(p *unreadPayload) {
				if p.UnreadCount > 0 {
					p.UnreadCount--
				}
			})
		}).
		InvalidateOnSettle(PrefixNotifications).
		Run(ctx, func(ctx context.Context) error {
			return c.doRequest(ctx, http.MethodPatch, "/api/v1/notifications/"+id+"/read", nil, nil)
		})
}

// MarkAllNotificationsRead 全部标记已读，乐观更新
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	uid := c.userID()
	listKey := KeyNotificationPage(uid, 1)
	unreadKey := KeyUnreadCount(uid)

	return NewOptimistic(c.cache).
		Patch(listKey, func(cache *Cache, key Key) bool {
			return Mutate(cache, key, func(page *NotificationPage) {
				for i := range page.Items {
					page.Items[i].Read = true
				}
			})
		}).
		Patch(unreadKey, func(cache *Cache, key Key) bool {
			return Mutate(cache, key, func(p *unreadPayload) {
				p.UnreadCount = 0
			})
		}).
		InvalidateOnSettle(PrefixNotifications).
		Run(ctx, func(ctx context.Context) error {
			return c.doRequest(ctx, http.MethodPatch, "/api/v1/notifications/read-all", nil, nil)
		})
}

// HandleIncomingNotification SSE 推送到达时的本地缓存维护：
// 插到第一页头部并递增未读数，不触发网络请求
func (c *Client) HandleIncomingNotification(n entity.Notification) {
	uid := c.userID()
	Mutate(c.cache, KeyNotificationPage(uid, 1), func(page *NotificationPage) {
		page.Items = append([]entity.Notification{n}, page.Items...)
		if len(page.Items) > notificationPageSize {
			page.Items = page.Items[:notificationPageSize]
		}
		page.Pagination.Total++
	})
	Mutate(c.cache, KeyUnreadCount(uid), func(p *unreadPayload) {
		p.UnreadCount++
	})
}
