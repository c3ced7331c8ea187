// Package sse 基于 Server-Sent Events 的单向推送通道，用于通知实时下发。
package sse

import (
	"log"
	"sync"
)

// Event 推送事件
type Event struct {
	EventType string      `json:"event_type"`
	Data      interface{} `json:"data"`
}

// 事件类型
const (
	EventNotification  = "notification"
	EventStatusChanged = "request_status_changed"
)

// Client SSE 客户端连接
type Client struct {
	ID     string
	UserID string
	Events chan Event
}

// Hub 连接管理中心
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub 创建Hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// GlobalHub 全局单例
var GlobalHub = NewHub()

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	log.Printf("[SSE] client registered: %s (user=%s), total=%d", client.ID, client.UserID, len(h.clients))
}

// Unregister 注销客户端
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		log.Printf("[SSE] client unregistered: %s, total=%d", clientID, len(h.clients))
	}
}

// SendToUser 向某用户的全部连接发送事件，通道满则丢弃
func (h *Hub) SendToUser(userID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.UserID != userID {
			continue
		}
		select {
		case client.Events <- event:
		default:
			// 客户端消费过慢，丢弃本条
		}
	}
}

// Broadcast 广播事件
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- event:
		default:
		}
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishNotification 推送新通知
func (h *Hub) PublishNotification(userID string, payload interface{}) {
	h.SendToUser(userID, Event{EventType: EventNotification, Data: payload})
}

// PublishStatusChange 推送请求状态变化
func (h *Hub) PublishStatusChange(userID string, payload interface{}) {
	h.SendToUser(userID, Event{EventType: EventStatusChanged, Data: payload})
}
