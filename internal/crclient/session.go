package crclient

import (
	"sync"
	"time"

	"github.com/sagara-io/crflow/internal/cr/entity"
)

// SessionStore 持有当前会话的令牌与用户，读写加锁
type SessionStore struct {
	mu        sync.RWMutex
	token     string
	user      *entity.User
	expiresAt time.Time
}

// NewSessionStore 创建会话存储
func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

// Set 写入会话
func (s *SessionStore) Set(token string, user *entity.User, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = user
	s.expiresAt = expiresAt
}

// Token 当前令牌，已过期返回空
func (s *SessionStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.expiresAt.IsZero() && time.Now().After(s.expiresAt) {
		return ""
	}
	return s.token
}

// User 当前用户
func (s *SessionStore) User() *entity.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Valid 会话是否有效
func (s *SessionStore) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || s.user == nil {
		return false
	}
	return s.expiresAt.IsZero() || time.Now().Before(s.expiresAt)
}

// Invalidate 清空会话
func (s *SessionStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = nil
	s.expiresAt = time.Time{}
}
