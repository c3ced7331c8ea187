package crclient

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// 各数据类的新鲜度窗口，与服务端轮询节奏一致
const (
	ListTTL   = 5 * time.Second
	DetailTTL = 5 * time.Second
	UnreadTTL = 60 * time.Second
)

// Key 语义化缓存键
type Key string

// 键构造器，层级前缀用于按范围失效
func KeyRequestList(query string) Key {
	return Key("requests/list/" + query)
}

func KeyRequestDetail(id string) Key {
	return Key("requests/detail/" + id)
}

func KeyNotificationPage(userID string, page int) Key {
	return Key(fmt.Sprintf("notifications/list/%s/%d", userID, page))
}

func KeyUnreadCount(userID string) Key {
	return Key("notifications/unread/" + userID)
}

func KeyDashboard(userID string) Key {
	return Key("dashboard/" + userID)
}

// 范围前缀
const (
	PrefixRequests      = "requests/"
	PrefixNotifications = "notifications/"
	PrefixDashboard     = "dashboard/"
)

type cacheEntry struct {
	data      []byte
	fetchedAt time.Time
}

// Cache 语义键查询缓存。值以 JSON 形式保存，读取即深拷贝，
// 快照/恢复直接复用序列化字节。
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]cacheEntry
}

// NewCache 创建缓存
func NewCache() *Cache {
	return &Cache{entries: make(map[Key]cacheEntry)}
}

// Load 读取未过期的缓存值，命中返回 true
func (c *Cache) Load(key Key, ttl time.Duration, dest interface{}) bool {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	if ttl > 0 && time.Since(entry.fetchedAt) > ttl {
		return false
	}
	if dest == nil {
		return true
	}
	return json.Unmarshal(entry.data, dest) == nil
}

// Store 写入缓存
func (c *Cache) Store(key Key, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{data: data, fetchedAt: time.Now()}
	c.mu.Unlock()
}

// Snapshot 取某键的原始字节快照，供乐观更新回滚
func (c *Cache) Snapshot(key Key) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(entry.data))
	copy(cp, entry.data)
	return cp, true
}

// Restore 用快照恢复某键
func (c *Cache) Restore(key Key, data []byte) {
	if data == nil {
		c.Invalidate(key)
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{data: data, fetchedAt: time.Now()}
	c.mu.Unlock()
}

// Invalidate 失效单键
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidatePrefix 按前缀失效一个范围
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(string(key), prefix) {
			delete(c.entries, key)
		}
	}
}

// Mutate 读改写某键的缓存值（乐观补丁用）
func Mutate[T any](c *Cache, key Key, apply func(*T)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	var value T
	if err := json.Unmarshal(entry.data, &value); err != nil {
		return false
	}
	apply(&value)
	data, err := json.Marshal(value)
	if err != nil {
		return false
	}
	c.entries[key] = cacheEntry{data: data, fetchedAt: entry.fetchedAt}
	return true
}
