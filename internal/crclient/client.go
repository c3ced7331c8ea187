// Package crclient 审批平台的类型化 API 客户端。
// 提供语义键查询缓存、乐观更新原语、提交生命周期编排与通知订阅。
package crclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// 读请求重试策略：仅对网络错误与 5xx 重试，最多3次
const (
	maxGetRetries = 3
	retryBaseWait = 200 * time.Millisecond
)

// APIError 服务端业务错误
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error [%d]: %s", e.Code, e.Message)
}

// HTTPStatus 业务码推导的HTTP状态
func (e *APIError) HTTPStatus() int {
	return e.Code / 100
}

// ErrSessionExpired 会话失效（任意 401 触发，统一在传输层判定）
var ErrSessionExpired = errors.New("session expired")

// Client API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *SessionStore
	cache      *Cache
}

// New 创建客户端实例
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		session: NewSessionStore(),
		cache:   NewCache(),
	}
}

// Session 会话存储
func (c *Client) Session() *SessionStore {
	return c.session
}

// Cache 查询缓存
func (c *Client) Cache() *Cache {
	return c.cache
}

// envelope 服务端统一响应结构
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// doRequest 执行一次API请求并解码统一信封。
// GET 在网络错误与 5xx 时退避重试；写操作从不重试；4xx 从不重试。
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts = maxGetRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBaseWait << (attempt - 1)):
			}
		}

		retryable, err := c.doOnce(ctx, method, path, bodyBytes, result)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return lastErr
}

// doOnce 单次请求，返回 (是否可重试, 错误)
func (c *Client) doOnce(ctx context.Context, method, path string, bodyBytes []byte, result interface{}) (bool, error) {
	var bodyReader io.Reader
	if bodyBytes != nil {
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// 网络层错误可重试
		return true, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// 统一会话失效判定
		c.session.Invalidate()
		return false, ErrSessionExpired
	}
	if resp.StatusCode >= 500 {
		return true, serverError(respBody, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	if env.Code != 0 {
		return false, &APIError{Code: env.Code, Message: env.Message}
	}

	if result != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return false, fmt.Errorf("decode data: %w", err)
		}
	}
	return false, nil
}

func serverError(body []byte, status int) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Code != 0 {
		return &APIError{Code: env.Code, Message: env.Message}
	}
	return &APIError{Code: status * 100, Message: http.StatusText(status)}
}

// get 带缓存的读请求，key 命中且未过期时不发请求
func (c *Client) get(ctx context.Context, key Key, ttl time.Duration, path string, result interface{}) error {
	if c.cache.Load(key, ttl, result) {
		return nil
	}
	if err := c.doRequest(ctx, http.MethodGet, path, nil, result); err != nil {
		return err
	}
	c.cache.Store(key, result)
	return nil
}
