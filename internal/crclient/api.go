package crclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sagara-io/crflow/internal/cr/entity"
	"github.com/sagara-io/crflow/internal/cr/workflow"
)

// Pagination 分页信息
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// RequestList 列表响应
type RequestList struct {
	Items      []entity.ChangeRequest `json:"items"`
	Pagination Pagination             `json:"pagination"`
}

// RequestDetail 详情响应
type RequestDetail struct {
	entity.ChangeRequest
	Permissions        workflow.Permissions `json:"permissions"`
	LatestRevisionNote string               `json:"latestRevisionNote,omitempty"`
}

// LoginResult 登录结果
type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      entity.User `json:"user"`
}

// Progress 进度响应
type Progress struct {
	CRID          string                  `json:"crId"`
	CurrentStatus string                  `json:"currentStatus"`
	Steps         []workflow.ProgressStep `json:"steps"`
}

// Download 下载链接响应
type Download struct {
	DownloadURL string    `json:"downloadUrl"`
	FileName    string    `json:"fileName"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// DashboardStats 看板统计，字段按角色选填
type DashboardStats struct {
	Total             *int64 `json:"total,omitempty"`
	Pending           *int64 `json:"pending,omitempty"`
	Approved          *int64 `json:"approved,omitempty"`
	Rejected          *int64 `json:"rejected,omitempty"`
	PendingApproval   *int64 `json:"pendingApproval,omitempty"`
	ApprovedThisMonth *int64 `json:"approvedThisMonth,omitempty"`
	RejectedThisMonth *int64 `json:"rejectedThisMonth,omitempty"`
	ToAssign          *int64 `json:"toAssign,omitempty"`
	InProgress        *int64 `json:"inProgress,omitempty"`
	Completed         *int64 `json:"completed,omitempty"`
}

// Dashboard 角色看板载荷
type Dashboard struct {
	User        *entity.User           `json:"user"`
	Stats       DashboardStats         `json:"stats"`
	RecentCRs   []entity.ChangeRequest `json:"recentCRs,omitempty"`
	PendingCRs  []entity.ChangeRequest `json:"pendingCRs,omitempty"`
	AssignedCRs []entity.ChangeRequest `json:"assignedCRs,omitempty"`
}

// invalidateRequestViews 请求数据变更后，列表、详情与看板缓存一并失效
func (c *Client) invalidateRequestViews() {
	c.cache.InvalidatePrefix(PrefixRequests)
	c.cache.InvalidatePrefix(PrefixDashboard)
}

// Login 登录并建立会话
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var result LoginResult
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": email, "password": password}, &result)
	if err != nil {
		return nil, err
	}
	c.session.Set(result.Token, &result.User, result.ExpiresAt)
	return &result, nil
}

// Logout 注销本地会话并清空缓存
func (c *Client) Logout() {
	c.session.Invalidate()
	c.cache.InvalidatePrefix("")
}

// ListRequests 按筛选条件查询列表，短期内相同条件命中缓存
func (c *Client) ListRequests(ctx context.Context, filters Filters) (*RequestList, error) {
	path := "/api/v1/requests"
	if qs := filters.QueryString(); qs != "" {
		path += "?" + qs
	}
	var result RequestList
	if err := c.get(ctx, KeyRequestList(filters.QueryString()), ListTTL, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRequest 请求详情
func (c *Client) GetRequest(ctx context.Context, id string) (*RequestDetail, error) {
	var result RequestDetail
	if err := c.get(ctx, KeyRequestDetail(id), DetailTTL, "/api/v1/requests/"+id, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateRequest 创建草稿
func (c *Client) CreateRequest(ctx context.Context, form map[string]interface{}) (*entity.ChangeRequest, error) {
	var result entity.ChangeRequest
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/requests", form, &result); err != nil {
		return nil, err
	}
	c.invalidateRequestViews()
	return &result, nil
}

// UpdateRequest 更新表单
func (c *Client) UpdateRequest(ctx context.Context, id string, form map[string]interface{}) (*entity.ChangeRequest, error) {
	var result entity.ChangeRequest
	if err := c.doRequest(ctx, http.MethodPut, "/api/v1/requests/"+id, form, &result); err != nil {
		return nil, err
	}
	c.cache.Invalidate(KeyRequestDetail(id))
	c.invalidateRequestViews()
	return &result, nil
}

// DeleteRequest 删除草稿
func (c *Client) DeleteRequest(ctx context.Context, id string) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/api/v1/requests/"+id, nil, nil); err != nil {
		return err
	}
	c.invalidateRequestViews()
	return nil
}

// SubmitRequest 提交审批
func (c *Client) SubmitRequest(ctx context.Context, id string) (*entity.ChangeRequest, error) {
	var result entity.ChangeRequest
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/requests/"+id+"/submit", nil, &result); err != nil {
		return nil, err
	}
	c.invalidateRequestViews()
	return &result, nil
}

// ResubmitRequest 修订后重新提交
func (c *Client) ResubmitRequest(ctx context.Context, id string) (*entity.ChangeRequest, error) {
	var result entity.ChangeRequest
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/requests/"+id+"/resubmit", nil, &result); err != nil {
		return nil, err
	}
	c.invalidateRequestViews()
	return &result, nil
}

// GetProgress 进度条
func (c *Client) GetProgress(ctx context.Context, id string) (*Progress, error) {
	var result Progress
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/requests/"+id+"/progress", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ProcessApproval 执行审批动作，tier ∈ manager|vp，action ∈ approve|reject|revision
func (c *Client) ProcessApproval(ctx context.Context, id, tier, action, notes string) (*entity.ChangeRequest, error) {
	var body interface{}
	if notes != "" {
		body = map[string]string{"notes": notes}
	}
	var result entity.ChangeRequest
	path := fmt.Sprintf("/api/v1/approval/%s/%s/%s", id, tier, action)
	if err := c.doRequest(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	c.invalidateRequestViews()
	return &result, nil
}

// AssignDevelopers 分派开发
func (c *Client) AssignDevelopers(ctx context.Context, id string, developerIDs []string, notes string) (*entity.ChangeRequest, error) {
	var result entity.ChangeRequest
	body := map[string]interface{}{"developerIds": developerIDs, "notes": notes}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/approval/"+id+"/assign", body, &result); err != nil {
		return nil, err
	}
	c.invalidateRequestViews()
	return &result, nil
}

// CompleteRequest 完成开发
func (c *Client) CompleteRequest(ctx context.Context, id string) (*entity.ChangeRequest, error) {
	var result entity.ChangeRequest
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/approval/"+id+"/complete", nil, &result); err != nil {
		return nil, err
	}
	c.invalidateRequestViews()
	return &result, nil
}

// UploadDocument 上传附件（multipart，不走统一信封编码路径的请求体）
func (c *Client) UploadDocument(ctx context.Context, requestID, fileName string, content io.Reader) (*entity.Document, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("copy file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/requests/"+requestID+"/documents", &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.session.Invalidate()
		return nil, ErrSessionExpired
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if env.Code != 0 {
		return nil, &APIError{Code: env.Code, Message: env.Message}
	}

	var doc entity.Document
	if err := json.Unmarshal(env.Data, &doc); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	c.cache.Invalidate(KeyRequestDetail(requestID))
	return &doc, nil
}

// GetDashboard 当前用户的看板
func (c *Client) GetDashboard(ctx context.Context) (*Dashboard, error) {
	uid := ""
	if u := c.session.User(); u != nil {
		uid = u.ID
	}
	var result Dashboard
	if err := c.get(ctx, KeyDashboard(uid), ListTTL, "/api/v1/dashboard", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DownloadDocument 取限时下载链接
func (c *Client) DownloadDocument(ctx context.Context, documentID string) (*Download, error) {
	var result Download
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/documents/"+documentID+"/download", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteDocument 删除附件
func (c *Client) DeleteDocument(ctx context.Context, documentID, requestID string) error {
	if err := c.doRequest(ctx, http.MethodDelete, "/api/v1/documents/"+documentID, nil, nil); err != nil {
		return err
	}
	c.cache.Invalidate(KeyRequestDetail(requestID))
	return nil
}
