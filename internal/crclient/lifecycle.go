package crclient

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sagara-io/crflow/internal/cr/entity"
)

// Attachment 待上传的附件
type Attachment struct {
	FileName string
	Content  io.Reader
}

// DraftSavedError 表单已保存为草稿，但后续上传或提交失败。
// 调用方可引导用户从草稿恢复而不是重填表单。
type DraftSavedError struct {
	RequestID string
	Stage     string
	Err       error
}

func (e *DraftSavedError) Error() string {
	return fmt.Sprintf("draft %s saved but %s failed: %v", e.RequestID, e.Stage, e.Err)
}

func (e *DraftSavedError) Unwrap() error {
	return e.Err
}

// SubmitResult 提交流程结果
type SubmitResult struct {
	Request   *entity.ChangeRequest
	Documents []entity.Document
	// 提交完成后应跳转的路由：USER 回列表页，其他角色回看板
	Route string
}

// SubmitFlow 编排一次完整提交：保存表单、并发上传附件、状态迁移、
// 失效相关缓存。表单保存成功后的任何失败都返回 DraftSavedError。
// requestID 为空表示新建，resubmit 为真走重新提交迁移。
func (c *Client) SubmitFlow(ctx context.Context, requestID string, form map[string]interface{}, attachments []Attachment, resubmit bool) (*SubmitResult, error) {
	// 第一步：保存表单
	var req *entity.ChangeRequest
	var err error
	if requestID == "" {
		req, err = c.CreateRequest(ctx, form)
	} else {
		req, err = c.UpdateRequest(ctx, requestID, form)
	}
	if err != nil {
		return nil, err
	}

	// 第二步：并发上传附件
	docs := make([]entity.Document, len(attachments))
	errs := make([]error, len(attachments))
	var wg sync.WaitGroup
	for i, att := range attachments {
		wg.Add(1)
		go func(i int, att Attachment) {
			defer wg.Done()
			doc, uerr := c.UploadDocument(ctx, req.ID, att.FileName, att.Content)
			if uerr != nil {
				errs[i] = fmt.Errorf("upload %s: %w", att.FileName, uerr)
				return
			}
			docs[i] = *doc
		}(i, att)
	}
	wg.Wait()
	for _, uerr := range errs {
		if uerr != nil {
			return nil, &DraftSavedError{RequestID: req.ID, Stage: "attachment upload", Err: uerr}
		}
	}

	// 第三步：状态迁移
	var submitted *entity.ChangeRequest
	if resubmit {
		submitted, err = c.ResubmitRequest(ctx, req.ID)
	} else {
		submitted, err = c.SubmitRequest(ctx, req.ID)
	}
	if err != nil {
		return nil, &DraftSavedError{RequestID: req.ID, Stage: "submission", Err: err}
	}

	// 第四步：失效列表与详情缓存
	c.invalidateRequestViews()

	return &SubmitResult{
		Request:   submitted,
		Documents: docs,
		Route:     c.postSubmitRoute(),
	}, nil
}

// SaveDraft 仅保存草稿，不迁移状态
func (c *Client) SaveDraft(ctx context.Context, requestID string, form map[string]interface{}) (*entity.ChangeRequest, error) {
	if requestID == "" {
		return c.CreateRequest(ctx, form)
	}
	return c.UpdateRequest(ctx, requestID, form)
}

func (c *Client) postSubmitRoute() string {
	if u := c.session.User(); u != nil && u.Role == entity.RoleUser {
		return "/requests"
	}
	return "/dashboard"
}
