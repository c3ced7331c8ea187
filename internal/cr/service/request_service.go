package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sagara-io/crflow/internal/cr/entity"
	"github.com/sagara-io/crflow/internal/cr/repository"
	"github.com/sagara-io/crflow/internal/cr/workflow"
)

// ErrForbidden 无权执行该操作
var ErrForbidden = errors.New("operation not allowed")

// ErrValidation 表单内容校验失败
var ErrValidation = errors.New("validation failed")

// RequestService 变更请求服务
type RequestService struct {
	db           *gorm.DB
	repo         *repository.RequestRepository
	userRepo     *repository.UserRepository
	notification *NotificationService
	logger       *zap.Logger
}

// NewRequestService 创建变更请求服务
func NewRequestService(db *gorm.DB, repo *repository.RequestRepository, userRepo *repository.UserRepository, notification *NotificationService, logger *zap.Logger) *RequestService {
	return &RequestService{db: db, repo: repo, userRepo: userRepo, notification: notification, logger: logger}
}

// RequestForm 请求表单字段
type RequestForm struct {
	Title              string       `json:"title" binding:"required,min=5"`
	TargetDate         *time.Time   `json:"targetDate"`
	Requester1         string       `json:"requester1"`
	Requester2         string       `json:"requester2"`
	BusinessArea       string       `json:"businessArea"`
	CategoryImpact     string       `json:"categoryImpact"`
	ImpactDescription  string       `json:"impactDescription"`
	Background         string       `json:"background"`
	Objective          string       `json:"objective"`
	ServiceExplanation string       `json:"serviceExplanation"`
	ServicesNeeded     entity.JSONB `json:"servicesNeeded"`
}

// RequestListResult 请求列表结果
type RequestListResult struct {
	Items      []entity.ChangeRequest `json:"items"`
	Total      int64                  `json:"total"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"pageSize"`
	TotalPages int                    `json:"totalPages"`
}

// RequestDetail 请求详情与当前用户能力集
type RequestDetail struct {
	*entity.ChangeRequest
	Permissions        workflow.Permissions `json:"permissions"`
	LatestRevisionNote string               `json:"latestRevisionNote,omitempty"`
}

// ProgressResult 进度结果
type ProgressResult struct {
	CRID          string                  `json:"crId"`
	CurrentStatus string                  `json:"currentStatus"`
	Steps         []workflow.ProgressStep `json:"steps"`
}

// Create 创建草稿
func (s *RequestService) Create(ctx context.Context, user *entity.User, form *RequestForm) (*entity.ChangeRequest, error) {
	code, err := s.repo.GenerateCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	now := time.Now()
	req := &entity.ChangeRequest{
		ID:        uuid.New().String()[:32],
		Code:      code,
		Status:    entity.StatusDraft,
		CreatedBy: user.ID,
		Division:  user.Division,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyForm(req, form)

	if err := s.repo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.logger.Info("request created", zap.String("request_id", req.ID), zap.String("code", req.Code))
	return req, nil
}

// Update 更新表单，仅所有者在可编辑状态下
func (s *RequestService) Update(ctx context.Context, user *entity.User, id string, form *RequestForm) (*entity.ChangeRequest, error) {
	req, err := s.repo.FindLite(ctx, id)
	if err != nil {
		return nil, err
	}

	perms := workflow.Evaluate(user, req, false)
	if !perms.CanEdit {
		return nil, ErrForbidden
	}

	applyForm(req, form)
	req.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("update request: %w", err)
	}
	return req, nil
}

// Delete 删除请求，仅所有者的草稿
func (s *RequestService) Delete(ctx context.Context, user *entity.User, id string) error {
	req, err := s.repo.FindLite(ctx, id)
	if err != nil {
		return err
	}

	perms := workflow.Evaluate(user, req, false)
	if !perms.CanDelete {
		return ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	s.logger.Info("request deleted", zap.String("request_id", id), zap.String("user_id", user.ID))
	return nil
}

// Get 请求详情，附当前用户能力集
func (s *RequestService) Get(ctx context.Context, user *entity.User, id string) (*RequestDetail, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	assigned := s.isAssigned(ctx, req, user.ID)
	if !workflow.CanView(user, req, assigned) {
		return nil, ErrForbidden
	}

	return &RequestDetail{
		ChangeRequest:      req,
		Permissions:        workflow.Evaluate(user, req, assigned),
		LatestRevisionNote: workflow.LatestRevisionNote(req.ApprovalLogs),
	}, nil
}

// List 角色限定范围内的请求列表
func (s *RequestService) List(ctx context.Context, user *entity.User, page, pageSize int, filters map[string]string) (*RequestListResult, error) {
	scoped := map[string]string{
		"status":     filters["status"],
		"search":     filters["search"],
		"sort_by":    filters["sort_by"],
		"sort_order": filters["sort_order"],
	}

	switch user.Role {
	case entity.RoleUser:
		scoped["created_by"] = user.ID
	case entity.RoleManager:
		scoped["division"] = user.Division
	case entity.RoleVP:
		// VP 可见全部已进入流程的请求
	case entity.RoleManagerIT:
		scoped["status_in"] = strings.Join([]string{
			entity.StatusApproved, entity.StatusAssigned, entity.StatusInProgress, entity.StatusCompleted,
		}, ",")
	case entity.RoleDev:
		scoped["assigned_to"] = user.ID
	}

	items, total, err := s.repo.FindAll(ctx, page, pageSize, scoped)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &RequestListResult{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// Submit 提交草稿进入经理审批
func (s *RequestService) Submit(ctx context.Context, user *entity.User, id string) (*entity.ChangeRequest, error) {
	req, err := s.repo.FindLite(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.CreatedBy != user.ID {
		return nil, ErrForbidden
	}
	if !workflow.CanTransition(req.Status, entity.StatusPendingManager) || req.Status != entity.StatusDraft {
		return nil, &workflow.TransitionError{From: req.Status, To: entity.StatusPendingManager}
	}
	if err := validateSubmittable(req); err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.ChangeRequest{}).Where("id = ?", req.ID).Updates(map[string]interface{}{
			"status":                entity.StatusPendingManager,
			"current_approver_role": entity.RoleManager,
			"submitted_at":          now,
			"updated_at":            now,
		}).Error; err != nil {
			return err
		}
		return tx.Create(&entity.ApprovalLog{
			ID:         uuid.New().String()[:32],
			RequestID:  req.ID,
			ApproverID: user.ID,
			Action:     entity.ActionSubmitted,
			FromStatus: entity.StatusDraft,
			ToStatus:   entity.StatusPendingManager,
			CreatedAt:  now,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("submit request: %w", err)
	}

	req.Status = entity.StatusPendingManager
	req.CurrentApproverRole = entity.RoleManager
	req.SubmittedAt = &now

	// 通知部门经理，异步发送
	go s.notifyManagers(req, user)

	s.logger.Info("request submitted", zap.String("request_id", req.ID), zap.String("user_id", user.ID))
	return req, nil
}

// Resubmit 修订后重新提交，递增对应层级的修订计数
func (s *RequestService) Resubmit(ctx context.Context, user *entity.User, id string) (*entity.ChangeRequest, error) {
	req, err := s.repo.FindLite(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.CreatedBy != user.ID {
		return nil, ErrForbidden
	}

	toStatus, tier, err := workflow.ResubmitTarget(req.Status)
	if err != nil {
		return nil, err
	}
	if err := validateSubmittable(req); err != nil {
		return nil, err
	}

	now := time.Now()
	fromStatus := req.Status
	updates := map[string]interface{}{
		"status":         toStatus,
		"revision_count": gorm.Expr("revision_count + 1"),
		"updated_at":     now,
	}
	if tier == workflow.TierManager {
		updates["current_approver_role"] = entity.RoleManager
		updates["manager_revision_count"] = gorm.Expr("manager_revision_count + 1")
	} else {
		updates["current_approver_role"] = entity.RoleVP
		updates["vp_revision_count"] = gorm.Expr("vp_revision_count + 1")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.ChangeRequest{}).Where("id = ?", req.ID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Create(&entity.ApprovalLog{
			ID:         uuid.New().String()[:32],
			RequestID:  req.ID,
			ApproverID: user.ID,
			Action:     entity.ActionResubmitted,
			FromStatus: fromStatus,
			ToStatus:   toStatus,
			CreatedAt:  now,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("resubmit request: %w", err)
	}

	updated, err := s.repo.FindLite(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if tier == workflow.TierManager {
		go s.notifyManagers(updated, user)
	} else {
		go s.notifyVPs(updated, user)
	}

	s.logger.Info("request resubmitted",
		zap.String("request_id", req.ID),
		zap.String("tier", tier),
		zap.Int("revision_count", updated.RevisionCount))
	return updated, nil
}

// Progress 进度条
func (s *RequestService) Progress(ctx context.Context, user *entity.User, id string) (*ProgressResult, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	assigned := s.isAssigned(ctx, req, user.ID)
	if !workflow.CanView(user, req, assigned) {
		return nil, ErrForbidden
	}

	return &ProgressResult{
		CRID:          req.ID,
		CurrentStatus: req.Status,
		Steps:         workflow.BuildProgress(req, req.ApprovalLogs),
	}, nil
}

// ExportXLSX 导出当前筛选条件下的列表
func (s *RequestService) ExportXLSX(ctx context.Context, user *entity.User, filters map[string]string) (*bytes.Buffer, error) {
	result, err := s.List(ctx, user, 1, 1000, filters)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Requests"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Code", "Title", "Status", "Division", "Created By", "Target Date", "Revisions", "Created At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for i, req := range result.Items {
		row := i + 2
		creator := req.CreatedBy
		if req.Creator != nil {
			creator = req.Creator.Name
		}
		targetDate := ""
		if req.TargetDate != nil {
			targetDate = req.TargetDate.Format("2006-01-02")
		}
		values := []interface{}{
			req.Code, req.Title, req.Status, req.Division, creator,
			targetDate, req.RevisionCount, req.CreatedAt.Format("2006-01-02 15:04"),
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			f.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf, nil
}

func (s *RequestService) isAssigned(ctx context.Context, req *entity.ChangeRequest, userID string) bool {
	if req.Assignments != nil {
		for _, a := range req.Assignments {
			if a.DeveloperID == userID && a.Active {
				return true
			}
		}
		return false
	}
	assigned, err := s.repo.IsAssigned(ctx, req.ID, userID)
	if err != nil {
		s.logger.Warn("check assignment", zap.Error(err))
		return false
	}
	return assigned
}

func (s *RequestService) notifyManagers(req *entity.ChangeRequest, submitter *entity.User) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	managers, err := s.userRepo.ListByRoleAndDivision(ctx, entity.RoleManager, req.Division)
	if err != nil {
		s.logger.Error("find managers for notification", zap.Error(err))
		return
	}
	ids := make([]string, 0, len(managers))
	for _, m := range managers {
		ids = append(ids, m.ID)
	}
	s.notification.NotifyMany(ctx, ids, entity.NotifyTypeSubmitted,
		"Change request awaiting your approval",
		fmt.Sprintf("%s submitted %s: %s", submitter.Name, req.Code, req.Title),
		req.ID)
}

func (s *RequestService) notifyVPs(req *entity.ChangeRequest, submitter *entity.User) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	vps, err := s.userRepo.ListByRole(ctx, entity.RoleVP)
	if err != nil {
		s.logger.Error("find vps for notification", zap.Error(err))
		return
	}
	ids := make([]string, 0, len(vps))
	for _, v := range vps {
		ids = append(ids, v.ID)
	}
	s.notification.NotifyMany(ctx, ids, entity.NotifyTypeSubmitted,
		"Change request awaiting your approval",
		fmt.Sprintf("%s resubmitted %s: %s", submitter.Name, req.Code, req.Title),
		req.ID)
}

func applyForm(req *entity.ChangeRequest, form *RequestForm) {
	req.Title = form.Title
	req.TargetDate = form.TargetDate
	req.Requester1 = form.Requester1
	req.Requester2 = form.Requester2
	req.BusinessArea = form.BusinessArea
	req.CategoryImpact = form.CategoryImpact
	req.ImpactDescription = form.ImpactDescription
	req.Background = form.Background
	req.Objective = form.Objective
	req.ServiceExplanation = form.ServiceExplanation
	req.ServicesNeeded = form.ServicesNeeded
}

// validateSubmittable 提交前的最小完整性校验
func validateSubmittable(req *entity.ChangeRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("%w: title is required before submission", ErrValidation)
	}
	if strings.TrimSpace(req.Background) == "" {
		return fmt.Errorf("%w: background is required before submission", ErrValidation)
	}
	if strings.TrimSpace(req.Objective) == "" {
		return fmt.Errorf("%w: objective is required before submission", ErrValidation)
	}
	// 目标日期必须是未来的日历日
	if req.TargetDate != nil {
		y, m, d := time.Now().Date()
		tomorrow := time.Date(y, m, d, 0, 0, 0, 0, time.Local).AddDate(0, 0, 1)
		if req.TargetDate.Before(tomorrow) {
			return fmt.Errorf("%w: target date must be a future date", ErrValidation)
		}
	}
	return nil
}
