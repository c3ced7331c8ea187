package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sagara-io/crflow/internal/cr/entity"
	"github.com/sagara-io/crflow/internal/cr/pdf"
	"github.com/sagara-io/crflow/internal/cr/repository"
	"github.com/sagara-io/crflow/internal/cr/sse"
	"github.com/sagara-io/crflow/internal/cr/workflow"
)

// ApprovalService 审批服务
type ApprovalService struct {
	db           *gorm.DB
	requestRepo  *repository.RequestRepository
	userRepo     *repository.UserRepository
	docRepo      *repository.DocumentRepository
	notification *NotificationService
	document     *DocumentService
	hub          *sse.Hub
	logger       *zap.Logger
}

// NewApprovalService 创建审批服务
func NewApprovalService(
	db *gorm.DB,
	requestRepo *repository.RequestRepository,
	userRepo *repository.UserRepository,
	docRepo *repository.DocumentRepository,
	notification *NotificationService,
	document *DocumentService,
	hub *sse.Hub,
	logger *zap.Logger,
) *ApprovalService {
	return &ApprovalService{
		db:           db,
		requestRepo:  requestRepo,
		userRepo:     userRepo,
		docRepo:      docRepo,
		notification: notification,
		document:     document,
		hub:          hub,
		logger:       logger,
	}
}

// ApprovalInput 审批动作请求体
type ApprovalInput struct {
	Notes string `json:"notes"`
}

// AssignInput 分派请求体
type AssignInput struct {
	DeveloperIDs []string `json:"developerIds" binding:"required,min=1"`
	Notes        string   `json:"notes"`
}

// Process 执行一次审批动作（approve / reject / revision）
func (s *ApprovalService) Process(ctx context.Context, user *entity.User, requestID, tier, action, notes string) (*entity.ChangeRequest, error) {
	req, err := s.requestRepo.FindLite(ctx, requestID)
	if err != nil {
		return nil, err
	}

	// 审批人角色必须与层级匹配，经理还需同部门
	switch tier {
	case workflow.TierManager:
		if user.Role != entity.RoleManager || user.Division != req.Division {
			return nil, ErrForbidden
		}
	case workflow.TierVP:
		if user.Role != entity.RoleVP {
			return nil, ErrForbidden
		}
	default:
		return nil, fmt.Errorf("unknown approval tier %q", tier)
	}

	decision, err := workflow.ResolveDecision(req, tier, action)
	if err != nil {
		return nil, err
	}
	if decision.NeedsNotes {
		if err := workflow.ValidateNotes(notes); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	fromStatus := req.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":                decision.ToStatus,
			"current_approver_role": decision.NextApprover,
			"updated_at":            now,
		}
		if err := tx.Model(&entity.ChangeRequest{}).Where("id = ?", req.ID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Create(&entity.ApprovalLog{
			ID:         uuid.New().String()[:32],
			RequestID:  req.ID,
			ApproverID: user.ID,
			Action:     decision.LogAction,
			FromStatus: fromStatus,
			ToStatus:   decision.ToStatus,
			Notes:      notes,
			CreatedAt:  now,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("process approval: %w", err)
	}

	req.Status = decision.ToStatus
	req.CurrentApproverRole = decision.NextApprover

	// 最终批准后归档系统文档，失败不回滚审批
	if decision.ToStatus == entity.StatusApproved {
		if err := s.archiveApprovalDocuments(ctx, req.ID); err != nil {
			s.logger.Error("archive approval documents", zap.Error(err), zap.String("request_id", req.ID))
		}
	}

	go s.notifyDecision(req, user, decision, notes)

	s.logger.Info("approval processed",
		zap.String("request_id", req.ID),
		zap.String("tier", tier),
		zap.String("action", action),
		zap.String("from", fromStatus),
		zap.String("to", decision.ToStatus))
	return req, nil
}

// Assign 分派开发人员，APPROVED -> ASSIGNED -> IN_PROGRESS
func (s *ApprovalService) Assign(ctx context.Context, user *entity.User, requestID string, input *AssignInput) (*entity.ChangeRequest, error) {
	req, err := s.requestRepo.FindLite(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if user.Role != entity.RoleManagerIT {
		return nil, ErrForbidden
	}
	if req.Status != entity.StatusApproved {
		return nil, &workflow.TransitionError{From: req.Status, To: entity.StatusAssigned}
	}

	devs, err := s.userRepo.FindByIDs(ctx, input.DeveloperIDs)
	if err != nil {
		return nil, fmt.Errorf("find developers: %w", err)
	}
	if len(devs) != len(input.DeveloperIDs) {
		return nil, fmt.Errorf("one or more developers not found")
	}
	for _, d := range devs {
		if d.Role != entity.RoleDev {
			return nil, fmt.Errorf("user %s is not a developer", d.ID)
		}
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range devs {
			if err := tx.Create(&entity.DeveloperAssignment{
				ID:          uuid.New().String()[:32],
				RequestID:   req.ID,
				DeveloperID: d.ID,
				AssignedBy:  user.ID,
				Notes:       input.Notes,
				Active:      true,
				CreatedAt:   now,
			}).Error; err != nil {
				return err
			}
		}

		// 分派完成即自动进入开发中
		if err := tx.Model(&entity.ChangeRequest{}).Where("id = ?", req.ID).Updates(map[string]interface{}{
			"status":                entity.StatusInProgress,
			"current_approver_role": "",
			"updated_at":            now,
		}).Error; err != nil {
			return err
		}

		return tx.Create(&entity.ApprovalLog{
			ID:         uuid.New().String()[:32],
			RequestID:  req.ID,
			ApproverID: user.ID,
			Action:     entity.ActionAssigned,
			FromStatus: entity.StatusApproved,
			ToStatus:   entity.StatusAssigned,
			Notes:      input.Notes,
			CreatedAt:  now,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("assign developers: %w", err)
	}

	req.Status = entity.StatusInProgress

	go func() {
		nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.notification.NotifyMany(nctx, input.DeveloperIDs, entity.NotifyTypeAssigned,
			"You have been assigned to a change request",
			fmt.Sprintf("%s: %s", req.Code, req.Title),
			req.ID)
		if err := s.notification.Notify(nctx, req.CreatedBy, entity.NotifyTypeAssigned,
			"Developers assigned to your request",
			fmt.Sprintf("%s is now in progress", req.Code),
			req.ID); err != nil {
			s.logger.Error("notify owner of assignment", zap.Error(err))
		}
	}()

	s.logger.Info("developers assigned",
		zap.String("request_id", req.ID),
		zap.Int("developers", len(devs)))
	return req, nil
}

// Complete 完成开发，IN_PROGRESS -> COMPLETED
func (s *ApprovalService) Complete(ctx context.Context, user *entity.User, requestID string) (*entity.ChangeRequest, error) {
	req, err := s.requestRepo.FindLite(ctx, requestID)
	if err != nil {
		return nil, err
	}

	assigned, err := s.requestRepo.IsAssigned(ctx, req.ID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("check assignment: %w", err)
	}
	perms := workflow.Evaluate(user, req, assigned)
	if !perms.CanComplete {
		if req.Status != entity.StatusInProgress {
			return nil, &workflow.TransitionError{From: req.Status, To: entity.StatusCompleted}
		}
		return nil, ErrForbidden
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.ChangeRequest{}).Where("id = ?", req.ID).Updates(map[string]interface{}{
			"status":       entity.StatusCompleted,
			"completed_at": now,
			"updated_at":   now,
		}).Error; err != nil {
			return err
		}
		return tx.Create(&entity.ApprovalLog{
			ID:         uuid.New().String()[:32],
			RequestID:  req.ID,
			ApproverID: user.ID,
			Action:     entity.ActionCompleted,
			FromStatus: entity.StatusInProgress,
			ToStatus:   entity.StatusCompleted,
			CreatedAt:  now,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("complete request: %w", err)
	}

	req.Status = entity.StatusCompleted
	req.CompletedAt = &now

	go func() {
		nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notification.Notify(nctx, req.CreatedBy, entity.NotifyTypeCompleted,
			"Your change request has been completed",
			fmt.Sprintf("%s: %s", req.Code, req.Title),
			req.ID); err != nil {
			s.logger.Error("notify owner of completion", zap.Error(err))
		}
		s.hub.PublishStatusChange(req.CreatedBy, map[string]string{
			"requestId": req.ID,
			"status":    entity.StatusCompleted,
		})
	}()

	s.logger.Info("request completed", zap.String("request_id", req.ID), zap.String("user_id", user.ID))
	return req, nil
}

// archiveApprovalDocuments 最终批准后生成表单与审批记录两份 PDF 并归档
func (s *ApprovalService) archiveApprovalDocuments(ctx context.Context, requestID string) error {
	full, err := s.requestRepo.FindByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load request: %w", err)
	}

	formBuf, err := pdf.RenderRequestForm(full)
	if err != nil {
		return err
	}
	if err := s.document.StoreGenerated(ctx, full, entity.DocTypePDFForm, fmt.Sprintf("%s-form.pdf", full.Code), formBuf); err != nil {
		return err
	}

	approvalBuf, err := pdf.RenderApprovalRecord(full, full.ApprovalLogs)
	if err != nil {
		return err
	}
	return s.document.StoreGenerated(ctx, full, entity.DocTypePDFApproval, fmt.Sprintf("%s-approval.pdf", full.Code), approvalBuf)
}

func (s *ApprovalService) notifyDecision(req *entity.ChangeRequest, approver *entity.User, decision *workflow.Decision, notes string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var notifyType, title, message string
	switch decision.LogAction {
	case entity.ActionApproved:
		notifyType = entity.NotifyTypeApproved
		if req.Status == entity.StatusApproved {
			title = "Your change request has been approved"
			message = fmt.Sprintf("%s was fully approved and awaits developer assignment", req.Code)
		} else {
			title = "Your change request passed manager approval"
			message = fmt.Sprintf("%s moved to VP approval", req.Code)
		}
	case entity.ActionRejected:
		notifyType = entity.NotifyTypeRejected
		title = "Your change request was rejected"
		message = fmt.Sprintf("%s was rejected by %s: %s", req.Code, approver.Name, notes)
	case entity.ActionRevisionRequested:
		notifyType = entity.NotifyTypeRevisionRequested
		title = "Revision requested on your change request"
		message = fmt.Sprintf("%s needs revision: %s", req.Code, notes)
	}

	if err := s.notification.Notify(ctx, req.CreatedBy, notifyType, title, message, req.ID); err != nil {
		s.logger.Error("notify request owner", zap.Error(err), zap.String("request_id", req.ID))
	}

	// 进入VP层时通知全部VP，最终批准时通知IT经理
	switch req.Status {
	case entity.StatusPendingVP:
		vps, err := s.userRepo.ListByRole(ctx, entity.RoleVP)
		if err != nil {
			s.logger.Error("find vps", zap.Error(err))
			return
		}
		ids := make([]string, 0, len(vps))
		for _, v := range vps {
			ids = append(ids, v.ID)
		}
		s.notification.NotifyMany(ctx, ids, entity.NotifyTypeSubmitted,
			"Change request awaiting your approval",
			fmt.Sprintf("%s: %s", req.Code, req.Title),
			req.ID)
	case entity.StatusApproved:
		its, err := s.userRepo.ListByRole(ctx, entity.RoleManagerIT)
		if err != nil {
			s.logger.Error("find it managers", zap.Error(err))
			return
		}
		ids := make([]string, 0, len(its))
		for _, m := range its {
			ids = append(ids, m.ID)
		}
		s.notification.NotifyMany(ctx, ids, entity.NotifyTypeApproved,
			"Approved change request awaiting assignment",
			fmt.Sprintf("%s: %s", req.Code, req.Title),
			req.ID)
	}

	s.hub.PublishStatusChange(req.CreatedBy, map[string]string{
		"requestId": req.ID,
		"status":    req.Status,
	})
}
