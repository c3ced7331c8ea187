package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sagara-io/crflow/internal/cr/entity"
	"github.com/sagara-io/crflow/internal/cr/repository"
)

// DashboardService 看板服务，按角色返回不同的统计与列表
type DashboardService struct {
	requestRepo *repository.RequestRepository
	userRepo    *repository.UserRepository
	logger      *zap.Logger
}

// NewDashboardService 创建看板服务
func NewDashboardService(requestRepo *repository.RequestRepository, userRepo *repository.UserRepository, logger *zap.Logger) *DashboardService {
	return &DashboardService{requestRepo: requestRepo, userRepo: userRepo, logger: logger}
}

// DashboardStats 统计数字，字段按角色选填
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

// DeveloperWorkload 开发负载
type DeveloperWorkload struct {
	Developer  entity.User `json:"developer"`
	InProgress int64       `json:"inProgress"`
	Completed  int64       `json:"completed"`
}

// DashboardData 看板载荷
type DashboardData struct {
	User              *entity.User           `json:"user"`
	Stats             DashboardStats         `json:"stats"`
	RecentCRs         []entity.ChangeRequest `json:"recentCRs,omitempty"`
	PendingCRs        []entity.ChangeRequest `json:"pendingCRs,omitempty"`
	AssignedCRs       []entity.ChangeRequest `json:"assignedCRs,omitempty"`
	DeveloperWorkload []DeveloperWorkload    `json:"developerWorkload,omitempty"`
}

// Get 构建角色对应的看板
func (s *DashboardService) Get(ctx context.Context, user *entity.User) (*DashboardData, error) {
	switch user.Role {
	case entity.RoleManager, entity.RoleVP:
		return s.approverDashboard(ctx, user)
	case entity.RoleManagerIT:
		return s.itManagerDashboard(ctx, user)
	case entity.RoleDev:
		return s.developerDashboard(ctx, user)
	default:
		return s.userDashboard(ctx, user)
	}
}

func (s *DashboardService) userDashboard(ctx context.Context, user *entity.User) (*DashboardData, error) {
	own := map[string]string{"created_by": user.ID}

	total, err := s.requestRepo.CountByStatus(ctx, own)
	if err != nil {
		return nil, fmt.Errorf("count total: %w", err)
	}
	pending, err := s.requestRepo.CountByStatus(ctx, own,
		entity.StatusPendingManager, entity.StatusPendingVP,
		entity.StatusRevisionByManager, entity.StatusRevisionByVP)
	if err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}
	approved, err := s.requestRepo.CountByStatus(ctx, own,
		entity.StatusApproved, entity.StatusAssigned, entity.StatusInProgress, entity.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("count approved: %w", err)
	}
	rejected, err := s.requestRepo.CountByStatus(ctx, own, entity.StatusRejected)
	if err != nil {
		return nil, fmt.Errorf("count rejected: %w", err)
	}

	recent, _, err := s.requestRepo.FindAll(ctx, 1, 5, own)
	if err != nil {
		return nil, fmt.Errorf("recent requests: %w", err)
	}

	return &DashboardData{
		User: user,
		Stats: DashboardStats{
			Total:    &total,
			Pending:  &pending,
			Approved: &approved,
			Rejected: &rejected,
		},
		RecentCRs: recent,
	}, nil
}

func (s *DashboardService) approverDashboard(ctx context.Context, user *entity.User) (*DashboardData, error) {
	pendingStatus := entity.StatusPendingManager
	scope := map[string]string{"division": user.Division}
	if user.Role == entity.RoleVP {
		pendingStatus = entity.StatusPendingVP
		scope = map[string]string{}
	}

	pendingCount, err := s.requestRepo.CountByStatus(ctx, scope, pendingStatus)
	if err != nil {
		return nil, fmt.Errorf("count pending approvals: %w", err)
	}

	// 本月从当月 1 日零点起算
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	approvedMonth, err := s.requestRepo.CountDecidedSince(ctx, user.ID, entity.ActionApproved, monthStart)
	if err != nil {
		return nil, fmt.Errorf("count approved this month: %w", err)
	}
	rejectedMonth, err := s.requestRepo.CountDecidedSince(ctx, user.ID, entity.ActionRejected, monthStart)
	if err != nil {
		return nil, fmt.Errorf("count rejected this month: %w", err)
	}

	listFilters := map[string]string{"status": pendingStatus}
	for k, v := range scope {
		listFilters[k] = v
	}
	pendingCRs, _, err := s.requestRepo.FindAll(ctx, 1, 10, listFilters)
	if err != nil {
		return nil, fmt.Errorf("pending requests: %w", err)
	}

	return &DashboardData{
		User: user,
		Stats: DashboardStats{
			PendingApproval:   &pendingCount,
			ApprovedThisMonth: &approvedMonth,
			RejectedThisMonth: &rejectedMonth,
		},
		PendingCRs: pendingCRs,
	}, nil
}

func (s *DashboardService) itManagerDashboard(ctx context.Context, user *entity.User) (*DashboardData, error) {
	all := map[string]string{}

	toAssign, err := s.requestRepo.CountByStatus(ctx, all, entity.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("count to assign: %w", err)
	}
	inProgress, err := s.requestRepo.CountByStatus(ctx, all, entity.StatusAssigned, entity.StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("count in progress: %w", err)
	}
	completed, err := s.requestRepo.CountByStatus(ctx, all, entity.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("count completed: %w", err)
	}

	pendingCRs, _, err := s.requestRepo.FindAll(ctx, 1, 10, map[string]string{"status": entity.StatusApproved})
	if err != nil {
		return nil, fmt.Errorf("to-assign requests: %w", err)
	}

	devs, err := s.userRepo.ListByRole(ctx, entity.RoleDev)
	if err != nil {
		return nil, fmt.Errorf("list developers: %w", err)
	}
	workload := make([]DeveloperWorkload, 0, len(devs))
	for _, d := range devs {
		ip, err := s.requestRepo.CountAssignedByStatus(ctx, d.ID, entity.StatusAssigned, entity.StatusInProgress)
		if err != nil {
			return nil, fmt.Errorf("developer workload: %w", err)
		}
		done, err := s.requestRepo.CountAssignedByStatus(ctx, d.ID, entity.StatusCompleted)
		if err != nil {
			return nil, fmt.Errorf("developer workload: %w", err)
		}
		workload = append(workload, DeveloperWorkload{Developer: d, InProgress: ip, Completed: done})
	}

	return &DashboardData{
		User: user,
		Stats: DashboardStats{
			ToAssign:   &toAssign,
			InProgress: &inProgress,
			Completed:  &completed,
		},
		PendingCRs:        pendingCRs,
		DeveloperWorkload: workload,
	}, nil
}

func (s *DashboardService) developerDashboard(ctx context.Context, user *entity.User) (*DashboardData, error) {
	inProgress, err := s.requestRepo.CountAssignedByStatus(ctx, user.ID, entity.StatusAssigned, entity.StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("count in progress: %w", err)
	}
	completed, err := s.requestRepo.CountAssignedByStatus(ctx, user.ID, entity.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("count completed: %w", err)
	}

	assigned, _, err := s.requestRepo.FindAll(ctx, 1, 10, map[string]string{"assigned_to": user.ID})
	if err != nil {
		return nil, fmt.Errorf("assigned requests: %w", err)
	}

	return &DashboardData{
		User: user,
		Stats: DashboardStats{
			InProgress: &inProgress,
			Completed:  &completed,
		},
		AssignedCRs: assigned,
	}, nil
}
