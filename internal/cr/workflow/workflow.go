// Package workflow 变更请求审批流程的纯逻辑核心：状态机、权限、修订次数策略与进度计算。
// 不依赖数据库，所有规则以 entity 状态常量为唯一词汇表。
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sagara-io/crflow/internal/cr/entity"
)

// ErrNotesTooShort 审批说明不足最小长度
var ErrNotesTooShort = errors.New("notes too short")

// ErrRevisionLimit 修订次数达到上限
var ErrRevisionLimit = errors.New("revision limit reached")

// 审批动作
const (
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionRevision = "revision"
)

// 审批层级（URL 中的 role 段）
const (
	TierManager = "manager"
	TierVP      = "vp"
)

// 策略常量
const (
	MinNoteLength       = 50
	MaxManagerRevisions = 3
	MaxVPRevisions      = 2
)

// ValidTransitions 状态转移表，键为当前状态，值为允许的目标状态
var ValidTransitions = map[string][]string{
	entity.StatusDraft:             {entity.StatusPendingManager},
	entity.StatusPendingManager:    {entity.StatusPendingVP, entity.StatusRejected, entity.StatusRevisionByManager},
	entity.StatusPendingVP:         {entity.StatusApproved, entity.StatusRejected, entity.StatusRevisionByVP},
	entity.StatusRevisionByManager: {entity.StatusPendingManager},
	entity.StatusRevisionByVP:      {entity.StatusPendingVP},
	entity.StatusApproved:          {entity.StatusAssigned},
	entity.StatusAssigned:          {entity.StatusInProgress},
	entity.StatusInProgress:        {entity.StatusCompleted},
	entity.StatusRejected:          {},
	entity.StatusCompleted:         {},
}

// CanTransition 状态转移是否在转移表内
func CanTransition(from, to string) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal 是否终态
func IsTerminal(status string) bool {
	return status == entity.StatusRejected || status == entity.StatusCompleted
}

// EditableStatuses 允许所有者编辑表单的状态集合
var EditableStatuses = map[string]bool{
	entity.StatusDraft:             true,
	entity.StatusRevisionByManager: true,
	entity.StatusRevisionByVP:      true,
}

// TransitionError 非法状态转移
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// ValidateNotes 校验驳回/退回修改的说明，去除首尾空白后不少于 MinNoteLength
func ValidateNotes(notes string) error {
	if len(strings.TrimSpace(notes)) < MinNoteLength {
		return fmt.Errorf("%w: at least %d characters required", ErrNotesTooShort, MinNoteLength)
	}
	return nil
}

// Decision 一次审批动作解析出的状态迁移
type Decision struct {
	ToStatus     string
	LogAction    string
	NeedsNotes   bool
	NextApprover string
}

// ResolveDecision 将 (当前状态, 层级, 动作) 解析为一次合法迁移。
// 层级必须与当前等待的审批层匹配；revision 动作受修订次数上限约束。
func ResolveDecision(req *entity.ChangeRequest, tier, action string) (*Decision, error) {
	var pendingStatus string
	switch tier {
	case TierManager:
		pendingStatus = entity.StatusPendingManager
	case TierVP:
		pendingStatus = entity.StatusPendingVP
	default:
		return nil, fmt.Errorf("unknown approval tier %q", tier)
	}

	if req.Status != pendingStatus {
		return nil, &TransitionError{From: req.Status, To: pendingStatus}
	}

	switch action {
	case ActionApprove:
		if tier == TierManager {
			return &Decision{ToStatus: entity.StatusPendingVP, LogAction: entity.ActionApproved, NextApprover: entity.RoleVP}, nil
		}
		return &Decision{ToStatus: entity.StatusApproved, LogAction: entity.ActionApproved, NextApprover: entity.RoleManagerIT}, nil
	case ActionReject:
		return &Decision{ToStatus: entity.StatusRejected, LogAction: entity.ActionRejected, NeedsNotes: true}, nil
	case ActionRevision:
		if tier == TierManager {
			if req.ManagerRevisionCount >= MaxManagerRevisions {
				return nil, fmt.Errorf("%w: manager tier allows %d revisions", ErrRevisionLimit, MaxManagerRevisions)
			}
			return &Decision{ToStatus: entity.StatusRevisionByManager, LogAction: entity.ActionRevisionRequested, NeedsNotes: true}, nil
		}
		if req.VPRevisionCount >= MaxVPRevisions {
			return nil, fmt.Errorf("%w: vp tier allows %d revisions", ErrRevisionLimit, MaxVPRevisions)
		}
		return &Decision{ToStatus: entity.StatusRevisionByVP, LogAction: entity.ActionRevisionRequested, NeedsNotes: true}, nil
	default:
		return nil, fmt.Errorf("unknown approval action %q", action)
	}
}

// TierRole 层级对应的审批角色
func TierRole(tier string) string {
	if tier == TierVP {
		return entity.RoleVP
	}
	return entity.RoleManager
}

// ResubmitTarget 重新提交后的目标状态，并返回应递增的层级
func ResubmitTarget(status string) (to string, tier string, err error) {
	switch status {
	case entity.StatusRevisionByManager:
		return entity.StatusPendingManager, TierManager, nil
	case entity.StatusRevisionByVP:
		return entity.StatusPendingVP, TierVP, nil
	default:
		return "", "", &TransitionError{From: status, To: "resubmit"}
	}
}

// RevisionLimitReached 当前层级的修订次数是否已达上限
func RevisionLimitReached(req *entity.ChangeRequest, tier string) bool {
	if tier == TierVP {
		return req.VPRevisionCount >= MaxVPRevisions
	}
	return req.ManagerRevisionCount >= MaxManagerRevisions
}
