package workflow

import (
	"time"

	"github.com/sagara-io/crflow/internal/cr/entity"
)

// ProgressStep 进度条单步
type ProgressStep struct {
	Step      int        `json:"step"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// 步骤状态
const (
	StepDone    = "done"
	StepCurrent = "current"
	StepPending = "pending"
	StepSkipped = "skipped"
)

var stepNames = []string{
	"Submission",
	"Manager Approval",
	"VP Approval",
	"Developer Assignment",
	"Development",
	"Completion",
}

// 请求状态映射到进度条上的当前步（1 起始）；0 表示尚未进入流程
var statusStep = map[string]int{
	entity.StatusDraft:             1,
	entity.StatusPendingManager:    2,
	entity.StatusRevisionByManager: 2,
	entity.StatusPendingVP:         3,
	entity.StatusRevisionByVP:      3,
	entity.StatusApproved:          4,
	entity.StatusAssigned:          5,
	entity.StatusInProgress:        5,
	entity.StatusCompleted:         6,
}

// BuildProgress 由请求状态与审批日志计算进度条。
// 已完成步骤取该步最后一次日志的时间；REJECTED 将剩余步骤标记为 skipped。
func BuildProgress(req *entity.ChangeRequest, logs []entity.ApprovalLog) []ProgressStep {
	current := statusStep[req.Status]
	rejected := req.Status == entity.StatusRejected
	if rejected {
		// 驳回发生在哪一层由日志决定，缺省按经理层
		current = 2
		for _, l := range logs {
			if l.Action == entity.ActionRejected && l.FromStatus == entity.StatusPendingVP {
				current = 3
			}
		}
	}

	steps := make([]ProgressStep, 0, len(stepNames))
	for i, name := range stepNames {
		n := i + 1
		s := ProgressStep{Step: n, Name: name}
		switch {
		case req.Status == entity.StatusCompleted:
			s.Status = StepDone
		case rejected && n > current:
			s.Status = StepSkipped
		case n < current:
			s.Status = StepDone
		case n == current:
			s.Status = StepCurrent
		default:
			s.Status = StepPending
		}
		if s.Status == StepDone || s.Status == StepCurrent {
			s.Timestamp = stepTimestamp(req, logs, n)
		}
		steps = append(steps, s)
	}
	return steps
}

// stepTimestamp 步骤对应的最近日志时间
func stepTimestamp(req *entity.ChangeRequest, logs []entity.ApprovalLog, step int) *time.Time {
	var match func(l entity.ApprovalLog) bool
	switch step {
	case 1:
		match = func(l entity.ApprovalLog) bool {
			return l.Action == entity.ActionSubmitted || l.Action == entity.ActionResubmitted
		}
	case 2:
		match = func(l entity.ApprovalLog) bool { return l.FromStatus == entity.StatusPendingManager }
	case 3:
		match = func(l entity.ApprovalLog) bool { return l.FromStatus == entity.StatusPendingVP }
	case 4:
		match = func(l entity.ApprovalLog) bool { return l.Action == entity.ActionAssigned }
	case 5:
		match = func(l entity.ApprovalLog) bool { return l.Action == entity.ActionAssigned }
	case 6:
		match = func(l entity.ApprovalLog) bool { return l.Action == entity.ActionCompleted }
	}

	var ts *time.Time
	for i := range logs {
		if match(logs[i]) {
			t := logs[i].CreatedAt
			ts = &t
		}
	}
	if ts == nil && step == 1 {
		ts = req.SubmittedAt
	}
	return ts
}

// LatestRevisionNote 最近一次退回修改的说明，供所有者修订时展示
func LatestRevisionNote(logs []entity.ApprovalLog) string {
	for i := len(logs) - 1; i >= 0; i-- {
		if logs[i].Action == entity.ActionRevisionRequested {
			return logs[i].Notes
		}
	}
	return ""
}
