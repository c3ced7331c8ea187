package workflow

import (
	"strings"
	"testing"

	"github.com/sagara-io/crflow/internal/cr/entity"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{entity.StatusDraft, entity.StatusPendingManager, true},
		{entity.StatusDraft, entity.StatusPendingVP, false},
		{entity.StatusPendingManager, entity.StatusPendingVP, true},
		{entity.StatusPendingManager, entity.StatusRejected, true},
		{entity.StatusPendingManager, entity.StatusRevisionByManager, true},
		{entity.StatusPendingManager, entity.StatusApproved, false},
		{entity.StatusPendingVP, entity.StatusApproved, true},
		{entity.StatusPendingVP, entity.StatusRevisionByVP, true},
		{entity.StatusRevisionByManager, entity.StatusPendingManager, true},
		{entity.StatusRevisionByManager, entity.StatusPendingVP, false},
		{entity.StatusRevisionByVP, entity.StatusPendingVP, true},
		{entity.StatusApproved, entity.StatusAssigned, true},
		{entity.StatusAssigned, entity.StatusInProgress, true},
		{entity.StatusInProgress, entity.StatusCompleted, true},
		{entity.StatusRejected, entity.StatusPendingManager, false},
		{entity.StatusCompleted, entity.StatusInProgress, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []string{entity.StatusRejected, entity.StatusCompleted} {
		if !IsTerminal(s) {
			t.Fatalf("expected %s to be terminal", s)
		}
		if len(ValidTransitions[s]) != 0 {
			t.Fatalf("terminal state %s has outgoing transitions", s)
		}
	}
}

func TestValidateNotes(t *testing.T) {
	if err := ValidateNotes(strings.Repeat("x", 49)); err == nil {
		t.Fatal("expected error for 49 chars")
	}
	if err := ValidateNotes(strings.Repeat("x", 50)); err != nil {
		t.Fatalf("unexpected error for 50 chars: %v", err)
	}
	// 首尾空白不计入长度
	padded := "   " + strings.Repeat("x", 49) + "   "
	if err := ValidateNotes(padded); err == nil {
		t.Fatal("expected error for padded 49 chars")
	}
}

func TestResolveDecisionManager(t *testing.T) {
	req := &entity.ChangeRequest{Status: entity.StatusPendingManager}

	d, err := ResolveDecision(req, TierManager, ActionApprove)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if d.ToStatus != entity.StatusPendingVP {
		t.Fatalf("approve target = %s, want PENDING_VP", d.ToStatus)
	}
	if d.NextApprover != entity.RoleVP {
		t.Fatalf("next approver = %s, want VP", d.NextApprover)
	}

	d, err = ResolveDecision(req, TierManager, ActionReject)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if d.ToStatus != entity.StatusRejected || !d.NeedsNotes {
		t.Fatalf("reject decision = %+v", d)
	}

	d, err = ResolveDecision(req, TierManager, ActionRevision)
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if d.ToStatus != entity.StatusRevisionByManager {
		t.Fatalf("revision target = %s", d.ToStatus)
	}
}

func TestResolveDecisionVPApprove(t *testing.T) {
	req := &entity.ChangeRequest{Status: entity.StatusPendingVP}
	d, err := ResolveDecision(req, TierVP, ActionApprove)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if d.ToStatus != entity.StatusApproved {
		t.Fatalf("approve target = %s, want APPROVED", d.ToStatus)
	}
}

func TestResolveDecisionTierMismatch(t *testing.T) {
	req := &entity.ChangeRequest{Status: entity.StatusPendingVP}
	if _, err := ResolveDecision(req, TierManager, ActionApprove); err == nil {
		t.Fatal("expected error for manager acting on PENDING_VP")
	}
	var te *TransitionError
	_, err := ResolveDecision(req, TierManager, ActionApprove)
	if !asTransitionError(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func asTransitionError(err error, target **TransitionError) bool {
	te, ok := err.(*TransitionError)
	if ok {
		*target = te
	}
	return ok
}

func TestRevisionCaps(t *testing.T) {
	req := &entity.ChangeRequest{
		Status:               entity.StatusPendingManager,
		ManagerRevisionCount: MaxManagerRevisions,
	}
	if _, err := ResolveDecision(req, TierManager, ActionRevision); err == nil {
		t.Fatal("expected manager revision cap error")
	}
	// 达到上限后 approve 与 reject 仍然可用
	if _, err := ResolveDecision(req, TierManager, ActionApprove); err != nil {
		t.Fatalf("approve at cap: %v", err)
	}
	if _, err := ResolveDecision(req, TierManager, ActionReject); err != nil {
		t.Fatalf("reject at cap: %v", err)
	}

	vpReq := &entity.ChangeRequest{
		Status:          entity.StatusPendingVP,
		VPRevisionCount: MaxVPRevisions,
	}
	if _, err := ResolveDecision(vpReq, TierVP, ActionRevision); err == nil {
		t.Fatal("expected vp revision cap error")
	}
	if !RevisionLimitReached(vpReq, TierVP) {
		t.Fatal("expected vp limit reached")
	}
}

func TestResubmitTarget(t *testing.T) {
	to, tier, err := ResubmitTarget(entity.StatusRevisionByManager)
	if err != nil || to != entity.StatusPendingManager || tier != TierManager {
		t.Fatalf("manager resubmit = (%s, %s, %v)", to, tier, err)
	}
	to, tier, err = ResubmitTarget(entity.StatusRevisionByVP)
	if err != nil || to != entity.StatusPendingVP || tier != TierVP {
		t.Fatalf("vp resubmit = (%s, %s, %v)", to, tier, err)
	}
	if _, _, err := ResubmitTarget(entity.StatusDraft); err == nil {
		t.Fatal("expected error resubmitting a draft")
	}
}

func TestEvaluateOwner(t *testing.T) {
	owner := &entity.User{ID: "u1", Role: entity.RoleUser}
	req := &entity.ChangeRequest{CreatedBy: "u1", Status: entity.StatusDraft}

	p := Evaluate(owner, req, false)
	if !p.CanEdit || !p.CanSubmit || !p.CanDelete || !p.CanUploadDocuments {
		t.Fatalf("draft owner permissions = %+v", p)
	}

	req.Status = entity.StatusRevisionByManager
	p = Evaluate(owner, req, false)
	if !p.CanEdit || !p.CanSubmit {
		t.Fatalf("revision owner permissions = %+v", p)
	}
	if p.CanDelete {
		t.Fatal("delete must be draft-only")
	}

	req.Status = entity.StatusPendingManager
	p = Evaluate(owner, req, false)
	if p.CanEdit || p.CanSubmit || p.CanDelete {
		t.Fatalf("pending owner permissions = %+v", p)
	}
}

func TestEvaluateApprovers(t *testing.T) {
	req := &entity.ChangeRequest{CreatedBy: "u1", Division: "finance", Status: entity.StatusPendingManager}

	mgr := &entity.User{ID: "m1", Role: entity.RoleManager, Division: "finance"}
	if p := Evaluate(mgr, req, false); !p.CanApproveManager {
		t.Fatal("same-division manager should approve")
	}
	otherMgr := &entity.User{ID: "m2", Role: entity.RoleManager, Division: "hr"}
	if p := Evaluate(otherMgr, req, false); p.CanApproveManager {
		t.Fatal("cross-division manager must not approve")
	}

	vp := &entity.User{ID: "v1", Role: entity.RoleVP}
	if p := Evaluate(vp, req, false); p.CanApproveVP {
		t.Fatal("vp must not act while PENDING_MANAGER")
	}
	req.Status = entity.StatusPendingVP
	if p := Evaluate(vp, req, false); !p.CanApproveVP {
		t.Fatal("vp should approve PENDING_VP")
	}
}

func TestEvaluateITAndDev(t *testing.T) {
	req := &entity.ChangeRequest{CreatedBy: "u1", Status: entity.StatusApproved}
	it := &entity.User{ID: "it1", Role: entity.RoleManagerIT}
	if p := Evaluate(it, req, false); !p.CanAssign {
		t.Fatal("it manager should assign APPROVED")
	}

	req.Status = entity.StatusInProgress
	if p := Evaluate(it, req, false); !p.CanComplete {
		t.Fatal("it manager should complete IN_PROGRESS")
	}

	dev := &entity.User{ID: "d1", Role: entity.RoleDev}
	if p := Evaluate(dev, req, true); !p.CanComplete {
		t.Fatal("assigned dev should complete")
	}
	if p := Evaluate(dev, req, false); p.CanComplete {
		t.Fatal("unassigned dev must not complete")
	}
}

func TestCanDeleteDocument(t *testing.T) {
	owner := &entity.User{ID: "u1", Role: entity.RoleUser}
	req := &entity.ChangeRequest{CreatedBy: "u1", Status: entity.StatusDraft}

	att := &entity.Document{FileType: entity.DocTypeUserAttachment}
	if !CanDeleteDocument(owner, req, att) {
		t.Fatal("owner should delete own attachment while editable")
	}

	for _, ft := range []string{entity.DocTypePDFForm, entity.DocTypePDFApproval} {
		if CanDeleteDocument(owner, req, &entity.Document{FileType: ft}) {
			t.Fatalf("system document %s must never be deletable", ft)
		}
	}

	req.Status = entity.StatusPendingManager
	if CanDeleteDocument(owner, req, att) {
		t.Fatal("attachments locked outside editable statuses")
	}
}

func TestBuildProgress(t *testing.T) {
	req := &entity.ChangeRequest{Status: entity.StatusPendingVP}
	steps := BuildProgress(req, nil)
	if len(steps) != 6 {
		t.Fatalf("expected 6 steps, got %d", len(steps))
	}
	if steps[0].Status != StepDone || steps[1].Status != StepDone {
		t.Fatalf("steps 1-2 should be done: %+v", steps[:2])
	}
	if steps[2].Status != StepCurrent {
		t.Fatalf("step 3 should be current, got %s", steps[2].Status)
	}
	if steps[5].Status != StepPending {
		t.Fatalf("step 6 should be pending, got %s", steps[5].Status)
	}
}

func TestBuildProgressRejectedSkipsRest(t *testing.T) {
	req := &entity.ChangeRequest{Status: entity.StatusRejected}
	logs := []entity.ApprovalLog{
		{Action: entity.ActionSubmitted, FromStatus: entity.StatusDraft, ToStatus: entity.StatusPendingManager},
		{Action: entity.ActionApproved, FromStatus: entity.StatusPendingManager, ToStatus: entity.StatusPendingVP},
		{Action: entity.ActionRejected, FromStatus: entity.StatusPendingVP, ToStatus: entity.StatusRejected},
	}
	steps := BuildProgress(req, logs)
	if steps[2].Status != StepCurrent {
		t.Fatalf("rejection at vp tier should land on step 3, got %s", steps[2].Status)
	}
	for _, s := range steps[3:] {
		if s.Status != StepSkipped {
			t.Fatalf("step %d should be skipped, got %s", s.Step, s.Status)
		}
	}
}

func TestLatestRevisionNote(t *testing.T) {
	logs := []entity.ApprovalLog{
		{Action: entity.ActionRevisionRequested, Notes: "first"},
		{Action: entity.ActionApproved},
		{Action: entity.ActionRevisionRequested, Notes: "second"},
	}
	if got := LatestRevisionNote(logs); got != "second" {
		t.Fatalf("latest revision note = %q", got)
	}
	if got := LatestRevisionNote(nil); got != "" {
		t.Fatalf("empty logs note = %q", got)
	}
}
