package handler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sagara-io/crflow/internal/cr/entity"
	"github.com/sagara-io/crflow/internal/cr/repository"
	"github.com/sagara-io/crflow/internal/cr/service"
	"github.com/sagara-io/crflow/internal/cr/sse"
	"github.com/sagara-io/crflow/internal/cr/testutil"
	"github.com/sagara-io/crflow/internal/cr/workflow"
	"github.com/sagara-io/crflow/internal/middleware"
)

func setupApprovalTest(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	logger := zap.NewNop()
	hub := sse.NewHub()

	notification := service.NewNotificationService(repos.Notification, repos.User, nil, hub, logger)
	document := service.NewDocumentService(repos.Document, repos.Request, nil, "test-bucket", logger)
	requestSvc := service.NewRequestService(db, repos.Request, repos.User, notification, logger)
	approvalSvc := service.NewApprovalService(db, repos.Request, repos.User, repos.Document, notification, document, hub, logger)

	requestHandler := NewRequestHandler(requestSvc)
	approvalHandler := NewApprovalHandler(approvalSvc)

	r := testutil.SetupRouter()
	api := testutil.AuthGroup(r, "/api/v1")
	api.POST("/requests/:id/submit", requestHandler.Submit)
	api.POST("/requests/:id/resubmit", requestHandler.Resubmit)
	api.GET("/requests/:id", requestHandler.Get)
	api.POST("/approval/:id/:role/:action", approvalHandler.Process)
	api.POST("/approval/:id/assign", approvalHandler.Assign)
	api.POST("/approval/:id/complete",
		middleware.RequireRole(entity.RoleDev, entity.RoleManagerIT), approvalHandler.Complete)

	return db, r
}

func longNotes(prefix string) string {
	return prefix + ": " + strings.Repeat("the requirement needs clarification ", 3)
}

func TestFullApprovalFlow(t *testing.T) {
	db, r := setupApprovalTest(t)

	owner := testutil.SeedUser(t, db, "Owner", entity.RoleUser, "finance")
	manager := testutil.SeedUser(t, db, "Manager", entity.RoleManager, "finance")
	vp := testutil.SeedUser(t, db, "VP", entity.RoleVP, "")
	itManager := testutil.SeedUser(t, db, "IT Manager", entity.RoleManagerIT, "it")
	dev := testutil.SeedUser(t, db, "Dev", entity.RoleDev, "it")

	req := testutil.SeedRequest(t, db, owner, entity.StatusDraft)

	// 提交
	w := testutil.DoRequest(r, "POST", "/api/v1/requests/"+req.ID+"/submit", nil, testutil.TokenFor(owner))
	if w.Code != 200 {
		t.Fatalf("submit status = %d, body = %s", w.Code, w.Body.String())
	}

	// 经理批准
	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/manager/approve", nil, testutil.TokenFor(manager))
	if w.Code != 200 {
		t.Fatalf("manager approve status = %d, body = %s", w.Code, w.Body.String())
	}

	var stored entity.ChangeRequest
	if err := db.First(&stored, "id = ?", req.ID).Error; err != nil {
		t.Fatalf("load request: %v", err)
	}
	if stored.Status != entity.StatusPendingVP {
		t.Fatalf("status after manager approve = %s, want PENDING_VP", stored.Status)
	}

	// VP 批准，生成归档文档
	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/vp/approve", nil, testutil.TokenFor(vp))
	if w.Code != 200 {
		t.Fatalf("vp approve status = %d, body = %s", w.Code, w.Body.String())
	}
	db.First(&stored, "id = ?", req.ID)
	if stored.Status != entity.StatusApproved {
		t.Fatalf("status after vp approve = %s, want APPROVED", stored.Status)
	}

	var docs []entity.Document
	db.Where("request_id = ?", req.ID).Find(&docs)
	types := map[string]bool{}
	for _, d := range docs {
		types[d.FileType] = true
	}
	if !types[entity.DocTypePDFForm] || !types[entity.DocTypePDFApproval] {
		t.Fatalf("expected generated PDF documents, got %v", types)
	}

	// 分派开发
	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/assign",
		map[string]interface{}{"developerIds": []string{dev.ID}, "notes": "standard rollout"},
		testutil.TokenFor(itManager))
	if w.Code != 200 {
		t.Fatalf("assign status = %d, body = %s", w.Code, w.Body.String())
	}
	db.First(&stored, "id = ?", req.ID)
	if stored.Status != entity.StatusInProgress {
		t.Fatalf("status after assign = %s, want IN_PROGRESS", stored.Status)
	}

	// 开发完成
	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/complete", nil, testutil.TokenFor(dev))
	if w.Code != 200 {
		t.Fatalf("complete status = %d, body = %s", w.Code, w.Body.String())
	}
	db.First(&stored, "id = ?", req.ID)
	if stored.Status != entity.StatusCompleted {
		t.Fatalf("final status = %s, want COMPLETED", stored.Status)
	}

	var logs []entity.ApprovalLog
	db.Where("request_id = ?", req.ID).Order("created_at ASC").Find(&logs)
	if len(logs) != 5 {
		t.Fatalf("expected 5 approval logs, got %d", len(logs))
	}
}

func TestRejectRequiresLongNotes(t *testing.T) {
	db, r := setupApprovalTest(t)

	owner := testutil.SeedUser(t, db, "Owner", entity.RoleUser, "finance")
	manager := testutil.SeedUser(t, db, "Manager", entity.RoleManager, "finance")
	req := testutil.SeedRequest(t, db, owner, entity.StatusPendingManager)

	// 说明过短
	w := testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/manager/reject",
		map[string]string{"notes": "too short"}, testutil.TokenFor(manager))
	if w.Code != 400 {
		t.Fatalf("short notes status = %d, want 400", w.Code)
	}

	var stored entity.ChangeRequest
	db.First(&stored, "id = ?", req.ID)
	if stored.Status != entity.StatusPendingManager {
		t.Fatalf("status changed despite validation failure: %s", stored.Status)
	}

	// 合规说明
	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/manager/reject",
		map[string]string{"notes": longNotes("reject")}, testutil.TokenFor(manager))
	if w.Code != 200 {
		t.Fatalf("reject status = %d, body = %s", w.Code, w.Body.String())
	}
	db.First(&stored, "id = ?", req.ID)
	if stored.Status != entity.StatusRejected {
		t.Fatalf("status = %s, want REJECTED", stored.Status)
	}
}

func TestRevisionIncrementsCounters(t *testing.T) {
	db, r := setupApprovalTest(t)

	owner := testutil.SeedUser(t, db, "Owner", entity.RoleUser, "finance")
	manager := testutil.SeedUser(t, db, "Manager", entity.RoleManager, "finance")
	req := testutil.SeedRequest(t, db, owner, entity.StatusPendingManager)

	w := testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/manager/revision",
		map[string]string{"notes": longNotes("revision")}, testutil.TokenFor(manager))
	if w.Code != 200 {
		t.Fatalf("revision status = %d, body = %s", w.Code, w.Body.String())
	}

	var stored entity.ChangeRequest
	db.First(&stored, "id = ?", req.ID)
	if stored.Status != entity.StatusRevisionByManager {
		t.Fatalf("status = %s, want REVISION_REQUESTED_BY_MANAGER", stored.Status)
	}
	// 计数在重新提交时递增，而不是在请求修订时
	if stored.ManagerRevisionCount != 0 || stored.RevisionCount != 0 {
		t.Fatalf("counters before resubmit = (%d, %d), want (0, 0)",
			stored.ManagerRevisionCount, stored.RevisionCount)
	}

	w = testutil.DoRequest(r, "POST", "/api/v1/requests/"+req.ID+"/resubmit", nil, testutil.TokenFor(owner))
	if w.Code != 200 {
		t.Fatalf("resubmit status = %d, body = %s", w.Code, w.Body.String())
	}
	db.First(&stored, "id = ?", req.ID)
	if stored.Status != entity.StatusPendingManager {
		t.Fatalf("status after resubmit = %s, want PENDING_MANAGER", stored.Status)
	}
	if stored.ManagerRevisionCount != 1 || stored.RevisionCount != 1 {
		t.Fatalf("counters after resubmit = (%d, %d), want (1, 1)",
			stored.ManagerRevisionCount, stored.RevisionCount)
	}
	if stored.VPRevisionCount != 0 {
		t.Fatalf("vp counter must stay 0, got %d", stored.VPRevisionCount)
	}
}

func TestRevisionCapBlocksFurtherRevisions(t *testing.T) {
	db, r := setupApprovalTest(t)

	owner := testutil.SeedUser(t, db, "Owner", entity.RoleUser, "finance")
	manager := testutil.SeedUser(t, db, "Manager", entity.RoleManager, "finance")
	req := testutil.SeedRequest(t, db, owner, entity.StatusPendingManager)

	db.Model(&entity.ChangeRequest{}).Where("id = ?", req.ID).
		Update("manager_revision_count", workflow.MaxManagerRevisions)

	w := testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/manager/revision",
		map[string]string{"notes": longNotes("cap")}, testutil.TokenFor(manager))
	if w.Code != 409 {
		t.Fatalf("revision at cap status = %d, want 409, body = %s", w.Code, w.Body.String())
	}

	// 上限只挡 revision，approve 仍可用
	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/manager/approve", nil, testutil.TokenFor(manager))
	if w.Code != 200 {
		t.Fatalf("approve at cap status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestApprovalTierAndRoleGuards(t *testing.T) {
	db, r := setupApprovalTest(t)

	owner := testutil.SeedUser(t, db, "Owner", entity.RoleUser, "finance")
	manager := testutil.SeedUser(t, db, "Manager", entity.RoleManager, "finance")
	otherManager := testutil.SeedUser(t, db, "Other Manager", entity.RoleManager, "hr")
	vp := testutil.SeedUser(t, db, "VP", entity.RoleVP, "")
	req := testutil.SeedRequest(t, db, owner, entity.StatusPendingManager)

	// VP 不能在经理层动作
	w := testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/manager/approve", nil, testutil.TokenFor(vp))
	if w.Code != 403 {
		t.Fatalf("vp acting as manager status = %d, want 403", w.Code)
	}

	// 跨部门经理不能审批
	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/manager/approve", nil, testutil.TokenFor(otherManager))
	if w.Code != 403 {
		t.Fatalf("cross-division manager status = %d, want 403", w.Code)
	}

	// 经理不能直接在VP层动作
	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/vp/approve", nil, testutil.TokenFor(manager))
	if w.Code != 403 {
		t.Fatalf("manager acting as vp status = %d, want 403", w.Code)
	}

	// 状态不匹配 -> 409
	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/manager/approve", nil, testutil.TokenFor(manager))
	if w.Code != 200 {
		t.Fatalf("legit approve status = %d", w.Code)
	}
	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/manager/approve", nil, testutil.TokenFor(manager))
	if w.Code != 409 {
		t.Fatalf("double approve status = %d, want 409, body = %s", w.Code, w.Body.String())
	}

	// 非法动作名 -> 400
	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/manager/escalate", nil, testutil.TokenFor(manager))
	if w.Code != 400 {
		t.Fatalf("unknown action status = %d, want 400", w.Code)
	}
}

func TestAssignValidation(t *testing.T) {
	db, r := setupApprovalTest(t)

	owner := testutil.SeedUser(t, db, "Owner", entity.RoleUser, "finance")
	itManager := testutil.SeedUser(t, db, "IT Manager", entity.RoleManagerIT, "it")
	notDev := testutil.SeedUser(t, db, "Accountant", entity.RoleUser, "finance")
	req := testutil.SeedRequest(t, db, owner, entity.StatusApproved)

	// 空名单
	w := testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/assign",
		map[string]interface{}{"developerIds": []string{}}, testutil.TokenFor(itManager))
	if w.Code != 400 {
		t.Fatalf("empty developer list status = %d, want 400", w.Code)
	}

	// 非开发角色
	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/assign",
		map[string]interface{}{"developerIds": []string{notDev.ID}}, testutil.TokenFor(itManager))
	if w.Code != 500 && w.Code != 400 {
		t.Fatalf("non-dev assignment status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if fmt.Sprintf("%v", resp["message"]) == "" {
		t.Fatal("expected error message for non-dev assignment")
	}

	// 所有者不能分派
	dev := testutil.SeedUser(t, db, "Dev", entity.RoleDev, "it")
	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/assign",
		map[string]interface{}{"developerIds": []string{dev.ID}}, testutil.TokenFor(owner))
	if w.Code != 403 {
		t.Fatalf("owner assigning status = %d, want 403", w.Code)
	}
}

func TestCompleteGuards(t *testing.T) {
	db, r := setupApprovalTest(t)

	owner := testutil.SeedUser(t, db, "Owner", entity.RoleUser, "finance")
	dev := testutil.SeedUser(t, db, "Dev", entity.RoleDev, "it")
	outsider := testutil.SeedUser(t, db, "Outsider Dev", entity.RoleDev, "it")
	req := testutil.SeedRequest(t, db, owner, entity.StatusInProgress)

	db.Create(&entity.DeveloperAssignment{
		ID:          "assign-test-0001",
		RequestID:   req.ID,
		DeveloperID: dev.ID,
		AssignedBy:  "seed",
		Active:      true,
	})

	// 未被分派的开发不能完成
	w := testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/complete", nil, testutil.TokenFor(outsider))
	if w.Code != 403 {
		t.Fatalf("unassigned dev complete status = %d, want 403", w.Code)
	}

	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/complete", nil, testutil.TokenFor(dev))
	if w.Code != 200 {
		t.Fatalf("assigned dev complete status = %d, body = %s", w.Code, w.Body.String())
	}

	// 终态不可重复完成
	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/complete", nil, testutil.TokenFor(dev))
	if w.Code != 409 {
		t.Fatalf("double complete status = %d, want 409", w.Code)
	}
}

func TestCompleteAllowedForITManager(t *testing.T) {
	db, r := setupApprovalTest(t)

	owner := testutil.SeedUser(t, db, "Owner", entity.RoleUser, "finance")
	itManager := testutil.SeedUser(t, db, "IT Manager", entity.RoleManagerIT, "it")
	req := testutil.SeedRequest(t, db, owner, entity.StatusInProgress)

	// 角色守卫拦截普通用户
	w := testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/complete", nil, testutil.TokenFor(owner))
	if w.Code != 403 {
		t.Fatalf("user complete status = %d, want 403", w.Code)
	}

	// IT经理无需分派即可代为完成
	w = testutil.DoRequest(r, "POST", "/api/v1/approval/"+req.ID+"/complete", nil, testutil.TokenFor(itManager))
	if w.Code != 200 {
		t.Fatalf("it manager complete status = %d, body = %s", w.Code, w.Body.String())
	}
	var updated entity.ChangeRequest
	if err := db.First(&updated, "id = ?", req.ID).Error; err != nil {
		t.Fatalf("reload request: %v", err)
	}
	if updated.Status != entity.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", updated.Status)
	}
}
