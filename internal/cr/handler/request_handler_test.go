package handler

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sagara-io/crflow/internal/cr/entity"
	"github.com/sagara-io/crflow/internal/cr/repository"
	"github.com/sagara-io/crflow/internal/cr/service"
	"github.com/sagara-io/crflow/internal/cr/sse"
	"github.com/sagara-io/crflow/internal/cr/testutil"
)

func setupRequestTest(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	logger := zap.NewNop()
	hub := sse.NewHub()

	notification := service.NewNotificationService(repos.Notification, repos.User, nil, hub, logger)
	requestSvc := service.NewRequestService(db, repos.Request, repos.User, notification, logger)
	requestHandler := NewRequestHandler(requestSvc)

	r := testutil.SetupRouter()
	api := testutil.AuthGroup(r, "/api/v1")
	api.POST("/requests", requestHandler.Create)
	api.GET("/requests", requestHandler.List)
	api.GET("/requests/:id", requestHandler.Get)
	api.PUT("/requests/:id", requestHandler.Update)
	api.DELETE("/requests/:id", requestHandler.Delete)
	api.GET("/requests/:id/progress", requestHandler.Progress)
	api.POST("/requests/:id/submit", requestHandler.Submit)

	return db, r
}

func TestCreateAndGetRequest(t *testing.T) {
	db, r := setupRequestTest(t)
	owner := testutil.SeedUser(t, db, "Owner", entity.RoleUser, "finance")

	body := map[string]interface{}{
		"title":      "Replace legacy payroll export",
		"background": "The export format is no longer accepted by the bank portal.",
		"objective":  "Produce the new ISO format on the existing schedule.",
	}
	w := testutil.DoRequest(r, "POST", "/api/v1/requests", body, testutil.TokenFor(owner))
	if w.Code != 201 {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	id := data["id"].(string)
	if data["status"] != entity.StatusDraft {
		t.Fatalf("new request status = %v, want DRAFT", data["status"])
	}
	if data["code"] == "" {
		t.Fatal("expected generated code")
	}

	w = testutil.DoRequest(r, "GET", "/api/v1/requests/"+id, nil, testutil.TokenFor(owner))
	if w.Code != 200 {
		t.Fatalf("get status = %d", w.Code)
	}
	resp = testutil.ParseResponse(w)
	detail := resp["data"].(map[string]interface{})
	perms := detail["permissions"].(map[string]interface{})
	if perms["canEdit"] != true || perms["canSubmit"] != true || perms["canDelete"] != true {
		t.Fatalf("draft owner permissions = %v", perms)
	}
}

func TestCreateRequiresTitle(t *testing.T) {
	db, r := setupRequestTest(t)
	owner := testutil.SeedUser(t, db, "Owner", entity.RoleUser, "finance")

	w := testutil.DoRequest(r, "POST", "/api/v1/requests",
		map[string]interface{}{"title": "abc"}, testutil.TokenFor(owner))
	if w.Code != 400 {
		t.Fatalf("short title status = %d, want 400", w.Code)
	}
}

func TestListScopedByRole(t *testing.T) {
	db, r := setupRequestTest(t)

	alice := testutil.SeedUser(t, db, "Alice", entity.RoleUser, "finance")
	bob := testutil.SeedUser(t, db, "Bob", entity.RoleUser, "hr")
	manager := testutil.SeedUser(t, db, "Fin Manager", entity.RoleManager, "finance")

	testutil.SeedRequest(t, db, alice, entity.StatusDraft)
	testutil.SeedRequest(t, db, alice, entity.StatusPendingManager)
	testutil.SeedRequest(t, db, bob, entity.StatusPendingManager)

	// USER 只见自己的
	w := testutil.DoRequest(r, "GET", "/api/v1/requests", nil, testutil.TokenFor(alice))
	if w.Code != 200 {
		t.Fatalf("list status = %d", w.Code)
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	if len(items) != 2 {
		t.Fatalf("alice sees %d requests, want 2", len(items))
	}

	// 经理只见本部门
	w = testutil.DoRequest(r, "GET", "/api/v1/requests", nil, testutil.TokenFor(manager))
	resp = testutil.ParseResponse(w)
	data = resp["data"].(map[string]interface{})
	items = data["items"].([]interface{})
	if len(items) != 2 {
		t.Fatalf("manager sees %d requests, want 2 (finance only)", len(items))
	}
}

func TestListFilterAndSearch(t *testing.T) {
	db, r := setupRequestTest(t)
	owner := testutil.SeedUser(t, db, "Owner", entity.RoleUser, "finance")

	draft := testutil.SeedRequest(t, db, owner, entity.StatusDraft)
	testutil.SeedRequest(t, db, owner, entity.StatusPendingManager)

	w := testutil.DoRequest(r, "GET", "/api/v1/requests?status=DRAFT", nil, testutil.TokenFor(owner))
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("status filter returned %d items, want 1", len(items))
	}

	// 编码搜索大小写不敏感
	w = testutil.DoRequest(r, "GET", "/api/v1/requests?search="+draft.Code, nil, testutil.TokenFor(owner))
	resp = testutil.ParseResponse(w)
	data = resp["data"].(map[string]interface{})
	items = data["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("search returned %d items, want 1", len(items))
	}

	pagination := data["pagination"].(map[string]interface{})
	if pagination["page"].(float64) != 1 {
		t.Fatalf("pagination page = %v", pagination["page"])
	}
}

func TestUpdateOnlyWhileEditable(t *testing.T) {
	db, r := setupRequestTest(t)
	owner := testutil.SeedUser(t, db, "Owner", entity.RoleUser, "finance")
	other := testutil.SeedUser(t, db, "Other", entity.RoleUser, "finance")

	req := testutil.SeedRequest(t, db, owner, entity.StatusDraft)
	body := map[string]interface{}{
		"title":      "Updated title for the request",
		"background": "updated",
		"objective":  "updated",
	}

	// 非所有者
	w := testutil.DoRequest(r, "PUT", "/api/v1/requests/"+req.ID, body, testutil.TokenFor(other))
	if w.Code != 403 {
		t.Fatalf("non-owner update status = %d, want 403", w.Code)
	}

	// 所有者草稿可改
	w = testutil.DoRequest(r, "PUT", "/api/v1/requests/"+req.ID, body, testutil.TokenFor(owner))
	if w.Code != 200 {
		t.Fatalf("owner update status = %d, body = %s", w.Code, w.Body.String())
	}

	// 审批中锁定
	db.Model(&entity.ChangeRequest{}).Where("id = ?", req.ID).Update("status", entity.StatusPendingManager)
	w = testutil.DoRequest(r, "PUT", "/api/v1/requests/"+req.ID, body, testutil.TokenFor(owner))
	if w.Code != 403 {
		t.Fatalf("locked update status = %d, want 403", w.Code)
	}
}

func TestDeleteDraftOnly(t *testing.T) {
	db, r := setupRequestTest(t)
	owner := testutil.SeedUser(t, db, "Owner", entity.RoleUser, "finance")

	pending := testutil.SeedRequest(t, db, owner, entity.StatusPendingManager)
	w := testutil.DoRequest(r, "DELETE", "/api/v1/requests/"+pending.ID, nil, testutil.TokenFor(owner))
	if w.Code != 403 {
		t.Fatalf("delete pending status = %d, want 403", w.Code)
	}

	draft := testutil.SeedRequest(t, db, owner, entity.StatusDraft)
	w = testutil.DoRequest(r, "DELETE", "/api/v1/requests/"+draft.ID, nil, testutil.TokenFor(owner))
	if w.Code != 200 {
		t.Fatalf("delete draft status = %d", w.Code)
	}

	var count int64
	db.Model(&entity.ChangeRequest{}).Where("id = ?", draft.ID).Count(&count)
	if count != 0 {
		t.Fatal("draft not deleted")
	}
}

func TestProgressEndpoint(t *testing.T) {
	db, r := setupRequestTest(t)
	owner := testutil.SeedUser(t, db, "Owner", entity.RoleUser, "finance")
	req := testutil.SeedRequest(t, db, owner, entity.StatusPendingVP)

	w := testutil.DoRequest(r, "GET", "/api/v1/requests/"+req.ID+"/progress", nil, testutil.TokenFor(owner))
	if w.Code != 200 {
		t.Fatalf("progress status = %d", w.Code)
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["currentStatus"] != entity.StatusPendingVP {
		t.Fatalf("currentStatus = %v", data["currentStatus"])
	}
	steps := data["steps"].([]interface{})
	if len(steps) != 6 {
		t.Fatalf("steps = %d, want 6", len(steps))
	}
}

func TestSubmitRejectsPastTargetDate(t *testing.T) {
	db, r := setupRequestTest(t)
	owner := testutil.SeedUser(t, db, "Owner", entity.RoleUser, "finance")
	req := testutil.SeedRequest(t, db, owner, entity.StatusDraft)

	yesterday := time.Now().AddDate(0, 0, -1)
	if err := db.Model(&entity.ChangeRequest{}).Where("id = ?", req.ID).
		Update("target_date", yesterday).Error; err != nil {
		t.Fatalf("set target date: %v", err)
	}

	w := testutil.DoRequest(r, "POST", "/api/v1/requests/"+req.ID+"/submit", nil, testutil.TokenFor(owner))
	if w.Code != 400 {
		t.Fatalf("past target date submit status = %d, body = %s", w.Code, w.Body.String())
	}

	// 当天也不算未来日期
	if err := db.Model(&entity.ChangeRequest{}).Where("id = ?", req.ID).
		Update("target_date", time.Now()).Error; err != nil {
		t.Fatalf("set target date: %v", err)
	}
	w = testutil.DoRequest(r, "POST", "/api/v1/requests/"+req.ID+"/submit", nil, testutil.TokenFor(owner))
	if w.Code != 400 {
		t.Fatalf("same-day target date submit status = %d, want 400", w.Code)
	}

	nextWeek := time.Now().AddDate(0, 0, 7)
	if err := db.Model(&entity.ChangeRequest{}).Where("id = ?", req.ID).
		Update("target_date", nextWeek).Error; err != nil {
		t.Fatalf("set target date: %v", err)
	}
	w = testutil.DoRequest(r, "POST", "/api/v1/requests/"+req.ID+"/submit", nil, testutil.TokenFor(owner))
	if w.Code != 200 {
		t.Fatalf("future target date submit status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	_, r := setupRequestTest(t)
	w := testutil.DoRequest(r, "GET", "/api/v1/requests", nil, "")
	if w.Code != 401 {
		t.Fatalf("unauthenticated status = %d, want 401", w.Code)
	}
}
