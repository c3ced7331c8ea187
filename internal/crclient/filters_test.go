package crclient

import (
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sagara-io/crflow/internal/cr/entity"
)

func TestParseFiltersDefaults(t *testing.T) {
	f := ParseFilters(url.Values{})
	want := DefaultFilters()
	if f != want {
		t.Fatalf("defaults = %+v, want %+v", f, want)
	}

	values, _ := url.ParseQuery("page=3&status=PENDING_VP&search=printer&sortOrder=asc")
	f = ParseFilters(values)
	if f.Page != 3 || f.Status != entity.StatusPendingVP || f.Search != "printer" || f.SortOrder != "asc" {
		t.Fatalf("parsed = %+v", f)
	}
	if f.SortBy != "createdAt" || f.Limit != 10 {
		t.Fatalf("missing params must fall back to defaults, got %+v", f)
	}
}

func TestQueryStringOmitsDefaults(t *testing.T) {
	if qs := DefaultFilters().QueryString(); qs != "" {
		t.Fatalf("default filters should serialize empty, got %q", qs)
	}

	f := DefaultFilters()
	f.Page = 2
	f.Status = entity.StatusApproved
	qs := f.QueryString()
	if qs != "page=2&status=APPROVED" {
		t.Fatalf("query string = %q", qs)
	}

	// 往返后语义不变
	values, _ := url.ParseQuery(qs)
	if got := ParseFilters(values); got != f {
		t.Fatalf("roundtrip = %+v, want %+v", got, f)
	}
}

func TestMergeResetsPageOnSearchChange(t *testing.T) {
	f := DefaultFilters()
	f.Page = 4

	next := f.Merge(FilterPatch{Search: strPtr("server")})
	if next.Page != 1 {
		t.Fatalf("page = %d, search change must reset to 1", next.Page)
	}
	if next.Search != "server" {
		t.Fatalf("search = %q", next.Search)
	}

	next = f.Merge(FilterPatch{Status: strPtr(entity.StatusRejected)})
	if next.Page != 1 {
		t.Fatalf("page = %d, status change must reset to 1", next.Page)
	}

	// 仅翻页不重置
	page5 := 5
	next = f.Merge(FilterPatch{Page: &page5})
	if next.Page != 5 {
		t.Fatalf("page = %d, want 5", next.Page)
	}

	// 同值补丁不算变化
	next = f.Merge(FilterPatch{Search: strPtr("")})
	if next.Page != 4 {
		t.Fatalf("page = %d, unchanged search must keep page", next.Page)
	}

	// 显式页码优先于重置
	page2 := 2
	next = f.Merge(FilterPatch{Search: strPtr("db"), Page: &page2})
	if next.Page != 2 {
		t.Fatalf("page = %d, explicit page wins", next.Page)
	}
}

func TestDebouncerCoalescesBursts(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var fired int32
	for i := 0; i < 5; i++ {
		d.Trigger(func() { atomic.AddInt32(&fired, 1) })
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("fired = %d, burst must coalesce to one", got)
	}
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var fired int32
	d.Trigger(func() { atomic.AddInt32(&fired, 1) })
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 0 {
		t.Fatalf("fired = %d, stopped debouncer must not fire", got)
	}
}
