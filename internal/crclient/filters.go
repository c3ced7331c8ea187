package crclient

import (
	"net/url"
	"strconv"
	"sync"
	"time"
)

// 搜索输入防抖窗口
const SearchDebounce = 500 * time.Millisecond

// Filters 列表筛选状态，URL 查询参数是唯一事实来源
type Filters struct {
	Page      int
	Limit     int
	Status    string
	Search    string
	SortBy    string
	SortOrder string
}

// DefaultFilters 默认筛选
func DefaultFilters() Filters {
	return Filters{
		Page:      1,
		Limit:     10,
		SortBy:    "createdAt",
		SortOrder: "desc",
	}
}

// ParseFilters 从 URL 查询参数解析，缺省回落默认值
func ParseFilters(values url.Values) Filters {
	f := DefaultFilters()
	if page, err := strconv.Atoi(values.Get("page")); err == nil && page > 0 {
		f.Page = page
	}
	if limit, err := strconv.Atoi(values.Get("limit")); err == nil && limit > 0 {
		f.Limit = limit
	}
	if status := values.Get("status"); status != "" {
		f.Status = status
	}
	if search := values.Get("search"); search != "" {
		f.Search = search
	}
	if sortBy := values.Get("sortBy"); sortBy != "" {
		f.SortBy = sortBy
	}
	if sortOrder := values.Get("sortOrder"); sortOrder != "" {
		f.SortOrder = sortOrder
	}
	return f
}

// Values 序列化回 URL 查询参数，默认值省略
func (f Filters) Values() url.Values {
	values := url.Values{}
	if f.Page > 1 {
		values.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit != 10 && f.Limit > 0 {
		values.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Status != "" {
		values.Set("status", f.Status)
	}
	if f.Search != "" {
		values.Set("search", f.Search)
	}
	if f.SortBy != "" && f.SortBy != "createdAt" {
		values.Set("sortBy", f.SortBy)
	}
	if f.SortOrder != "" && f.SortOrder != "desc" {
		values.Set("sortOrder", f.SortOrder)
	}
	return values
}

// QueryString 规范化查询串，也用作列表缓存键
func (f Filters) QueryString() string {
	return f.Values().Encode()
}

// FilterPatch 局部变更，nil 字段表示不变
type FilterPatch struct {
	Page      *int
	Limit     *int
	Status    *string
	Search    *string
	SortBy    *string
	SortOrder *string
}

// Merge 应用局部变更。改变 search 或 status 且未显式给出 page 时，页码重置为 1。
func (f Filters) Merge(patch FilterPatch) Filters {
	next := f

	searchOrStatusChanged := false
	if patch.Status != nil && *patch.Status != f.Status {
		next.Status = *patch.Status
		searchOrStatusChanged = true
	}
	if patch.Search != nil && *patch.Search != f.Search {
		next.Search = *patch.Search
		searchOrStatusChanged = true
	}
	if patch.Limit != nil {
		next.Limit = *patch.Limit
	}
	if patch.SortBy != nil {
		next.SortBy = *patch.SortBy
	}
	if patch.SortOrder != nil {
		next.SortOrder = *patch.SortOrder
	}

	if patch.Page != nil {
		next.Page = *patch.Page
	} else if searchOrStatusChanged {
		next.Page = 1
	}
	return next
}

// Debouncer 合并窗口期内的重复触发，只执行最后一次
type Debouncer struct {
	mu    sync.Mutex
	wait  time.Duration
	timer *time.Timer
}

// NewDebouncer 创建防抖器
func NewDebouncer(wait time.Duration) *Debouncer {
	return &Debouncer{wait: wait}
}

// Trigger 调度一次执行，窗口内的再次触发取代前一次
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, fn)
}

// Stop 取消未执行的调度
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
