package crclient

import (
	"context"
)

// Optimistic 可复用的乐观更新原语：
// 先对受影响的缓存键做快照并应用本地补丁，再执行真正的变更；
// 失败时恢复快照并保留缓存，成功时按前缀失效以触发重新拉取。
type Optimistic struct {
	cache *Cache

	// 受影响的键与补丁
	patches []patch

	// 变更成功后要失效的键前缀
	settlePrefixes []string

	snapshots map[Key][]byte
	missing   map[Key]bool
}

type patch struct {
	key   Key
	apply func(*Cache, Key) bool
}

// NewOptimistic 创建一次乐观更新
func NewOptimistic(cache *Cache) *Optimistic {
	return &Optimistic{
		cache:     cache,
		snapshots: make(map[Key][]byte),
		missing:   make(map[Key]bool),
	}
}

// Patch 注册对某键的本地补丁
func (o *Optimistic) Patch(key Key, apply func(*Cache, Key) bool) *Optimistic {
	o.patches = append(o.patches, patch{key: key, apply: apply})
	return o
}

// InvalidateOnSettle 注册变更成功后要失效的前缀
func (o *Optimistic) InvalidateOnSettle(prefixes ...string) *Optimistic {
	o.settlePrefixes = append(o.settlePrefixes, prefixes...)
	return o
}

// Run 执行：快照 -> 本地补丁 -> 变更 -> 成功则失效前缀，失败则回滚。
// 失败路径不做失效：恢复出来的快照必须留在缓存里可继续读取。
func (o *Optimistic) Run(ctx context.Context, mutation func(context.Context) error) error {
	for _, p := range o.patches {
		if snap, ok := o.cache.Snapshot(p.key); ok {
			o.snapshots[p.key] = snap
		} else {
			o.missing[p.key] = true
		}
		p.apply(o.cache, p.key)
	}

	if err := mutation(ctx); err != nil {
		o.rollback()
		return err
	}

	for _, prefix := range o.settlePrefixes {
		o.cache.InvalidatePrefix(prefix)
	}
	return nil
}

func (o *Optimistic) rollback() {
	for _, p := range o.patches {
		if o.missing[p.key] {
			o.cache.Invalidate(p.key)
			continue
		}
		if snap, ok := o.snapshots[p.key]; ok {
			o.cache.Restore(p.key, snap)
		}
	}
}
