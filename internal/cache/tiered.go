package cache

import (
	"context"
	"time"
)

// Tiered reads through the memory tier first, then the persistent tier, then
// a loader, writing results back into both tiers. The tiers hold independent
// TTLs and are allowed to diverge within them; the write-back on load is the
// only point where they agree.
type Tiered struct {
	memory        Store
	persistent    Store
	memoryTTL     time.Duration
	persistentTTL time.Duration
}

func NewTiered(memory, persistent Store, memoryTTL, persistentTTL time.Duration) *Tiered {
	return &Tiered{
		memory:        memory,
		persistent:    persistent,
		memoryTTL:     memoryTTL,
		persistentTTL: persistentTTL,
	}
}

// Get consults memory then the persistent tier. A persistent-tier hit is
// promoted into memory. Persistent-tier errors are surfaced so the caller can
// decide whether to fall through to its loader.
func (t *Tiered) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok, err := t.memory.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}
	if t.persistent == nil {
		return "", false, nil
	}
	v, ok, err := t.persistent.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	_ = t.memory.Set(ctx, key, v, t.memoryTTL)
	return v, true, nil
}

// GetOrLoad returns the cached value or invokes loader, writing a successful
// result through both tiers.
func (t *Tiered) GetOrLoad(ctx context.Context, key string, loader func(ctx context.Context) (string, error)) (string, error) {
	if v, ok, err := t.Get(ctx, key); err == nil && ok {
		return v, nil
	}
	v, err := loader(ctx)
	if err != nil {
		return "", err
	}
	t.Set(ctx, key, v)
	return v, nil
}

func (t *Tiered) Set(ctx context.Context, key, value string) {
	_ = t.memory.Set(ctx, key, value, t.memoryTTL)
	if t.persistent != nil {
		_ = t.persistent.Set(ctx, key, value, t.persistentTTL)
	}
}

func (t *Tiered) Delete(ctx context.Context, key string) {
	_ = t.memory.Delete(ctx, key)
	if t.persistent != nil {
		_ = t.persistent.Delete(ctx, key)
	}
}

func (t *Tiered) Clear(ctx context.Context) {
	_ = t.memory.Clear(ctx)
	if t.persistent != nil {
		_ = t.persistent.Clear(ctx)
	}
}
