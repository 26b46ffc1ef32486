package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryGetWithinTTL(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	if err := m.Set(ctx, "role:42", "admin", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := m.Get(ctx, "role:42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || v != "admin" {
		t.Fatalf("expected hit with admin, got ok=%v v=%q", ok, v)
	}
}

func TestMemoryLazyExpiry(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	if err := m.Set(ctx, "role:42", "admin", 25*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	// No Cleanup has run; Get itself must evict and miss.
	_, ok, err := m.Get(ctx, "role:42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected expired entry to miss")
	}
	if m.Len() != 0 {
		t.Fatalf("expected lazy eviction to remove entry, %d resident", m.Len())
	}
}

func TestMemoryCleanupEvictsExpired(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	_ = m.Set(ctx, "short", "a", 10*time.Millisecond)
	_ = m.Set(ctx, "long", "b", time.Minute)
	time.Sleep(25 * time.Millisecond)

	if err := m.Cleanup(ctx); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("expected one surviving entry, got %d", m.Len())
	}
	if ok, _ := m.Has(ctx, "long"); !ok {
		t.Fatal("expected unexpired entry to survive cleanup")
	}
}

func TestMemoryClearAndDelete(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	_ = m.Set(ctx, "a", "1", time.Minute)
	_ = m.Set(ctx, "b", "2", time.Minute)
	_ = m.Delete(ctx, "a")
	if ok, _ := m.Has(ctx, "a"); ok {
		t.Fatal("expected deleted key to miss")
	}
	_ = m.Clear(ctx)
	if m.Len() != 0 {
		t.Fatal("expected clear to drop all entries")
	}
}

func TestMemoryZeroTTLIgnored(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	_ = m.Set(ctx, "a", "1", 0)
	if ok, _ := m.Has(ctx, "a"); ok {
		t.Fatal("expected zero-ttl set to store nothing")
	}
}

func TestTieredPromotesPersistentHit(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0)
	defer mem.Close()
	persistent := NewMemory(0)
	defer persistent.Close()
	tiered := NewTiered(mem, persistent, time.Minute, time.Hour)

	_ = persistent.Set(ctx, "role:7", "editor", time.Hour)

	v, ok, err := tiered.Get(ctx, "role:7")
	if err != nil || !ok || v != "editor" {
		t.Fatalf("expected persistent-tier hit, got v=%q ok=%v err=%v", v, ok, err)
	}
	if ok, _ := mem.Has(ctx, "role:7"); !ok {
		t.Fatal("expected hit to be promoted into memory tier")
	}
}

func TestTieredGetOrLoadWritesBothTiers(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0)
	defer mem.Close()
	persistent := NewMemory(0)
	defer persistent.Close()
	tiered := NewTiered(mem, persistent, time.Minute, time.Hour)

	loads := 0
	loader := func(context.Context) (string, error) {
		loads++
		return "admin", nil
	}

	v, err := tiered.GetOrLoad(ctx, "role:1", loader)
	if err != nil || v != "admin" {
		t.Fatalf("load: v=%q err=%v", v, err)
	}
	if _, err := tiered.GetOrLoad(ctx, "role:1", loader); err != nil {
		t.Fatalf("cached load: %v", err)
	}
	if loads != 1 {
		t.Fatalf("expected a single loader invocation, got %d", loads)
	}
	if ok, _ := persistent.Has(ctx, "role:1"); !ok {
		t.Fatal("expected write-through to persistent tier")
	}
}

func TestTieredLoaderErrorPropagates(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0)
	defer mem.Close()
	tiered := NewTiered(mem, nil, time.Minute, time.Hour)

	wantErr := errors.New("remote lookup failed")
	_, err := tiered.GetOrLoad(ctx, "role:9", func(context.Context) (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if ok, _ := mem.Has(ctx, "role:9"); ok {
		t.Fatal("failed load must not poison the cache")
	}
}

func TestTieredDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0)
	defer mem.Close()
	persistent := NewMemory(0)
	defer persistent.Close()
	tiered := NewTiered(mem, persistent, time.Minute, time.Hour)

	tiered.Set(ctx, "a", "1")
	tiered.Delete(ctx, "a")
	if _, ok, _ := tiered.Get(ctx, "a"); ok {
		t.Fatal("expected delete to clear both tiers")
	}

	tiered.Set(ctx, "b", "2")
	tiered.Clear(ctx)
	if _, ok, _ := tiered.Get(ctx, "b"); ok {
		t.Fatal("expected clear to drop both tiers")
	}
}
