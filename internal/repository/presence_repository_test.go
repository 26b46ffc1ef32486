package repository

import (
	"context"
	"testing"
	"time"

	"github.com/devfolio/portfolio-backend/internal/domain"
)

func TestPresenceUpsertKeepsOneRowPerSession(t *testing.T) {
	ctx := context.Background()
	repo := NewPresenceRepository(newTestDB(t))

	hb := domain.Heartbeat{
		SessionID: "session_1700000000000_abcdefghi",
		UserAgent: "test-agent",
		PageURL:   "/blog",
	}
	if err := repo.Upsert(ctx, hb); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := repo.Upsert(ctx, hb); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	stats, err := repo.Stats(ctx, time.Minute)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalOnline != 1 {
		t.Fatalf("expected a single logical row, got %d", stats.TotalOnline)
	}
}

func TestPresenceUpsertUpdatesIdentity(t *testing.T) {
	ctx := context.Background()
	repo := NewPresenceRepository(newTestDB(t))

	hb := domain.Heartbeat{SessionID: "s1", UserAgent: "ua", PageURL: "/"}
	if err := repo.Upsert(ctx, hb); err != nil {
		t.Fatalf("anonymous upsert: %v", err)
	}

	userID := uint(7)
	hb.UserID = &userID
	hb.IsAuthenticated = true
	if err := repo.Upsert(ctx, hb); err != nil {
		t.Fatalf("authenticated upsert: %v", err)
	}

	stats, err := repo.Stats(ctx, time.Minute)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalOnline != 1 || stats.AuthenticatedUsers != 1 || stats.AnonymousUsers != 0 {
		t.Fatalf("expected one authenticated session, got %+v", stats)
	}
}

func TestPresenceStatsSplitsAuthenticatedAndAnonymous(t *testing.T) {
	ctx := context.Background()
	repo := NewPresenceRepository(newTestDB(t))

	userID := uint(1)
	_ = repo.Upsert(ctx, domain.Heartbeat{SessionID: "anon-1", UserAgent: "ua", PageURL: "/"})
	_ = repo.Upsert(ctx, domain.Heartbeat{SessionID: "anon-2", UserAgent: "ua", PageURL: "/about"})
	_ = repo.Upsert(ctx, domain.Heartbeat{SessionID: "auth-1", UserID: &userID, IsAuthenticated: true, UserAgent: "ua", PageURL: "/admin"})

	stats, err := repo.Stats(ctx, time.Minute)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalOnline != 3 || stats.AuthenticatedUsers != 1 || stats.AnonymousUsers != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPresenceDeleteBySessionID(t *testing.T) {
	ctx := context.Background()
	repo := NewPresenceRepository(newTestDB(t))

	_ = repo.Upsert(ctx, domain.Heartbeat{SessionID: "s1", UserAgent: "ua", PageURL: "/"})
	if err := repo.DeleteBySessionID(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	stats, _ := repo.Stats(ctx, time.Minute)
	if stats.TotalOnline != 0 {
		t.Fatalf("expected empty table, got %+v", stats)
	}

	// Deleting an absent session is a no-op.
	if err := repo.DeleteBySessionID(ctx, "missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestPresenceRecentOrdersAndLimits(t *testing.T) {
	ctx := context.Background()
	repo := NewPresenceRepository(newTestDB(t))

	for _, id := range []string{"s1", "s2", "s3"} {
		if err := repo.Upsert(ctx, domain.Heartbeat{SessionID: id, UserAgent: "ua", PageURL: "/"}); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	rows, err := repo.Recent(ctx, 2, time.Minute)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(rows))
	}
	if rows[0].SessionID != "s3" {
		t.Fatalf("expected newest first, got %q", rows[0].SessionID)
	}
}

func TestPresenceReapStale(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewPresenceRepository(db)

	_ = repo.Upsert(ctx, domain.Heartbeat{SessionID: "fresh", UserAgent: "ua", PageURL: "/"})
	stale := domain.OnlineSession{
		SessionID:    "stale",
		UserAgent:    "ua",
		PageURL:      "/",
		LastActivity: time.Now().UTC().Add(-time.Hour),
	}
	if err := db.Create(&stale).Error; err != nil {
		t.Fatalf("seed stale row: %v", err)
	}

	reaped, err := repo.ReapStale(ctx, 2*time.Minute)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if reaped != 1 {
		t.Fatalf("expected one reaped row, got %d", reaped)
	}
	stats, _ := repo.Stats(ctx, time.Minute)
	if stats.TotalOnline != 1 {
		t.Fatalf("expected fresh row to survive, got %+v", stats)
	}
}
