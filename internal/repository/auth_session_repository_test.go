package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devfolio/portfolio-backend/internal/domain"
)

func TestAuthSessionCleanupExpired(t *testing.T) {
	repo := NewAuthSessionRepository(newTestDB(t))
	ctx := context.Background()

	seed := func(hash string, expiresAt time.Time) {
		t.Helper()
		s := &domain.AuthSession{UserID: 1, RefreshTokenHash: hash, ExpiresAt: expiresAt}
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("seed session: %v", err)
		}
	}
	seed("hash-expired", time.Now().UTC().Add(-time.Minute))
	seed("hash-live", time.Now().UTC().Add(time.Hour))

	n, err := repo.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("cleanup removed %d rows, want 1", n)
	}
	if _, err := repo.FindByHash(ctx, "hash-expired"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("expired session still findable")
	}
	if _, err := repo.FindByHash(ctx, "hash-live"); err != nil {
		t.Fatalf("live session removed: %v", err)
	}
}
