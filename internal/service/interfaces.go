package service

import (
	"context"

	"github.com/devfolio/portfolio-backend/internal/domain"
)

// RoleResolver answers "what role does this user hold" behind whatever
// caching the implementation chooses.
type RoleResolver interface {
	ResolveRole(ctx context.Context, userID uint) (string, error)
	InvalidateUser(ctx context.Context, userID uint)
	InvalidateAll(ctx context.Context)
}

// PresenceWriter is the write side of the remote presence store.
type PresenceWriter interface {
	Upsert(ctx context.Context, hb domain.Heartbeat) error
	DeleteBySessionID(ctx context.Context, sessionID string) error
}

// InsertPublisher announces new rows on the change stream.
type InsertPublisher interface {
	PublishInsert(ctx context.Context, table string, payload any) error
}
