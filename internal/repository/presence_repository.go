package repository

import (
	"context"
	"time"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PresenceRepository owns the online_sessions table. Upsert semantics keep
// the at-most-one-row-per-session invariant; conflict resolution happens in
// the database, not in callers.
type PresenceRepository interface {
	Upsert(ctx context.Context, hb domain.Heartbeat) error
	Stats(ctx context.Context, staleAfter time.Duration) (domain.PresenceStats, error)
	Recent(ctx context.Context, limit int, staleAfter time.Duration) ([]domain.OnlineSession, error)
	DeleteBySessionID(ctx context.Context, sessionID string) error
	ReapStale(ctx context.Context, staleAfter time.Duration) (int64, error)
}

type GormPresenceRepository struct{ db *gorm.DB }

func NewPresenceRepository(db *gorm.DB) PresenceRepository {
	return &GormPresenceRepository{db: db}
}

func (r *GormPresenceRepository) Upsert(ctx context.Context, hb domain.Heartbeat) error {
	row := domain.OnlineSession{
		SessionID:       hb.SessionID,
		UserID:          hb.UserID,
		IPAddress:       hb.IPAddress,
		UserAgent:       hb.UserAgent,
		PageURL:         hb.PageURL,
		IsAuthenticated: hb.IsAuthenticated,
		LastActivity:    time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "ip_address", "user_agent", "page_url", "is_authenticated", "last_activity",
		}),
	}).Create(&row).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "presence", "upsert", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "presence", "upsert", "success")
	return nil
}

func (r *GormPresenceRepository) Stats(ctx context.Context, staleAfter time.Duration) (domain.PresenceStats, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	var stats domain.PresenceStats

	var total, authenticated int64
	if err := r.db.WithContext(ctx).Model(&domain.OnlineSession{}).
		Where("last_activity > ?", cutoff).
		Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "presence", "stats", "error")
		return stats, err
	}
	if err := r.db.WithContext(ctx).Model(&domain.OnlineSession{}).
		Where("last_activity > ? AND is_authenticated = ?", cutoff, true).
		Count(&authenticated).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "presence", "stats", "error")
		return stats, err
	}

	stats.TotalOnline = int(total)
	stats.AuthenticatedUsers = int(authenticated)
	stats.AnonymousUsers = int(total - authenticated)
	observability.RecordRepositoryOperation(ctx, "presence", "stats", "success")
	return stats, nil
}

func (r *GormPresenceRepository) Recent(ctx context.Context, limit int, staleAfter time.Duration) ([]domain.OnlineSession, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	var rows []domain.OnlineSession
	err := r.db.WithContext(ctx).
		Where("last_activity > ?", cutoff).
		Order("last_activity DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "presence", "recent", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "presence", "recent", "success")
	return rows, nil
}

func (r *GormPresenceRepository) DeleteBySessionID(ctx context.Context, sessionID string) error {
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&domain.OnlineSession{}).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "presence", "delete_by_session_id", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "presence", "delete_by_session_id", "success")
	return nil
}

func (r *GormPresenceRepository) ReapStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	res := r.db.WithContext(ctx).
		Where("last_activity <= ?", cutoff).
		Delete(&domain.OnlineSession{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "presence", "reap_stale", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "presence", "reap_stale", "success")
	return res.RowsAffected, nil
}
