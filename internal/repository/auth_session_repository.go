package repository

import (
	"context"
	"errors"
	"time"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/observability"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

type AuthSessionRepository interface {
	Create(ctx context.Context, s *domain.AuthSession) error
	FindByHash(ctx context.Context, hash string) (*domain.AuthSession, error)
	RevokeByHash(ctx context.Context, hash string) error
	RevokeByUserID(ctx context.Context, userID uint) error
	CleanupExpired(ctx context.Context) (int64, error)
}

type GormAuthSessionRepository struct{ db *gorm.DB }

func NewAuthSessionRepository(db *gorm.DB) AuthSessionRepository {
	return &GormAuthSessionRepository{db: db}
}

func (r *GormAuthSessionRepository) Create(ctx context.Context, s *domain.AuthSession) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "auth_session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "auth_session", "create", "success")
	return nil
}

func (r *GormAuthSessionRepository) FindByHash(ctx context.Context, hash string) (*domain.AuthSession, error) {
	var s domain.AuthSession
	err := r.db.WithContext(ctx).Where("refresh_token_hash = ?", hash).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "auth_session", "find_by_hash", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "auth_session", "find_by_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "auth_session", "find_by_hash", "success")
	return &s, nil
}

func (r *GormAuthSessionRepository) RevokeByHash(ctx context.Context, hash string) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&domain.AuthSession{}).
		Where("refresh_token_hash = ? AND revoked_at IS NULL", hash).
		Update("revoked_at", now).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "auth_session", "revoke_by_hash", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "auth_session", "revoke_by_hash", "success")
	return nil
}

func (r *GormAuthSessionRepository) RevokeByUserID(ctx context.Context, userID uint) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&domain.AuthSession{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", now).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "auth_session", "revoke_by_user_id", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "auth_session", "revoke_by_user_id", "success")
	return nil
}

func (r *GormAuthSessionRepository) CleanupExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", time.Now().UTC()).Delete(&domain.AuthSession{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "auth_session", "cleanup_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "auth_session", "cleanup_expired", "success")
	return res.RowsAffected, nil
}
