package repository

import (
	"context"
	"errors"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrAlreadySubscribed = errors.New("email already subscribed")

type ContactRepository interface {
	CreateMessage(ctx context.Context, m *domain.ContactMessage) error
	ListMessages(ctx context.Context, limit int) ([]domain.ContactMessage, error)
	Subscribe(ctx context.Context, s *domain.NewsletterSubscriber) error
	ListSubscribers(ctx context.Context) ([]domain.NewsletterSubscriber, error)
}

type GormContactRepository struct{ db *gorm.DB }

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &GormContactRepository{db: db}
}

func (r *GormContactRepository) CreateMessage(ctx context.Context, m *domain.ContactMessage) error {
	err := r.db.WithContext(ctx).Create(m).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "contact", "create_message", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "contact", "create_message", "success")
	return nil
}

func (r *GormContactRepository) ListMessages(ctx context.Context, limit int) ([]domain.ContactMessage, error) {
	var rows []domain.ContactMessage
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "contact", "list_messages", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "contact", "list_messages", "success")
	return rows, nil
}

func (r *GormContactRepository) Subscribe(ctx context.Context, s *domain.NewsletterSubscriber) error {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(s)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "newsletter", "subscribe", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "newsletter", "subscribe", "duplicate")
		return ErrAlreadySubscribed
	}
	observability.RecordRepositoryOperation(ctx, "newsletter", "subscribe", "success")
	return nil
}

func (r *GormContactRepository) ListSubscribers(ctx context.Context) ([]domain.NewsletterSubscriber, error) {
	var rows []domain.NewsletterSubscriber
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "newsletter", "list_subscribers", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "newsletter", "list_subscribers", "success")
	return rows, nil
}
