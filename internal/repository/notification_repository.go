package repository

import (
	"context"
	"errors"
	"time"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotificationNotFound = errors.New("notification not found")

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	FindByID(ctx context.Context, id string) (*domain.Notification, error)
	ListForUser(ctx context.Context, userID uint, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id string, userID uint) error
	ReadMarkers(ctx context.Context, userID uint) (map[string]bool, error)
	UnreadCount(ctx context.Context, userID uint) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type GormNotificationRepository struct{ db *gorm.DB }

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &GormNotificationRepository{db: db}
}

func (r *GormNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	err := r.db.WithContext(ctx).Create(n).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "notification", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "notification", "create", "success")
	return nil
}

func (r *GormNotificationRepository) FindByID(ctx context.Context, id string) (*domain.Notification, error) {
	var n domain.Notification
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "notification", "find_by_id", "not_found")
			return nil, ErrNotificationNotFound
		}
		observability.RecordRepositoryOperation(ctx, "notification", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "notification", "find_by_id", "success")
	return &n, nil
}

// ListForUser returns global notifications plus those addressed to userID,
// newest first. A non-positive limit returns everything.
func (r *GormNotificationRepository) ListForUser(ctx context.Context, userID uint, limit int) ([]domain.Notification, error) {
	var rows []domain.Notification
	q := r.db.WithContext(ctx).
		Where("is_global = ? OR user_id = ?", true, userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "notification", "list_for_user", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "notification", "list_for_user", "success")
	return rows, nil
}

// MarkRead records a per-recipient marker for global notifications and flips
// IsRead directly for user-scoped ones. The shared global row is never
// mutated.
func (r *GormNotificationRepository) MarkRead(ctx context.Context, id string, userID uint) error {
	n, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if n.IsGlobal {
		marker := domain.NotificationRead{
			NotificationID: id,
			UserID:         userID,
			ReadAt:         time.Now().UTC(),
		}
		err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "notification_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&marker).Error
	} else {
		if n.UserID == nil || *n.UserID != userID {
			return ErrNotificationNotFound
		}
		err = r.db.WithContext(ctx).Model(&domain.Notification{}).
			Where("id = ?", id).
			Update("is_read", true).Error
	}
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "notification", "mark_read", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "notification", "mark_read", "success")
	return nil
}

func (r *GormNotificationRepository) ReadMarkers(ctx context.Context, userID uint) (map[string]bool, error) {
	var markers []domain.NotificationRead
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&markers).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "notification", "read_markers", "error")
		return nil, err
	}
	set := make(map[string]bool, len(markers))
	for _, m := range markers {
		set[m.NotificationID] = true
	}
	observability.RecordRepositoryOperation(ctx, "notification", "read_markers", "success")
	return set, nil
}

// UnreadCount counts global notifications lacking a read marker for userID
// plus unread user-scoped ones.
func (r *GormNotificationRepository) UnreadCount(ctx context.Context, userID uint) (int, error) {
	rows, err := r.ListForUser(ctx, userID, 0)
	if err != nil {
		return 0, err
	}
	markers, err := r.ReadMarkers(ctx, userID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range rows {
		if n.IsGlobal {
			if !markers[n.ID] {
				count++
			}
			continue
		}
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *GormNotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	err := r.db.WithContext(ctx).
		Where("notification_id IN (?)", r.db.Model(&domain.Notification{}).Select("id").Where("created_at < ?", cutoff)).
		Delete(&domain.NotificationRead{}).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "notification", "delete_older_than", "error")
		return 0, err
	}
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&domain.Notification{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "notification", "delete_older_than", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "notification", "delete_older_than", "success")
	return res.RowsAffected, nil
}
