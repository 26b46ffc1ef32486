package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/events"
	"github.com/devfolio/portfolio-backend/internal/observability"
	"github.com/devfolio/portfolio-backend/internal/repository"
)

var ErrNotificationForbidden = errors.New("notification creation requires an editor role")

// CreateNotificationInput is the caller-facing shape; ID and CreatedAt are
// assigned here.
type CreateNotificationInput struct {
	Title       string
	Message     string
	Type        domain.NotificationType
	Priority    domain.NotificationPriority
	IsGlobal    bool
	UserID      *uint
	Metadata    string
	ActionURL   string
	ActionLabel string
}

// NotificationService persists notifications and announces each insert on the
// event bus so relays pick it up.
type NotificationService struct {
	repo   repository.NotificationRepository
	bus    InsertPublisher
	logger *slog.Logger
}

func NewNotificationService(repo repository.NotificationRepository, bus InsertPublisher, logger *slog.Logger) *NotificationService {
	return &NotificationService{repo: repo, bus: bus, logger: logger}
}

// Create stores the notification and publishes it. creatorRole gates the
// operation: only editors and admins may create notifications. System-driven
// inserts pass domain.RoleAdmin.
func (s *NotificationService) Create(ctx context.Context, creatorRole string, in CreateNotificationInput) (*domain.Notification, error) {
	if !domain.IsEditor(creatorRole) {
		observability.RecordNotificationEvent(ctx, "create", "forbidden")
		return nil, ErrNotificationForbidden
	}
	n := &domain.Notification{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Message:     in.Message,
		Type:        in.Type,
		Priority:    in.Priority,
		IsGlobal:    in.IsGlobal,
		UserID:      in.UserID,
		Metadata:    in.Metadata,
		ActionURL:   in.ActionURL,
		ActionLabel: in.ActionLabel,
		CreatedAt:   time.Now(),
	}
	if n.Type == "" {
		n.Type = domain.NotificationInfo
	}
	if n.Priority == "" {
		n.Priority = domain.PriorityNormal
	}
	if err := s.repo.Create(ctx, n); err != nil {
		observability.RecordNotificationEvent(ctx, "create", "error")
		return nil, err
	}
	observability.RecordNotificationEvent(ctx, "create", "success")
	if err := s.bus.PublishInsert(ctx, events.TableNotifications, n); err != nil {
		// The row exists either way; relays fall back to polling.
		s.logger.Warn("notification publish failed", "notification_id", n.ID, "error", err)
	}
	return n, nil
}

// MarkAsRead records that userID saw the notification. Global rows gain a
// read marker; user-scoped rows flip IsRead after an ownership check.
func (s *NotificationService) MarkAsRead(ctx context.Context, id string, userID uint) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		observability.RecordNotificationEvent(ctx, "mark_read", "error")
		return err
	}
	observability.RecordNotificationEvent(ctx, "mark_read", "success")
	return nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

// ListForUser returns global plus addressed notifications, newest first, with
// each row's read state resolved for this viewer.
func (s *NotificationService) ListForUser(ctx context.Context, userID uint, limit int) ([]domain.Notification, error) {
	rows, err := s.repo.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	markers, err := s.repo.ReadMarkers(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].IsGlobal {
			rows[i].IsRead = markers[rows[i].ID]
		}
	}
	return rows, nil
}

// CleanupJob prunes expired data on an interval: notifications past the
// retention window and auth sessions past their expiry.
type CleanupJob struct {
	repo      repository.NotificationRepository
	sessions  repository.AuthSessionRepository
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewCleanupJob(repo repository.NotificationRepository, sessions repository.AuthSessionRepository, interval, retention time.Duration, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{repo: repo, sessions: sessions, interval: interval, retention: retention, logger: logger}
}

func (j *CleanupJob) Start(ctx context.Context) {
	j.mu.Lock()
	if j.cancel != nil {
		j.mu.Unlock()
		return
	}
	ctx, j.cancel = context.WithCancel(ctx)
	j.mu.Unlock()

	go func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				j.RunOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (j *CleanupJob) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (j *CleanupJob) RunOnce(ctx context.Context) {
	n, err := j.repo.DeleteOlderThan(ctx, time.Now().Add(-j.retention))
	if err != nil {
		observability.RecordNotificationEvent(ctx, "cleanup", "error")
		j.logger.Warn("notification cleanup failed", "error", err)
	} else {
		observability.RecordNotificationEvent(ctx, "cleanup", "success")
		if n > 0 {
			j.logger.Info("pruned expired notifications", "count", n)
		}
	}

	purged, err := j.sessions.CleanupExpired(ctx)
	if err != nil {
		j.logger.Warn("auth session cleanup failed", "error", err)
		return
	}
	if purged > 0 {
		j.logger.Info("purged expired auth sessions", "count", purged)
	}
}
