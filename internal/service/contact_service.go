package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/events"
	"github.com/devfolio/portfolio-backend/internal/repository"
)

// ContactService handles the public contact form and newsletter signups.
// Inserts are announced on the event bus; the notification relay turns them
// into admin notifications.
type ContactService struct {
	repo   repository.ContactRepository
	bus    InsertPublisher
	logger *slog.Logger
}

func NewContactService(repo repository.ContactRepository, bus InsertPublisher, logger *slog.Logger) *ContactService {
	return &ContactService{repo: repo, bus: bus, logger: logger}
}

func (s *ContactService) SubmitMessage(ctx context.Context, m *domain.ContactMessage) error {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.TrimSpace(m.Email)
	if m.Name == "" || m.Email == "" || strings.TrimSpace(m.Message) == "" {
		return fmt.Errorf("name, email, and message are required")
	}
	if err := s.repo.CreateMessage(ctx, m); err != nil {
		return err
	}
	if err := s.bus.PublishInsert(ctx, events.TableContactMessages, m); err != nil {
		s.logger.Warn("contact message publish failed", "message_id", m.ID, "error", err)
	}
	return nil
}

func (s *ContactService) Subscribe(ctx context.Context, email string) (*domain.NewsletterSubscriber, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid email is required")
	}
	sub := &domain.NewsletterSubscriber{Email: email}
	if err := s.repo.Subscribe(ctx, sub); err != nil {
		return nil, err
	}
	if err := s.bus.PublishInsert(ctx, events.TableRegistrations, sub); err != nil {
		s.logger.Warn("subscriber publish failed", "email", email, "error", err)
	}
	return sub, nil
}

func (s *ContactService) ListMessages(ctx context.Context, limit int) ([]domain.ContactMessage, error) {
	return s.repo.ListMessages(ctx, limit)
}

func (s *ContactService) ListSubscribers(ctx context.Context) ([]domain.NewsletterSubscriber, error) {
	return s.repo.ListSubscribers(ctx)
}
