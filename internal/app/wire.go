//go:build wireinject
// +build wireinject

package app

import (
	"log/slog"

	"github.com/google/wire"

	"github.com/devfolio/portfolio-backend/internal/config"
	"github.com/devfolio/portfolio-backend/internal/http/handler"
	"github.com/devfolio/portfolio-backend/internal/observability"
	"github.com/devfolio/portfolio-backend/internal/repository"
	"github.com/devfolio/portfolio-backend/internal/service"
)

// InitializeApp assembles the full server from configuration. Run
// `wire ./internal/app` after changing the provider graph.
func InitializeApp(cfg *config.Config, logger *slog.Logger, runtime *observability.Runtime) (*App, func(), error) {
	wire.Build(
		provideDB,
		provideRedis,
		repository.NewUserRepository,
		repository.NewAuthSessionRepository,
		repository.NewPresenceRepository,
		repository.NewNotificationRepository,
		repository.NewContactRepository,
		provideRoleCache,
		provideRoleResolver,
		provideJWTManager,
		provideOAuthProvider,
		provideBus,
		service.NewAuthContext,
		provideAuthService,
		provideNotificationService,
		provideContactService,
		provideRelay,
		provideStatsPoller,
		provideReaper,
		provideCleanupJob,
		provideHub,
		provideReadiness,
		provideAuthHandler,
		providePresenceHandler,
		handler.NewNotificationHandler,
		handler.NewContactHandler,
		provideRouter,
		provideServer,
		provideJobs,
		New,
	)
	return nil, nil, nil
}
