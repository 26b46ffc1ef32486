package app

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/devfolio/portfolio-backend/internal/cache"
	"github.com/devfolio/portfolio-backend/internal/config"
	"github.com/devfolio/portfolio-backend/internal/events"
	"github.com/devfolio/portfolio-backend/internal/health"
	"github.com/devfolio/portfolio-backend/internal/http/handler"
	"github.com/devfolio/portfolio-backend/internal/http/router"
	"github.com/devfolio/portfolio-backend/internal/http/ws"
	"github.com/devfolio/portfolio-backend/internal/repository"
	"github.com/devfolio/portfolio-backend/internal/security"
	"github.com/devfolio/portfolio-backend/internal/service"
)

func provideDB(cfg *config.Config) (*gorm.DB, error) {
	return repository.Open(cfg)
}

func provideRedis(cfg *config.Config) (redis.UniversalClient, func()) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }
}

func provideRoleCache(cfg *config.Config, client redis.UniversalClient) (*cache.Tiered, func()) {
	memory := cache.NewMemory(cfg.RoleCacheSweepInterval)
	persistent := cache.NewRedis(client, cfg.RedisPrefix+":role")
	tiered := cache.NewTiered(memory, persistent, cfg.RoleCacheMemoryTTL, cfg.RoleCacheRedisTTL)
	return tiered, memory.Close
}

func provideRoleResolver(tiered *cache.Tiered, users repository.UserRepository) service.RoleResolver {
	return service.NewCachedRoleResolver(tiered, users)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
}

func provideOAuthProvider(cfg *config.Config) security.OAuthProvider {
	return security.NewGoogleOAuthProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
}

func provideBus(cfg *config.Config, client redis.UniversalClient, logger *slog.Logger) *events.Bus {
	return events.NewBus(client, cfg.RedisPrefix, logger)
}

func provideAuthService(
	cfg *config.Config,
	users repository.UserRepository,
	sessions repository.AuthSessionRepository,
	jwt *security.JWTManager,
	oauth security.OAuthProvider,
	roles service.RoleResolver,
	authCtx *service.AuthContext,
	logger *slog.Logger,
) *service.AuthService {
	return service.NewAuthService(users, sessions, jwt, oauth, roles, authCtx,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.TokenPepper, logger)
}

func provideNotificationService(repo repository.NotificationRepository, bus *events.Bus, logger *slog.Logger) *service.NotificationService {
	return service.NewNotificationService(repo, bus, logger)
}

func provideContactService(repo repository.ContactRepository, bus *events.Bus, logger *slog.Logger) *service.ContactService {
	return service.NewContactService(repo, bus, logger)
}

func provideRelay(bus *events.Bus, notifications *service.NotificationService, logger *slog.Logger) *service.Relay {
	return service.NewRelay(bus, notifications, logger)
}

func provideStatsPoller(cfg *config.Config, repo repository.PresenceRepository, logger *slog.Logger) *service.StatsPoller {
	return service.NewStatsPoller(repo, cfg.StatsPollInterval, cfg.PresenceStaleAfter, logger)
}

func provideReaper(cfg *config.Config, repo repository.PresenceRepository, logger *slog.Logger) *service.Reaper {
	return service.NewReaper(repo, cfg.PresenceReapInterval, cfg.PresenceStaleAfter, logger)
}

func provideCleanupJob(cfg *config.Config, repo repository.NotificationRepository, sessions repository.AuthSessionRepository, logger *slog.Logger) *service.CleanupJob {
	return service.NewCleanupJob(repo, sessions, cfg.NotificationCleanupInterval, cfg.NotificationRetention, logger)
}

func provideHub(cfg *config.Config, relay *service.Relay, stats *service.StatsPoller, logger *slog.Logger) *ws.Hub {
	allowed := make(map[string]struct{}, len(cfg.CORSOrigins))
	for _, origin := range cfg.CORSOrigins {
		allowed[origin] = struct{}{}
	}
	checkOrigin := func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
	return ws.NewHub(relay, stats, logger, checkOrigin)
}

func provideReadiness(db *gorm.DB, client redis.UniversalClient) *health.ProbeRunner {
	runner := health.NewProbeRunner(5*time.Second, 2*time.Second)
	runner.Register("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	runner.Register("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	return runner
}

func provideAuthHandler(cfg *config.Config, svc *service.AuthService, users repository.UserRepository, roles service.RoleResolver) *handler.AuthHandler {
	secureCookies := strings.HasPrefix(cfg.BaseURL, "https://")
	return handler.NewAuthHandler(svc, users, roles, cfg.BaseURL, secureCookies, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

func providePresenceHandler(cfg *config.Config, repo repository.PresenceRepository, stats *service.StatsPoller) *handler.PresenceHandler {
	return handler.NewPresenceHandler(repo, stats, cfg.PresenceRecentLimit)
}

func provideRouter(
	cfg *config.Config,
	logger *slog.Logger,
	jwt *security.JWTManager,
	roles service.RoleResolver,
	readiness *health.ProbeRunner,
	hub *ws.Hub,
	auth *handler.AuthHandler,
	presence *handler.PresenceHandler,
	notifications *handler.NotificationHandler,
	contact *handler.ContactHandler,
) http.Handler {
	return router.NewRouter(router.Dependencies{
		AuthHandler:         auth,
		PresenceHandler:     presence,
		NotificationHandler: notifications,
		ContactHandler:      contact,
		AdminSocket:         hub.Serve,
		JWTManager:          jwt,
		RoleResolver:        roles,
		Logger:              logger,
		CORSOrigins:         cfg.CORSOrigins,
		APIRateLimitRPM:     cfg.APIRateLimitRPM,
		AuthRateLimitRPM:    cfg.AuthRateLimitRPM,
		ContactRateLimitRPM: cfg.ContactRateLimitRPM,
		HeartbeatRPM:        cfg.HeartbeatRateLimitRPM,
		Readiness:           readiness,
		EnableOTelHTTP:      cfg.EnableOTelHTTP,
	})
}

func provideServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func provideJobs(relay *service.Relay, stats *service.StatsPoller, reaper *service.Reaper, cleanup *service.CleanupJob, hub *ws.Hub) Jobs {
	return Jobs{Relay: relay, Stats: stats, Reaper: reaper, Cleanup: cleanup, Hub: hub}
}
