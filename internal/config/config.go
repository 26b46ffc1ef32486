package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the full application configuration. It is loaded once from the
// environment at startup and treated as immutable afterwards.
type Config struct {
	// Server
	ServerAddr      string
	BaseURL         string
	CORSOrigins     []string
	ShutdownTimeout time.Duration

	// Database
	DBDriver string
	DBDSN    string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// Auth
	JWTIssuer          string
	JWTAudience        string
	JWTAccessSecret    string
	JWTRefreshSecret   string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	TokenPepper        string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Presence
	HeartbeatInterval    time.Duration
	StatsPollInterval    time.Duration
	AuthenticatedMinGap  time.Duration
	AnonymousMinGap      time.Duration
	ActivityDebounce     time.Duration
	PresenceStaleAfter   time.Duration
	PresenceRecentLimit  int
	PresenceReapInterval time.Duration

	// Role cache
	RoleCacheMemoryTTL     time.Duration
	RoleCacheRedisTTL      time.Duration
	RoleCacheSweepInterval time.Duration

	// Notifications
	NotificationRetention       time.Duration
	NotificationCleanupInterval time.Duration

	// Session identity
	SessionStorePath string

	// Rate limits (requests per minute)
	APIRateLimitRPM       int
	AuthRateLimitRPM      int
	ContactRateLimitRPM   int
	HeartbeatRateLimitRPM int

	// Observability
	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
	EnableOTelHTTP            bool
}

// PresenceClient holds the heartbeat cadence knobs shared by the server
// configuration and client tools. Unlike Load it has no required variables,
// so tools can read it without the server secrets.
type PresenceClient struct {
	HeartbeatInterval   time.Duration
	AuthenticatedMinGap time.Duration
	AnonymousMinGap     time.Duration
	ActivityDebounce    time.Duration
	SessionStorePath    string
}

// LoadPresenceClient reads the presence client knobs from the environment.
func LoadPresenceClient() (PresenceClient, error) {
	var pc PresenceClient
	var err error
	if pc.HeartbeatInterval, err = envDuration("PRESENCE_HEARTBEAT_INTERVAL", 30*time.Second); err != nil {
		return PresenceClient{}, err
	}
	if pc.AuthenticatedMinGap, err = envDuration("PRESENCE_AUTHENTICATED_MIN_GAP", 60*time.Second); err != nil {
		return PresenceClient{}, err
	}
	if pc.AnonymousMinGap, err = envDuration("PRESENCE_ANONYMOUS_MIN_GAP", 30*time.Second); err != nil {
		return PresenceClient{}, err
	}
	if pc.ActivityDebounce, err = envDuration("PRESENCE_ACTIVITY_DEBOUNCE", 5*time.Second); err != nil {
		return PresenceClient{}, err
	}
	pc.SessionStorePath = envString("SESSION_STORE_PATH", "")
	return pc, nil
}

// Load reads the configuration from environment variables. Missing required
// variables are accumulated and reported in a single error.
func Load() (*Config, error) {
	cfg, err := load()
	profile := os.Getenv("APP_ENV")
	recordConfigValidationEvent(context.Background(), profile, outcomeFor(err), classifyConfigLoadError(err))
	return cfg, err
}

func load() (*Config, error) {
	cfg := &Config{}
	var missing []string

	cfg.JWTAccessSecret = os.Getenv("JWT_ACCESS_SECRET")
	if cfg.JWTAccessSecret == "" {
		missing = append(missing, "JWT_ACCESS_SECRET")
	}
	cfg.JWTRefreshSecret = os.Getenv("JWT_REFRESH_SECRET")
	if cfg.JWTRefreshSecret == "" {
		missing = append(missing, "JWT_REFRESH_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("validate config: missing required environment variables: %s", strings.Join(missing, ", "))
	}

	cfg.ServerAddr = envString("SERVER_ADDR", ":8080")
	cfg.BaseURL = envString("BASE_URL", "http://localhost:8080")
	cfg.CORSOrigins = splitAndTrim(envString("CORS_ORIGINS", "http://localhost:3000"))

	var err error
	if cfg.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}

	cfg.DBDriver = envString("DB_DRIVER", "sqlite")
	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return nil, fmt.Errorf("validate config: unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	cfg.DBDSN = envString("DB_DSN", "portfolio.db")

	cfg.RedisAddr = envString("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	cfg.RedisPrefix = envString("REDIS_PREFIX", "portfolio")

	cfg.JWTIssuer = envString("JWT_ISSUER", "portfolio-backend")
	cfg.JWTAudience = envString("JWT_AUDIENCE", "portfolio-app")
	if cfg.AccessTokenTTL, err = envDuration("ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenTTL, err = envDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour); err != nil {
		return nil, err
	}
	// Without an explicit pepper the refresh secret doubles as one, so a
	// fresh deployment still stores peppered hashes.
	cfg.TokenPepper = envString("TOKEN_PEPPER", cfg.JWTRefreshSecret)
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")

	pc, err := LoadPresenceClient()
	if err != nil {
		return nil, err
	}
	cfg.HeartbeatInterval = pc.HeartbeatInterval
	cfg.AuthenticatedMinGap = pc.AuthenticatedMinGap
	cfg.AnonymousMinGap = pc.AnonymousMinGap
	cfg.ActivityDebounce = pc.ActivityDebounce
	cfg.SessionStorePath = pc.SessionStorePath
	if cfg.StatsPollInterval, err = envDuration("PRESENCE_STATS_POLL_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.PresenceStaleAfter, err = envDuration("PRESENCE_STALE_AFTER", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PresenceRecentLimit, err = envInt("PRESENCE_RECENT_LIMIT", 50); err != nil {
		return nil, err
	}
	if cfg.PresenceReapInterval, err = envDuration("PRESENCE_REAP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	if cfg.RoleCacheMemoryTTL, err = envDuration("ROLE_CACHE_MEMORY_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RoleCacheRedisTTL, err = envDuration("ROLE_CACHE_REDIS_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RoleCacheSweepInterval, err = envDuration("ROLE_CACHE_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	if cfg.NotificationRetention, err = envDuration("NOTIFICATION_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.NotificationCleanupInterval, err = envDuration("NOTIFICATION_CLEANUP_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}

	if cfg.APIRateLimitRPM, err = envInt("API_RATE_LIMIT_RPM", 300); err != nil {
		return nil, err
	}
	if cfg.AuthRateLimitRPM, err = envInt("AUTH_RATE_LIMIT_RPM", 30); err != nil {
		return nil, err
	}
	if cfg.ContactRateLimitRPM, err = envInt("CONTACT_RATE_LIMIT_RPM", 10); err != nil {
		return nil, err
	}
	if cfg.HeartbeatRateLimitRPM, err = envInt("HEARTBEAT_RATE_LIMIT_RPM", 120); err != nil {
		return nil, err
	}

	cfg.OTELServiceName = envString("OTEL_SERVICE_NAME", "portfolio-backend")
	cfg.OTELEnvironment = envString("OTEL_ENVIRONMENT", "development")
	cfg.OTELExporterOTLPEndpoint = envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	if cfg.OTELExporterOTLPInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return nil, err
	}
	if cfg.OTELMetricsEnabled, err = envBool("OTEL_METRICS_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.OTELTracesEnabled, err = envBool("OTEL_TRACES_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.OTELLogsEnabled, err = envBool("OTEL_LOGS_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.OTELMetricsExportInterval, err = envDuration("OTEL_METRICS_EXPORT_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.EnableOTelHTTP, err = envBool("OTEL_HTTP_ENABLED", false); err != nil {
		return nil, err
	}

	return cfg, nil
}

func outcomeFor(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
