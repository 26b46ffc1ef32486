package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/devfolio/portfolio-backend/internal/cache"
	"github.com/devfolio/portfolio-backend/internal/config"
	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/events"
	"github.com/devfolio/portfolio-backend/internal/http/handler"
	"github.com/devfolio/portfolio-backend/internal/http/router"
	"github.com/devfolio/portfolio-backend/internal/repository"
	"github.com/devfolio/portfolio-backend/internal/security"
	"github.com/devfolio/portfolio-backend/internal/service"
)

const (
	adminEmail    = "admin@site.dev"
	adminPassword = "Admin#Pass1234"
	userEmail     = "reader@site.dev"
	userPassword  = "Reader#Pass1234"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// stack wires the full server against sqlite and a miniredis instance so the
// relay, role cache and rate limiters all run their real code paths.
type stack struct {
	baseURL  string
	users    repository.UserRepository
	presence repository.PresenceRepository
	resolver service.RoleResolver
	admin    *domain.User
	reader   *domain.User
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	cfg := &config.Config{
		DBDriver: "sqlite",
		DBDSN:    filepath.Join(t.TempDir(), "integration.db"),
	}
	db, err := repository.Open(cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	users := repository.NewUserRepository(db)
	presence := repository.NewPresenceRepository(db)
	notifications := repository.NewNotificationRepository(db)
	contacts := repository.NewContactRepository(db)
	sessions := repository.NewAuthSessionRepository(db)

	admin := seedUser(t, users, adminEmail, adminPassword, domain.RoleAdmin)
	reader := seedUser(t, users, userEmail, userPassword, domain.RoleUser)

	memory := cache.NewMemory(time.Minute)
	t.Cleanup(memory.Close)
	tiered := cache.NewTiered(memory, cache.NewRedis(redisClient, "it:role"), time.Minute, 2*time.Minute)
	resolver := service.NewCachedRoleResolver(tiered, users)

	jwtMgr := security.NewJWTManager("portfolio-backend", "portfolio-app", "access-secret-for-tests", "refresh-secret-for-tests")
	bus := events.NewBus(redisClient, "it", logger)

	authSvc := service.NewAuthService(users, sessions, jwtMgr, failingOAuth{}, resolver, nil,
		15*time.Minute, 24*time.Hour, "pepper", logger)
	notifSvc := service.NewNotificationService(notifications, bus, logger)
	contactSvc := service.NewContactService(contacts, bus, logger)

	relay := service.NewRelay(bus, notifSvc, logger)
	if err := relay.Start(t.Context()); err != nil {
		t.Fatalf("start relay: %v", err)
	}
	t.Cleanup(relay.Stop)

	poller := service.NewStatsPoller(presence, 100*time.Millisecond, 2*time.Minute, logger)
	poller.Start(t.Context())
	t.Cleanup(poller.Stop)

	h := router.NewRouter(router.Dependencies{
		AuthHandler:         handler.NewAuthHandler(authSvc, users, resolver, "http://localhost", false, 15*time.Minute, 24*time.Hour),
		PresenceHandler:     handler.NewPresenceHandler(presence, poller, 50),
		NotificationHandler: handler.NewNotificationHandler(notifSvc, resolver),
		ContactHandler:      handler.NewContactHandler(contactSvc),
		JWTManager:          jwtMgr,
		RoleResolver:        resolver,
		Logger:              logger,
		CORSOrigins:         []string{"http://localhost"},
		APIRateLimitRPM:     100000,
		AuthRateLimitRPM:    10000,
		ContactRateLimitRPM: 10000,
		HeartbeatRPM:        10000,
	})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &stack{
		baseURL:  srv.URL,
		users:    users,
		presence: presence,
		resolver: resolver,
		admin:    admin,
		reader:   reader,
	}
}

func seedUser(t *testing.T, users repository.UserRepository, email, password, role string) *domain.User {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{Email: email, FullName: "Seeded User", Role: role, PasswordHash: hash}
	if err := users.Create(t.Context(), u); err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return u
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func doJSON(t *testing.T, client *http.Client, method, rawURL string, body any, mutate func(*http.Request)) (*http.Response, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, rawURL, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(req)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, rawURL, err)
	}
	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var env envelope
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &env)
	}
	return resp, env
}

func cookieValue(t *testing.T, client *http.Client, baseURL, name string) string {
	t.Helper()
	u, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}
	for _, path := range []string{"/", "/api/v1/auth"} {
		scoped := *u
		scoped.Path = path
		for _, c := range client.Jar.Cookies(&scoped) {
			if c.Name == name {
				return c.Value
			}
		}
	}
	return ""
}

// login authenticates through the HTTP API so the jar picks up the session
// cookies, and returns the CSRF token for state-changing calls.
func login(t *testing.T, client *http.Client, baseURL, email, password string) string {
	t.Helper()
	resp, env := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/login",
		map[string]string{"email": email, "password": password}, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("login %s failed: status=%d success=%v", email, resp.StatusCode, env.Success)
	}
	csrf := cookieValue(t, client, baseURL, "csrf_token")
	if csrf == "" {
		t.Fatal("login did not set a csrf_token cookie")
	}
	return csrf
}

// waitFor polls until the condition holds, failing the test at the deadline.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

type failingOAuth struct{}

func (failingOAuth) AuthCodeURL(state string) string { return "https://consent.example/?state=" + state }

func (failingOAuth) Exchange(context.Context, string) (*oauth2.Token, error) {
	return nil, errors.New("oauth not configured")
}

func (failingOAuth) FetchUserInfo(context.Context, *oauth2.Token) (*security.OAuthUserInfo, error) {
	return nil, errors.New("oauth not configured")
}
