package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/devfolio/portfolio-backend/internal/cache"
	"github.com/devfolio/portfolio-backend/internal/config"
	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/events"
	"github.com/devfolio/portfolio-backend/internal/http/handler"
	"github.com/devfolio/portfolio-backend/internal/repository"
	"github.com/devfolio/portfolio-backend/internal/security"
	"github.com/devfolio/portfolio-backend/internal/service"
)

type fixture struct {
	server *httptest.Server
	jwt    *security.JWTManager
	admin  *domain.User
	viewer *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	cfg := &config.Config{
		DBDriver: "sqlite",
		DBDSN:    filepath.Join(t.TempDir(), "router_test.db"),
	}
	db, err := repository.Open(cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	users := repository.NewUserRepository(db)
	presence := repository.NewPresenceRepository(db)
	notifications := repository.NewNotificationRepository(db)
	contacts := repository.NewContactRepository(db)
	sessions := repository.NewAuthSessionRepository(db)

	admin := &domain.User{Email: "admin@site.dev", Role: domain.RoleAdmin}
	viewer := &domain.User{Email: "viewer@site.dev", Role: domain.RoleUser}
	for _, u := range []*domain.User{admin, viewer} {
		if err := users.Create(t.Context(), u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	memory := cache.NewMemory(time.Minute)
	t.Cleanup(memory.Close)
	overflow := cache.NewMemory(time.Minute)
	t.Cleanup(overflow.Close)
	resolver := service.NewCachedRoleResolver(cache.NewTiered(memory, overflow, time.Minute, 2*time.Minute), users)

	jwtMgr := security.NewJWTManager("portfolio-backend", "portfolio-app", "access-secret-for-tests", "refresh-secret-for-tests")
	bus := events.NewBus(nil, "test", logger)

	authSvc := service.NewAuthService(users, sessions, jwtMgr, &noopOAuth{}, resolver, nil,
		15*time.Minute, 24*time.Hour, "pepper", logger)
	notifSvc := service.NewNotificationService(notifications, bus, logger)
	contactSvc := service.NewContactService(contacts, bus, logger)

	poller := service.NewStatsPoller(presence, time.Hour, 2*time.Minute, logger)
	poller.Start(t.Context())
	t.Cleanup(poller.Stop)

	h := NewRouter(Dependencies{
		AuthHandler:         handler.NewAuthHandler(authSvc, users, resolver, "http://localhost", false, 15*time.Minute, 24*time.Hour),
		PresenceHandler:     handler.NewPresenceHandler(presence, poller, 50),
		NotificationHandler: handler.NewNotificationHandler(notifSvc, resolver),
		ContactHandler:      handler.NewContactHandler(contactSvc),
		JWTManager:          jwtMgr,
		RoleResolver:        resolver,
		Logger:              logger,
		CORSOrigins:         []string{"http://localhost"},
		APIRateLimitRPM:     10000,
		AuthRateLimitRPM:    1000,
		ContactRateLimitRPM: 1000,
		HeartbeatRPM:        1000,
	})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &fixture{server: srv, jwt: jwtMgr, admin: admin, viewer: viewer}
}

type noopOAuth struct{}

func (noopOAuth) AuthCodeURL(state string) string { return "https://consent.example/?state=" + state }

func (noopOAuth) Exchange(context.Context, string) (*oauth2.Token, error) {
	return nil, fmt.Errorf("oauth not configured")
}

func (noopOAuth) FetchUserInfo(context.Context, *oauth2.Token) (*security.OAuthUserInfo, error) {
	return nil, fmt.Errorf("oauth not configured")
}

func (f *fixture) bearerFor(t *testing.T, u *domain.User) string {
	t.Helper()
	token, err := f.jwt.SignAccessToken(u.ID, u.Role, 15*time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func (f *fixture) do(t *testing.T, method, path string, body any, mutate func(*http.Request)) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthLive(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/health/live", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAnonymousHeartbeat(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/v1/presence/heartbeat",
		map[string]string{"session_id": "session_1712000000000_ab12cd34e", "page_url": "/blog"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHeartbeatRejectsMalformedSessionID(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/v1/presence/heartbeat",
		map[string]string{"session_id": "bogus"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestPresenceStatsIsPublic(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/v1/presence/stats", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestOfflineBeaconAlwaysAccepted(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/user-offline",
		map[string]string{"session_id": "session_1712000000000_ab12cd34e"}, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestNotificationsRequireAuth(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/v1/notifications/", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestNotificationCreateGatedByRoleAndCSRF(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"title": "hello", "is_global": true}

	t.Run("missing csrf", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/v1/notifications/", body, func(r *http.Request) {
			r.Header.Set("Authorization", f.bearerFor(t, f.admin))
		})
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	})

	withCSRF := func(auth string) func(*http.Request) {
		return func(r *http.Request) {
			r.Header.Set("Authorization", auth)
			r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok"})
			r.Header.Set("X-CSRF-Token", "tok")
		}
	}

	t.Run("plain user forbidden", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/v1/notifications/", body, withCSRF(f.bearerFor(t, f.viewer)))
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	})

	t.Run("admin allowed", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/api/v1/notifications/", body, withCSRF(f.bearerFor(t, f.admin)))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	})
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/admin/presence/sessions", nil, func(r *http.Request) {
		r.Header.Set("Authorization", f.bearerFor(t, f.viewer))
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer status = %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/api/v1/admin/presence/sessions", nil, func(r *http.Request) {
		r.Header.Set("Authorization", f.bearerFor(t, f.admin))
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin status = %d", resp.StatusCode)
	}
}

func TestContactSubmitIsPublic(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/v1/contact",
		map[string]string{"name": "Ada", "email": "ada@example.com", "message": "hello"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestMeReturnsResolvedRole(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/v1/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", f.bearerFor(t, f.admin))
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var envelope struct {
		Data struct {
			Role string `json:"role"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Role != domain.RoleAdmin {
		t.Fatalf("role = %q", envelope.Data.Role)
	}
}
