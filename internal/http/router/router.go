package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/devfolio/portfolio-backend/internal/health"
	"github.com/devfolio/portfolio-backend/internal/http/handler"
	"github.com/devfolio/portfolio-backend/internal/http/middleware"
	"github.com/devfolio/portfolio-backend/internal/http/response"
	"github.com/devfolio/portfolio-backend/internal/security"
	"github.com/devfolio/portfolio-backend/internal/service"
)

type Dependencies struct {
	AuthHandler         *handler.AuthHandler
	PresenceHandler     *handler.PresenceHandler
	NotificationHandler *handler.NotificationHandler
	ContactHandler      *handler.ContactHandler
	AdminSocket         http.HandlerFunc
	JWTManager          *security.JWTManager
	RoleResolver        service.RoleResolver
	Logger              *slog.Logger
	CORSOrigins         []string
	APIRateLimitRPM     int
	AuthRateLimitRPM    int
	ContactRateLimitRPM int
	HeartbeatRPM        int
	Readiness           *health.ProbeRunner
	EnableOTelHTTP      bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	if dep.Logger != nil {
		r.Use(middleware.StructuredRequestLogger(dep.Logger))
	}
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "api").Middleware())

	authLimiter := middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute, "auth").Middleware()
	contactLimiter := middleware.NewRateLimiter(dep.ContactRateLimitRPM, time.Minute, "contact").Middleware()
	heartbeatLimiter := middleware.NewRateLimiterWithKey(
		dep.HeartbeatRPM, time.Minute, "presence",
		middleware.SessionOrIPKeyFunc("X-Session-Id"),
	).Middleware()

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	// Page-teardown beacons arrive without auth or CSRF headers.
	r.With(heartbeatLimiter).Post("/api/user-offline", dep.PresenceHandler.Offline)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Get("/google/login", dep.AuthHandler.GoogleLogin)
			r.With(authLimiter).Get("/google/callback", dep.AuthHandler.GoogleCallback)
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.Group(func(r chi.Router) {
				r.Use(middleware.CSRFMiddleware)
				r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
				r.With(middleware.AuthMiddleware(dep.JWTManager)).Post("/logout", dep.AuthHandler.Logout)
			})
		})

		r.With(middleware.AuthMiddleware(dep.JWTManager)).Get("/me", dep.AuthHandler.Me)

		r.Route("/presence", func(r chi.Router) {
			r.Use(middleware.OptionalAuth(dep.JWTManager))
			r.With(heartbeatLimiter).Post("/heartbeat", dep.PresenceHandler.Heartbeat)
			r.Get("/stats", dep.PresenceHandler.Stats)
		})

		r.With(contactLimiter).Post("/contact", dep.ContactHandler.Submit)
		r.With(contactLimiter).Post("/newsletter/subscribe", dep.ContactHandler.Subscribe)

		r.Route("/notifications", func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(dep.JWTManager))
			r.Get("/", dep.NotificationHandler.List)
			r.Get("/unread-count", dep.NotificationHandler.UnreadCount)
			r.Group(func(r chi.Router) {
				r.Use(middleware.CSRFMiddleware)
				r.Post("/{id}/read", dep.NotificationHandler.MarkRead)
				r.With(middleware.RequireEditor(dep.RoleResolver)).Post("/", dep.NotificationHandler.Create)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(dep.JWTManager))
			r.Use(middleware.RequireAdmin(dep.RoleResolver))
			r.Get("/presence/sessions", dep.PresenceHandler.Recent)
			r.Get("/messages", dep.ContactHandler.ListMessages)
			r.Get("/subscribers", dep.ContactHandler.ListSubscribers)
			if dep.AdminSocket != nil {
				r.Get("/ws", dep.AdminSocket)
			}
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
