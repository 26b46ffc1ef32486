package handler

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/devfolio/portfolio-backend/internal/http/middleware"
	"github.com/devfolio/portfolio-backend/internal/http/response"
	"github.com/devfolio/portfolio-backend/internal/observability"
	"github.com/devfolio/portfolio-backend/internal/repository"
	"github.com/devfolio/portfolio-backend/internal/security"
	"github.com/devfolio/portfolio-backend/internal/service"
)

type AuthHandler struct {
	svc           *service.AuthService
	users         repository.UserRepository
	roles         service.RoleResolver
	baseURL       string
	secureCookies bool
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewAuthHandler(svc *service.AuthService, users repository.UserRepository, roles service.RoleResolver, baseURL string, secureCookies bool, accessTTL, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		svc:           svc,
		users:         users,
		roles:         roles,
		baseURL:       baseURL,
		secureCookies: secureCookies,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// GoogleLogin redirects to the consent screen with a random state bound to a
// short-lived cookie.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := randomState()
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   int((5 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.svc.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" || state != security.GetCookie(r, "oauth_state") {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "oauth state mismatch", nil)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "missing authorization code", nil)
		return
	}
	user, pair, err := h.svc.LoginWithGoogle(r.Context(), code, clientInfo(r))
	if err != nil {
		observability.Audit(r, "auth.google.failed", "error", err.Error())
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "google sign-in failed", nil)
		return
	}
	observability.Audit(r, "auth.google.success", "user_id", user.ID)
	h.setSessionCookies(w, pair)
	http.Redirect(w, r, h.baseURL, http.StatusSeeOther)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid login payload", nil)
		return
	}
	user, pair, err := h.svc.LoginWithPassword(r.Context(), req.Email, req.Password, clientInfo(r))
	if errors.Is(err, service.ErrInvalidCredentials) {
		observability.Audit(r, "auth.login.rejected", "email", req.Email)
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials", nil)
		return
	}
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "login failed", nil)
		return
	}
	observability.Audit(r, "auth.login.success", "user_id", user.ID)
	h.setSessionCookies(w, pair)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"user":       map[string]any{"id": user.ID, "email": user.Email, "full_name": user.FullName},
		"expires_at": pair.ExpiresAt,
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refresh := security.GetCookie(r, "refresh_token")
	if refresh == "" {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing refresh token", nil)
		return
	}
	pair, err := h.svc.Refresh(r.Context(), refresh, clientInfo(r))
	if errors.Is(err, service.ErrInvalidRefresh) {
		h.clearSessionCookies(w)
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "refresh rejected", nil)
		return
	}
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "refresh failed", nil)
		return
	}
	h.setSessionCookies(w, pair)
	response.JSON(w, r, http.StatusOK, map[string]any{"expires_at": pair.ExpiresAt})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	if refresh := security.GetCookie(r, "refresh_token"); refresh != "" {
		if err := h.svc.Logout(r.Context(), refresh, userID); err != nil {
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "logout failed", nil)
			return
		}
	}
	observability.Audit(r, "auth.logout", "user_id", userID)
	h.clearSessionCookies(w)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "signed_out"})
}

// Me returns the caller's profile with the role re-resolved through the
// cache, mirroring what the auth context exposes.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
		return
	}
	role, err := h.roles.ResolveRole(r.Context(), userID)
	if err != nil {
		role = ""
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"id":        user.ID,
		"email":     user.Email,
		"full_name": user.FullName,
		"role":      role,
	})
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, pair *service.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   int(h.accessTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    pair.RefreshToken,
		Path:     "/api/v1/auth",
		MaxAge:   int(h.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	// Readable by the frontend for the double-submit header.
	http.SetCookie(w, &http.Cookie{
		Name:     "csrf_token",
		Value:    randomState(),
		Path:     "/",
		MaxAge:   int(h.refreshTTL.Seconds()),
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{
		{"access_token", "/"},
		{"refresh_token", "/api/v1/auth"},
		{"csrf_token", "/"},
	} {
		http.SetCookie(w, &http.Cookie{Name: c.name, Path: c.path, MaxAge: -1, HttpOnly: c.name != "csrf_token", Secure: h.secureCookies})
	}
}

func clientInfo(r *http.Request) service.ClientInfo {
	return service.ClientInfo{UserAgent: r.UserAgent(), IP: clientAddr(r)}
}

func randomState() string {
	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}
