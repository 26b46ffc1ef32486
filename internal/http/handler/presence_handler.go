package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/http/middleware"
	"github.com/devfolio/portfolio-backend/internal/http/response"
	"github.com/devfolio/portfolio-backend/internal/observability"
	"github.com/devfolio/portfolio-backend/internal/repository"
	"github.com/devfolio/portfolio-backend/internal/service"
)

type PresenceHandler struct {
	repo        repository.PresenceRepository
	stats       *service.StatsPoller
	recentLimit int
}

func NewPresenceHandler(repo repository.PresenceRepository, stats *service.StatsPoller, recentLimit int) *PresenceHandler {
	return &PresenceHandler{repo: repo, stats: stats, recentLimit: recentLimit}
}

type heartbeatRequest struct {
	SessionID string `json:"session_id"`
	PageURL   string `json:"page_url"`
}

// Heartbeat records one presence ping. Identity comes from the optional auth
// claims, never from the body, so anonymous clients cannot impersonate users.
func (h *PresenceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid heartbeat payload", nil)
		return
	}
	if !strings.HasPrefix(req.SessionID, "session_") {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed session id", nil)
		return
	}

	hb := domain.Heartbeat{
		SessionID: req.SessionID,
		IPAddress: clientAddr(r),
		UserAgent: r.UserAgent(),
		PageURL:   req.PageURL,
	}
	if userID, ok := middleware.UserIDFromContext(r.Context()); ok {
		hb.UserID = &userID
		hb.IsAuthenticated = true
	}
	if err := h.repo.Upsert(r.Context(), hb); err != nil {
		observability.RecordPresenceHeartbeat(r.Context(), "http", "error")
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to record heartbeat", nil)
		return
	}
	observability.RecordPresenceHeartbeat(r.Context(), "http", "success")
	response.JSON(w, r, http.StatusOK, map[string]string{"session_id": req.SessionID})
}

// Stats serves the latest aggregate snapshot from the poller.
func (h *PresenceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if stats, ok := h.stats.Latest(); ok {
		response.JSON(w, r, http.StatusOK, stats)
		return
	}
	// Poller has not completed a round yet; zero counts are accurate enough.
	response.JSON(w, r, http.StatusOK, domain.PresenceStats{})
}

// Recent lists current online sessions for the admin dashboard.
func (h *PresenceHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := h.recentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < limit {
			limit = n
		}
	}
	sessions, err := h.repo.Recent(r.Context(), limit, h.stats.StaleAfter())
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list sessions", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

type offlineRequest struct {
	SessionID string `json:"session_id"`
}

// Offline is the beacon sink. Browsers fire it during page teardown and never
// read the reply, so it always answers 204 quickly.
func (h *PresenceHandler) Offline(w http.ResponseWriter, r *http.Request) {
	var req offlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.repo.DeleteBySessionID(r.Context(), req.SessionID); err != nil {
		observability.RecordPresenceHeartbeat(r.Context(), "offline", "error")
	}
	w.WriteHeader(http.StatusNoContent)
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}
