package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/http/middleware"
	"github.com/devfolio/portfolio-backend/internal/http/response"
	"github.com/devfolio/portfolio-backend/internal/repository"
	"github.com/devfolio/portfolio-backend/internal/service"
)

type NotificationHandler struct {
	svc   *service.NotificationService
	roles service.RoleResolver
}

func NewNotificationHandler(svc *service.NotificationService, roles service.RoleResolver) *NotificationHandler {
	return &NotificationHandler{svc: svc, roles: roles}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	rows, err := h.svc.ListForUser(r.Context(), userID, limit)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list notifications", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"notifications": rows, "count": len(rows)})
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	count, err := h.svc.UnreadCount(r.Context(), userID)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to count notifications", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]int{"unread": count})
}

type createNotificationRequest struct {
	Title       string `json:"title"`
	Message     string `json:"message"`
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	IsGlobal    bool   `json:"is_global"`
	UserID      *uint  `json:"user_id"`
	Metadata    string `json:"metadata"`
	ActionURL   string `json:"action_url"`
	ActionLabel string `json:"action_label"`
}

func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid notification payload", nil)
		return
	}
	if req.Title == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "title is required", nil)
		return
	}
	role, err := h.roles.ResolveRole(r.Context(), userID)
	if err != nil {
		response.Error(w, r, http.StatusServiceUnavailable, "ROLE_UNAVAILABLE", "role resolution unavailable", nil)
		return
	}
	n, err := h.svc.Create(r.Context(), role, service.CreateNotificationInput{
		Title:       req.Title,
		Message:     req.Message,
		Type:        domain.NotificationType(req.Type),
		Priority:    domain.NotificationPriority(req.Priority),
		IsGlobal:    req.IsGlobal,
		UserID:      req.UserID,
		Metadata:    req.Metadata,
		ActionURL:   req.ActionURL,
		ActionLabel: req.ActionLabel,
	})
	if errors.Is(err, service.ErrNotificationForbidden) {
		response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
		return
	}
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to create notification", nil)
		return
	}
	response.JSON(w, r, http.StatusCreated, n)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	id := chi.URLParam(r, "id")
	err := h.svc.MarkAsRead(r.Context(), id, userID)
	if errors.Is(err, repository.ErrNotificationNotFound) {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "notification not found", nil)
		return
	}
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to mark notification", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"id": id, "status": "read"})
}
