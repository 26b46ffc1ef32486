package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/http/response"
	"github.com/devfolio/portfolio-backend/internal/repository"
	"github.com/devfolio/portfolio-backend/internal/service"
)

type ContactHandler struct {
	svc *service.ContactService
}

func NewContactHandler(svc *service.ContactService) *ContactHandler {
	return &ContactHandler{svc: svc}
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid contact payload", nil)
		return
	}
	msg := &domain.ContactMessage{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	}
	if err := h.svc.SubmitMessage(r.Context(), msg); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	response.JSON(w, r, http.StatusCreated, map[string]any{"id": msg.ID})
}

type subscribeRequest struct {
	Email string `json:"email"`
}

func (h *ContactHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid subscription payload", nil)
		return
	}
	sub, err := h.svc.Subscribe(r.Context(), req.Email)
	if errors.Is(err, repository.ErrAlreadySubscribed) {
		// Idempotent from the visitor's point of view.
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "subscribed"})
		return
	}
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	response.JSON(w, r, http.StatusCreated, map[string]any{"status": "subscribed", "id": sub.ID})
}

func (h *ContactHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	msgs, err := h.svc.ListMessages(r.Context(), limit)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list messages", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"messages": msgs, "count": len(msgs)})
}

func (h *ContactHandler) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := h.svc.ListSubscribers(r.Context())
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list subscribers", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"subscribers": subs, "count": len(subs)})
}
