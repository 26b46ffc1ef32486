package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// OfflineBeacon delivers the best-effort "this session is gone" signal on
// shutdown. The POST is dispatched without awaiting the response so teardown
// is never blocked; when no endpoint is configured it falls back to deleting
// the presence row directly. Either way the signal may not complete.
type OfflineBeacon struct {
	endpoint string
	client   *http.Client
	store    PresenceWriter
	logger   *slog.Logger
}

func NewOfflineBeacon(endpoint string, store PresenceWriter, logger *slog.Logger) *OfflineBeacon {
	return &OfflineBeacon{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 2 * time.Second},
		store:    store,
		logger:   logger,
	}
}

type offlinePayload struct {
	SessionID string `json:"session_id"`
	UserID    *uint  `json:"user_id,omitempty"`
}

// Send fires the offline signal and returns immediately.
func (b *OfflineBeacon) Send(sessionID string, userID *uint) {
	payload := offlinePayload{SessionID: sessionID, UserID: userID}

	if b.endpoint == "" {
		go b.fallback(payload)
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn("offline beacon payload encode failed", "error", err)
		return
	}
	go func() {
		resp, err := b.client.Post(b.endpoint, "application/json", bytes.NewReader(body))
		if err != nil {
			b.logger.Debug("offline beacon failed, falling back to direct delete", "error", err)
			b.fallback(payload)
			return
		}
		_ = resp.Body.Close()
	}()
}

func (b *OfflineBeacon) fallback(payload offlinePayload) {
	if b.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.store.DeleteBySessionID(ctx, payload.SessionID); err != nil {
		b.logger.Debug("offline fallback delete failed", "session_id", payload.SessionID, "error", err)
	}
}
