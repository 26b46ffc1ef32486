package presencewatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/devfolio/portfolio-backend/internal/domain"
)

// apiClient reports this process's presence to a running server and reads
// the aggregate stats back. It satisfies service.PresenceWriter so the
// tracker and offline beacon can use it as their store.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *apiClient) Upsert(ctx context.Context, hb domain.Heartbeat) error {
	body, err := json.Marshal(map[string]string{
		"session_id": hb.SessionID,
		"page_url":   hb.PageURL,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/presence/heartbeat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-Id", hb.SessionID)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("heartbeat rejected: %s", resp.Status)
	}
	return nil
}

func (c *apiClient) DeleteBySessionID(ctx context.Context, sessionID string) error {
	body, err := json.Marshal(map[string]string{"session_id": sessionID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/user-offline", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("offline signal rejected: %s", resp.Status)
	}
	return nil
}

func (c *apiClient) Stats(ctx context.Context) (domain.PresenceStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/presence/stats", nil)
	if err != nil {
		return domain.PresenceStats{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.PresenceStats{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return domain.PresenceStats{}, fmt.Errorf("stats request failed: %s", resp.Status)
	}
	var envelope struct {
		Data domain.PresenceStats `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return domain.PresenceStats{}, fmt.Errorf("decode stats: %w", err)
	}
	return envelope.Data, nil
}
