package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config drives a synthetic traffic run against a live server.
type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int
	Failures      int
	ByStatusClass map[string]int
}

type request struct {
	method string
	path   string
	body   []byte
	header http.Header
}

// Run fires requests at the configured rate until the duration elapses.
// Profiles: heartbeat, stats, contact, mixed.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	profile := normalizeProfile(cfg.Profile)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	rng := rand.New(rand.NewSource(cfg.Seed))
	requests := make(chan request)
	result := &Result{ByStatusClass: make(map[string]int)}
	var mu sync.Mutex

	client := &http.Client{Timeout: 10 * time.Second}
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer close(requests)
		ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				select {
				case requests <- nextRequest(profile, rng):
				case <-gctx.Done():
					return nil
				}
			}
		}
	})

	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			for req := range requests {
				status, err := fire(gctx, client, cfg.BaseURL, req)
				mu.Lock()
				result.TotalRequests++
				if err != nil {
					result.Failures++
					result.ByStatusClass["error"]++
				} else {
					class := classifyStatusClass(status)
					result.ByStatusClass[class]++
					if class == "5xx" {
						result.Failures++
					}
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return result, err
	}
	return result, nil
}

func nextRequest(profile string, rng *rand.Rand) request {
	if profile == "mixed" {
		switch rng.Intn(3) {
		case 0:
			profile = "heartbeat"
		case 1:
			profile = "stats"
		default:
			profile = "contact"
		}
	}
	switch profile {
	case "heartbeat":
		sessionID := fmt.Sprintf("session_%d_%09d", time.Now().UnixMilli(), rng.Intn(1_000_000_000))
		body, _ := json.Marshal(map[string]string{"session_id": sessionID, "page_url": "/"})
		header := http.Header{}
		header.Set("Content-Type", "application/json")
		header.Set("X-Session-Id", sessionID)
		return request{method: http.MethodPost, path: "/api/v1/presence/heartbeat", body: body, header: header}
	case "contact":
		body, _ := json.Marshal(map[string]string{
			"name":    fmt.Sprintf("loadgen-%d", rng.Intn(10000)),
			"email":   fmt.Sprintf("loadgen-%d@example.com", rng.Intn(10000)),
			"message": "synthetic traffic",
		})
		header := http.Header{}
		header.Set("Content-Type", "application/json")
		return request{method: http.MethodPost, path: "/api/v1/contact", body: body, header: header}
	default:
		return request{method: http.MethodGet, path: "/api/v1/presence/stats"}
	}
}

func fire(ctx context.Context, client *http.Client, baseURL string, req request) (int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.method, strings.TrimSuffix(baseURL, "/")+req.path, bytes.NewReader(req.body))
	if err != nil {
		return 0, err
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

func normalizeProfile(profile string) string {
	profile = strings.ToLower(strings.TrimSpace(profile))
	if profile == "" {
		return "mixed"
	}
	return profile
}
