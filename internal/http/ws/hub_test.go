package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/events"
	"github.com/devfolio/portfolio-backend/internal/service"
)

type scriptedBus struct {
	fn func(events.Event)
}

func (b *scriptedBus) Subscribe(_ context.Context, _ []string, fn func(events.Event)) (func(), error) {
	b.fn = fn
	return func() {}, nil
}

func (b *scriptedBus) emit(t *testing.T, table string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	b.fn(events.Event{Type: "INSERT", Table: table, Payload: raw})
}

type noopCreator struct{}

func (noopCreator) Create(context.Context, string, service.CreateNotificationInput) (*domain.Notification, error) {
	return &domain.Notification{}, nil
}

type staticPresenceRepo struct {
	stats domain.PresenceStats
}

func (r *staticPresenceRepo) Upsert(context.Context, domain.Heartbeat) error { return nil }
func (r *staticPresenceRepo) Stats(context.Context, time.Duration) (domain.PresenceStats, error) {
	return r.stats, nil
}
func (r *staticPresenceRepo) Recent(context.Context, int, time.Duration) ([]domain.OnlineSession, error) {
	return nil, nil
}
func (r *staticPresenceRepo) DeleteBySessionID(context.Context, string) error { return nil }
func (r *staticPresenceRepo) ReapStale(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

type hubFixture struct {
	hub    *Hub
	bus    *scriptedBus
	server *httptest.Server
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	bus := &scriptedBus{}
	relay := service.NewRelay(bus, noopCreator{}, logger)
	if err := relay.Start(t.Context()); err != nil {
		t.Fatalf("start relay: %v", err)
	}
	t.Cleanup(relay.Stop)

	poller := service.NewStatsPoller(&staticPresenceRepo{stats: domain.PresenceStats{TotalOnline: 7, AuthenticatedUsers: 2, AnonymousUsers: 5}}, time.Hour, time.Minute, logger)
	poller.Start(t.Context())
	t.Cleanup(poller.Stop)

	hub := NewHub(relay, poller, logger, func(*http.Request) bool { return true })
	detach := hub.Start()
	t.Cleanup(detach)

	server := httptest.NewServer(http.HandlerFunc(hub.Serve))
	t.Cleanup(server.Close)

	return &hubFixture{hub: hub, bus: bus, server: server}
}

func (f *hubFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func TestHubReplaysStatsSnapshotOnConnect(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t)

	frame := readFrame(t, conn)
	if frame.Kind != "presence_stats" {
		t.Fatalf("expected presence_stats first, got %q", frame.Kind)
	}
	data, ok := frame.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected frame data type %T", frame.Data)
	}
	if got := data["total_online"].(float64); got != 7 {
		t.Fatalf("unexpected total_online %v", got)
	}
}

func TestHubBroadcastsNotifications(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t)
	readFrame(t, conn) // snapshot

	f.bus.emit(t, events.TableNotifications, domain.Notification{
		ID:    "n-1",
		Title: "Deploy finished",
		Type:  domain.NotificationInfo,
	})

	frame := readFrame(t, conn)
	if frame.Kind != "notification" {
		t.Fatalf("expected notification frame, got %q", frame.Kind)
	}
	data := frame.Data.(map[string]any)
	if data["title"] != "Deploy finished" {
		t.Fatalf("unexpected title %v", data["title"])
	}
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t)
	readFrame(t, conn)

	if got := f.hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client, got %d", got)
	}

	_ = conn.Close()
	deadline := time.Now().Add(3 * time.Second)
	for f.hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not dropped after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubRejectsDisallowedOrigin(t *testing.T) {
	f := newHubFixture(t)

	hub := NewHub(f.hub.relay, f.hub.stats, slog.New(slog.DiscardHandler), func(r *http.Request) bool {
		return r.Header.Get("Origin") == "https://admin.example.com"
	})
	detach := hub.Start()
	t.Cleanup(detach)
	server := httptest.NewServer(http.HandlerFunc(hub.Serve))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake to fail for disallowed origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 handshake response, got %+v", resp)
	}
}
