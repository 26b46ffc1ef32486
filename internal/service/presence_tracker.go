package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/observability"
	"github.com/devfolio/portfolio-backend/internal/rate"
)

type trackerState int

const (
	trackerIdle trackerState = iota
	trackerActive
	trackerSuspended
	trackerTerminating
)

// TrackerConfig bounds how often the tracker writes to the presence store.
// Authenticated sessions may report less frequently since their identity is
// already known.
type TrackerConfig struct {
	HeartbeatInterval   time.Duration
	AuthenticatedMinGap time.Duration
	AnonymousMinGap     time.Duration
	ActivityDebounce    time.Duration
	UserAgent           string
	PageURL             string
}

// Tracker keeps one session's presence row approximately fresh. States:
// idle until Start, active while the heartbeat timer runs, suspended while
// the page is hidden, terminating after Shutdown (absorbing).
type Tracker struct {
	mu        sync.Mutex
	state     trackerState
	cfg       TrackerConfig
	sessionID string
	userID    *uint
	ipAddress string
	store     PresenceWriter
	beacon    *OfflineBeacon
	logger    *slog.Logger

	lastSent time.Time
	stop     chan struct{}
	pending  *time.Timer
	activity *rate.Debounce[struct{}]
}

func NewTracker(sessionID string, cfg TrackerConfig, store PresenceWriter, beacon *OfflineBeacon, logger *slog.Logger) *Tracker {
	t := &Tracker{
		state:     trackerIdle,
		cfg:       cfg,
		sessionID: sessionID,
		store:     store,
		beacon:    beacon,
		logger:    logger,
	}
	t.activity = rate.NewDebounce(func(struct{}) {
		t.requestHeartbeat("activity")
	}, cfg.ActivityDebounce)
	return t
}

// Start moves idle → active: one immediate heartbeat, then the interval
// timer. Calling Start twice is a no-op.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.state != trackerIdle {
		t.mu.Unlock()
		return
	}
	t.state = trackerActive
	t.stop = make(chan struct{})
	stop := t.stop
	t.mu.Unlock()

	t.send("initial")
	go t.loop(stop)
}

func (t *Tracker) loop(stop chan struct{}) {
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.tick()
		case <-stop:
			return
		}
	}
}

func (t *Tracker) tick() {
	t.mu.Lock()
	if t.state != trackerActive {
		t.mu.Unlock()
		return
	}
	gated := time.Since(t.lastSent) < t.minGapLocked()
	t.mu.Unlock()
	if gated {
		observability.RecordPresenceHeartbeat(context.Background(), "interval", "throttled")
		return
	}
	t.send("interval")
}

// Suspend pauses heartbeats while the page is hidden.
func (t *Tracker) Suspend() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != trackerActive {
		return
	}
	t.state = trackerSuspended
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

// Resume re-enters active and immediately re-sends one heartbeat.
func (t *Tracker) Resume() {
	t.mu.Lock()
	if t.state != trackerSuspended {
		t.mu.Unlock()
		return
	}
	t.state = trackerActive
	t.mu.Unlock()
	t.send("resume")
}

// Activity coalesces user-interaction bursts through the debounce; the
// resulting heartbeat is still subject to the throttle gate.
func (t *Tracker) Activity() {
	t.mu.Lock()
	active := t.state == trackerActive
	t.mu.Unlock()
	if active {
		t.activity.Call(struct{}{})
	}
}

// SetIdentity records the signed-in identity (or nil for anonymous) and
// requests an out-of-band heartbeat so the presence row flips promptly.
func (t *Tracker) SetIdentity(userID *uint, ipAddress string) {
	t.mu.Lock()
	t.userID = userID
	t.ipAddress = ipAddress
	terminating := t.state == trackerTerminating
	t.mu.Unlock()
	if !terminating {
		t.requestHeartbeat("identity_change")
	}
}

// SetPage updates the reported page URL without forcing a heartbeat.
func (t *Tracker) SetPage(pageURL string) {
	t.mu.Lock()
	t.cfg.PageURL = pageURL
	t.mu.Unlock()
}

// requestHeartbeat sends immediately when the gate is open and otherwise
// schedules a single trailing send for the remaining wait; bursts collapse
// into that one trailing call.
func (t *Tracker) requestHeartbeat(trigger string) {
	t.mu.Lock()
	if t.state != trackerActive {
		t.mu.Unlock()
		return
	}
	remaining := t.minGapLocked() - time.Since(t.lastSent)
	if remaining <= 0 {
		t.mu.Unlock()
		t.send(trigger)
		return
	}
	if t.pending == nil {
		t.pending = time.AfterFunc(remaining, func() {
			t.mu.Lock()
			t.pending = nil
			active := t.state == trackerActive
			t.mu.Unlock()
			if active {
				t.send(trigger)
			}
		})
	}
	t.mu.Unlock()
	observability.RecordPresenceHeartbeat(context.Background(), trigger, "throttled")
}

func (t *Tracker) send(trigger string) {
	t.mu.Lock()
	hb := domain.Heartbeat{
		SessionID:       t.sessionID,
		UserID:          t.userID,
		IPAddress:       t.ipAddress,
		UserAgent:       t.cfg.UserAgent,
		PageURL:         t.cfg.PageURL,
		IsAuthenticated: t.userID != nil,
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.store.Upsert(ctx, hb); err != nil {
		// State is untouched; the next tick retries on its own.
		observability.RecordPresenceHeartbeat(ctx, trigger, "error")
		t.logger.Warn("presence heartbeat failed", "trigger", trigger, "session_id", t.sessionID, "error", err)
		return
	}
	observability.RecordPresenceHeartbeat(ctx, trigger, "success")
	t.mu.Lock()
	t.lastSent = time.Now()
	t.mu.Unlock()
}

func (t *Tracker) minGapLocked() time.Duration {
	if t.userID != nil {
		return t.cfg.AuthenticatedMinGap
	}
	return t.cfg.AnonymousMinGap
}

// Shutdown enters the absorbing terminating state: all timers stop and the
// offline beacon fires without being awaited.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	if t.state == trackerTerminating {
		t.mu.Unlock()
		return
	}
	prev := t.state
	t.state = trackerTerminating
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	stop := t.stop
	t.stop = nil
	userID := t.userID
	t.mu.Unlock()

	t.activity.Cancel()
	if stop != nil {
		close(stop)
	}
	if prev != trackerIdle && t.beacon != nil {
		t.beacon.Send(t.sessionID, userID)
	}
}
