package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/observability"
	"github.com/devfolio/portfolio-backend/internal/repository"
)

// StatsPoller re-reads aggregate presence counts on an interval and fans the
// snapshot out to subscribers. Consumers always see the latest snapshot even
// when they subscribe between polls.
type StatsPoller struct {
	repo       repository.PresenceRepository
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	latest  domain.PresenceStats
	hasData bool
	subs    map[int]func(domain.PresenceStats)
	nextID  int
	cancel  context.CancelFunc
}

func NewStatsPoller(repo repository.PresenceRepository, interval, staleAfter time.Duration, logger *slog.Logger) *StatsPoller {
	return &StatsPoller{
		repo:       repo,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger,
		subs:       make(map[int]func(domain.PresenceStats)),
	}
}

// Start begins polling; the first poll happens immediately.
func (p *StatsPoller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.poll(ctx)
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.poll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *StatsPoller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *StatsPoller) poll(ctx context.Context) {
	stats, err := p.repo.Stats(ctx, p.staleAfter)
	if err != nil {
		// Keep serving the previous snapshot.
		observability.RecordPresenceStatsPoll(ctx, "error")
		p.logger.Warn("presence stats poll failed", "error", err)
		return
	}
	observability.RecordPresenceStatsPoll(ctx, "success")

	p.mu.Lock()
	p.latest = stats
	p.hasData = true
	fns := make([]func(domain.PresenceStats), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(stats)
	}
}

// StaleAfter is the window beyond which a session no longer counts as
// online.
func (p *StatsPoller) StaleAfter() time.Duration {
	return p.staleAfter
}

// Latest returns the most recent snapshot; ok is false before the first
// successful poll.
func (p *StatsPoller) Latest() (domain.PresenceStats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.hasData
}

// Subscribe registers fn for future snapshots, replaying the current one
// immediately when available. The returned function removes the subscription.
func (p *StatsPoller) Subscribe(fn func(domain.PresenceStats)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	latest, hasData := p.latest, p.hasData
	p.mu.Unlock()

	if hasData {
		fn(latest)
	}
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Reaper deletes presence rows whose last activity is older than staleAfter.
type Reaper struct {
	repo       repository.PresenceRepository
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger
	cancel     context.CancelFunc
	mu         sync.Mutex
}

func NewReaper(repo repository.PresenceRepository, interval, staleAfter time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{repo: repo, interval: interval, staleAfter: staleAfter, logger: logger}
}

func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.runOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Reaper) runOnce(ctx context.Context) {
	n, err := r.repo.ReapStale(ctx, r.staleAfter)
	if err != nil {
		r.logger.Warn("presence reap failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("reaped stale presence sessions", "count", n)
	}
}
