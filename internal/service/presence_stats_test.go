package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/devfolio/portfolio-backend/internal/domain"
)

type fakePresenceRepo struct {
	mu      sync.Mutex
	stats   domain.PresenceStats
	statErr error
	reaped  int64
	reapErr error
}

func (r *fakePresenceRepo) Upsert(context.Context, domain.Heartbeat) error { return nil }

func (r *fakePresenceRepo) Stats(context.Context, time.Duration) (domain.PresenceStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statErr != nil {
		return domain.PresenceStats{}, r.statErr
	}
	return r.stats, nil
}

func (r *fakePresenceRepo) Recent(context.Context, int, time.Duration) ([]domain.OnlineSession, error) {
	return nil, nil
}

func (r *fakePresenceRepo) DeleteBySessionID(context.Context, string) error { return nil }

func (r *fakePresenceRepo) ReapStale(context.Context, time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reapErr != nil {
		return 0, r.reapErr
	}
	r.reaped++
	return 2, nil
}

func (r *fakePresenceRepo) setStats(s domain.PresenceStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = s
}

func TestStatsPollerPublishesSnapshots(t *testing.T) {
	repo := &fakePresenceRepo{stats: domain.PresenceStats{TotalOnline: 4, AuthenticatedUsers: 1, AnonymousUsers: 3}}
	p := NewStatsPoller(repo, 10*time.Millisecond, time.Minute, discardLogger())
	p.Start(context.Background())
	defer p.Stop()

	latest, ok := p.Latest()
	if !ok {
		t.Fatal("first poll should run synchronously on Start")
	}
	if latest.TotalOnline != 4 {
		t.Fatalf("snapshot %+v", latest)
	}

	repo.setStats(domain.PresenceStats{TotalOnline: 6, AuthenticatedUsers: 2, AnonymousUsers: 4})
	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		latest, _ = p.Latest()
		if latest.TotalOnline == 6 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("snapshot never refreshed, still %+v", latest)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStatsPollerSubscribeReplaysCurrent(t *testing.T) {
	repo := &fakePresenceRepo{stats: domain.PresenceStats{TotalOnline: 2, AnonymousUsers: 2}}
	p := NewStatsPoller(repo, time.Hour, time.Minute, discardLogger())
	p.Start(context.Background())
	defer p.Stop()

	var got []domain.PresenceStats
	unsub := p.Subscribe(func(s domain.PresenceStats) { got = append(got, s) })
	defer unsub()

	if len(got) != 1 || got[0].TotalOnline != 2 {
		t.Fatalf("late subscriber saw %v", got)
	}
}

func TestStatsPollerKeepsLastSnapshotOnError(t *testing.T) {
	repo := &fakePresenceRepo{stats: domain.PresenceStats{TotalOnline: 3, AnonymousUsers: 3}}
	p := NewStatsPoller(repo, 10*time.Millisecond, time.Minute, discardLogger())
	p.Start(context.Background())
	defer p.Stop()

	repo.mu.Lock()
	repo.statErr = errors.New("db gone")
	repo.mu.Unlock()

	time.Sleep(40 * time.Millisecond)
	latest, ok := p.Latest()
	if !ok || latest.TotalOnline != 3 {
		t.Fatalf("stale snapshot lost: ok=%v latest=%+v", ok, latest)
	}
}

func TestReaperRunOnce(t *testing.T) {
	repo := &fakePresenceRepo{}
	r := NewReaper(repo, time.Hour, 2*time.Minute, discardLogger())
	r.runOnce(context.Background())

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.reaped != 1 {
		t.Fatalf("reap calls = %d", repo.reaped)
	}
}

func TestReaperSurvivesError(t *testing.T) {
	repo := &fakePresenceRepo{reapErr: errors.New("locked")}
	r := NewReaper(repo, time.Hour, 2*time.Minute, discardLogger())
	// Must not panic or wedge.
	r.runOnce(context.Background())
	r.runOnce(context.Background())
}
