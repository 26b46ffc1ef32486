// Package session issues the stable per-installation session identifier used
// to key presence rows.
package session

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

const storeKey = "session_id"

// Store is the persistence backing for the session identifier. Implementations
// are best-effort: a failing store degrades the provider to an in-memory id
// for the remainder of the process lifetime.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Provider returns a stable session id, generating and persisting one on
// first use. Safe for concurrent callers; all of them observe the same id.
type Provider struct {
	mu     sync.Mutex
	store  Store
	logger *slog.Logger
	cached string
	now    func() time.Time
	randFn func() string
}

func NewProvider(store Store, logger *slog.Logger) *Provider {
	return &Provider{
		store:  store,
		logger: logger,
		now:    time.Now,
		randFn: randomBase36,
	}
}

// SessionID returns the existing identifier if one is stored, otherwise
// synthesizes session_{epochMillis}_{randomBase36(9)}, persists it and
// returns it. Every subsequent call returns the identical string.
func (p *Provider) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached
	}
	if p.store != nil {
		existing, err := p.store.Get(storeKey)
		if err != nil {
			p.logger.Warn("session store read failed, using in-memory id", "error", err)
		} else if existing != "" {
			p.cached = existing
			return p.cached
		}
	}

	id := fmt.Sprintf("session_%d_%s", p.now().UnixMilli(), p.randFn())
	if p.store != nil {
		if err := p.store.Set(storeKey, id); err != nil {
			p.logger.Warn("session store write failed, id will not survive restart", "error", err)
		}
	}
	p.cached = id
	return id
}

func randomBase36() string {
	var b strings.Builder
	for b.Len() < 9 {
		b.WriteString(strconv.FormatUint(rand.Uint64(), 36))
	}
	return b.String()[:9]
}
