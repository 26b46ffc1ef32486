package health

import (
	"context"
	"sync"
	"time"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// Result is the outcome of one probe, as reported on /health/ready.
type Result struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
	Latency int64  `json:"latency_ms"`
}

// ProbeRunner runs registered checks with a per-check timeout and caches the
// combined verdict so readiness polling does not hammer dependencies.
type ProbeRunner struct {
	cacheFor time.Duration
	timeout  time.Duration

	mu        sync.Mutex
	checks    []namedCheck
	lastRun   time.Time
	lastReady bool
	lastRes   []Result
}

type namedCheck struct {
	name string
	fn   Check
}

func NewProbeRunner(cacheFor, timeout time.Duration) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ProbeRunner{cacheFor: cacheFor, timeout: timeout}
}

func (p *ProbeRunner) Register(name string, fn Check) {
	p.mu.Lock()
	p.checks = append(p.checks, namedCheck{name: name, fn: fn})
	p.mu.Unlock()
}

// Ready reports whether every dependency answered within its timeout,
// serving the cached verdict when it is still fresh.
func (p *ProbeRunner) Ready(ctx context.Context) (bool, []Result) {
	p.mu.Lock()
	if p.cacheFor > 0 && time.Since(p.lastRun) < p.cacheFor && p.lastRes != nil {
		ready, res := p.lastReady, p.lastRes
		p.mu.Unlock()
		return ready, res
	}
	checks := append([]namedCheck(nil), p.checks...)
	p.mu.Unlock()

	ready := true
	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		cctx, cancel := context.WithTimeout(ctx, p.timeout)
		start := time.Now()
		err := c.fn(cctx)
		cancel()
		res := Result{Name: c.name, Healthy: err == nil, Latency: time.Since(start).Milliseconds()}
		if err != nil {
			res.Error = err.Error()
			ready = false
		}
		results = append(results, res)
	}

	p.mu.Lock()
	p.lastRun = time.Now()
	p.lastReady = ready
	p.lastRes = results
	p.mu.Unlock()
	return ready, results
}
