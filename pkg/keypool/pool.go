package keypool

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Default lifecycle timings. Overridable through Options.
const (
	DefaultAcquireTimeout = 15 * time.Second
	DefaultQuarantineTTL  = 300 * time.Second
	DefaultSweepInterval  = 10 * time.Second
)

// Tier labels recognized in key file names.
const (
	TierFree = "free"
	TierPaid = "paid"
)

// Options configures a Manager.
type Options struct {
	// AcquireTimeout bounds how long Acquire waits for a key. Zero means
	// DefaultAcquireTimeout.
	AcquireTimeout time.Duration

	// QuarantineTTL is the suspension period for quarantined keys. Zero
	// means DefaultQuarantineTTL.
	QuarantineTTL time.Duration

	// OnKeyLoaded is invoked for every key added to a pool. The log
	// redactor registers secrets through this hook.
	OnKeyLoaded func(key string)

	Logger *slog.Logger
}

type quarantineEntry struct {
	reason    string
	releaseAt time.Time
}

// waiter receives exactly one key. Buffered so a delivery never blocks the
// releasing goroutine.
type waiter chan string

type pool struct {
	available   []string
	waiters     []waiter
	quarantined map[string]quarantineEntry
	retired     map[string]string
	total       int
}

// PoolStatus is a point-in-time snapshot of one provider pool.
type PoolStatus struct {
	Provider    string         `json:"provider"`
	Available   int            `json:"available"`
	InFlight    int            `json:"in_flight"`
	Quarantined int            `json:"quarantined"`
	Retired     map[string]int `json:"retired_reasons,omitempty"`
	Total       int            `json:"total"`
}

// Manager owns the credential pools for every configured provider.
type Manager struct {
	mu    sync.Mutex
	pools map[string]*pool

	acquireTimeout time.Duration
	quarantineTTL  time.Duration
	onKeyLoaded    func(string)
	logger         *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewManager builds an empty Manager. Keys are added with AddKeys or
// LoadDir.
func NewManager(opts Options) *Manager {
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultAcquireTimeout
	}
	if opts.QuarantineTTL <= 0 {
		opts.QuarantineTTL = DefaultQuarantineTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		pools:          make(map[string]*pool),
		acquireTimeout: opts.AcquireTimeout,
		quarantineTTL:  opts.QuarantineTTL,
		onKeyLoaded:    opts.OnKeyLoaded,
		logger:         opts.Logger,
		now:            time.Now,
	}
}

// AddKeys registers keys for a provider and shuffles the resulting queue.
// Duplicate keys already known to the pool are ignored.
func (m *Manager) AddKeys(provider string, keys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.pool(provider)
	known := make(map[string]bool, p.total)
	for _, k := range p.available {
		known[k] = true
	}
	for k := range p.quarantined {
		known[k] = true
	}
	for k := range p.retired {
		known[k] = true
	}

	added := 0
	for _, k := range keys {
		if k == "" || known[k] {
			continue
		}
		known[k] = true
		p.available = append(p.available, k)
		p.total++
		added++
		if m.onKeyLoaded != nil {
			m.onKeyLoaded(k)
		}
	}
	rand.Shuffle(len(p.available), func(i, j int) {
		p.available[i], p.available[j] = p.available[j], p.available[i]
	})
	if added > 0 {
		m.logger.Info("keys loaded", "provider", provider, "added", added, "total", p.total)
	}
}

// Acquire checks out a key for the provider. It returns immediately when a
// key is queued, otherwise it waits in FIFO order until one is released or
// the acquire deadline passes. The caller must hand the key back through
// Release, Quarantine, or Retire.
func (m *Manager) Acquire(ctx context.Context, provider string) (string, error) {
	m.mu.Lock()
	p := m.pool(provider)

	if p.total == 0 {
		m.mu.Unlock()
		return "", &ExhaustedError{Provider: provider}
	}
	if len(p.available) > 0 {
		key := p.available[0]
		p.available = p.available[1:]
		m.mu.Unlock()
		return key, nil
	}

	w := make(waiter, 1)
	p.waiters = append(p.waiters, w)
	m.mu.Unlock()

	timer := time.NewTimer(m.acquireTimeout)
	defer timer.Stop()

	select {
	case key := <-w:
		return key, nil
	case <-ctx.Done():
		m.abandonWait(provider, w)
		return "", ctx.Err()
	case <-timer.C:
		m.abandonWait(provider, w)
		return "", &KeyTimeoutError{Provider: provider, Waited: m.acquireTimeout}
	}
}

// abandonWait removes w from the waiter queue. If a key was delivered in the
// window between the timeout firing and the queue scan, the key is recycled
// so it is never lost.
func (m *Manager) abandonWait(provider string, w waiter) {
	m.mu.Lock()
	p := m.pool(provider)
	for i, queued := range p.waiters {
		if queued == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			m.mu.Unlock()
			return
		}
	}
	m.mu.Unlock()

	select {
	case key := <-w:
		m.Release(provider, key)
	default:
	}
}

// Release returns a healthy key to the pool. Keys that were quarantined or
// retired while checked out stay out.
func (m *Manager) Release(provider, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.pool(provider)
	if _, gone := p.retired[key]; gone {
		return
	}
	if _, held := p.quarantined[key]; held {
		return
	}
	m.deliverLocked(p, key)
}

// Quarantine suspends a key for the configured TTL. The sweep returns it to
// the available queue once the suspension expires.
func (m *Manager) Quarantine(provider, key, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.pool(provider)
	if _, gone := p.retired[key]; gone {
		return
	}
	p.quarantined[key] = quarantineEntry{
		reason:    reason,
		releaseAt: m.now().Add(m.quarantineTTL),
	}
	m.logger.Warn("key quarantined",
		"provider", provider, "reason", reason, "ttl", m.quarantineTTL)
}

// Retire permanently removes a key from circulation and shrinks the pool.
func (m *Manager) Retire(provider, key, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.pool(provider)
	if _, gone := p.retired[key]; gone {
		return
	}
	delete(p.quarantined, key)
	p.retired[key] = reason
	p.total--
	m.logger.Error("key retired",
		"provider", provider, "reason", reason, "remaining", p.total)
}

// Sweep moves expired quarantined keys back to the available queue across
// all pools. Wired to a periodic scheduler job.
func (m *Manager) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for provider, p := range m.pools {
		released := 0
		for key, entry := range p.quarantined {
			if now.Before(entry.releaseAt) {
				continue
			}
			delete(p.quarantined, key)
			m.deliverLocked(p, key)
			released++
		}
		if released > 0 {
			m.logger.Info("quarantine released", "provider", provider, "keys", released)
		}
	}
}

// VerificationKey returns a key without consuming it, for health probes.
// Prefers the available queue; falls back to a quarantined key so probes
// still work while everything is suspended.
func (m *Manager) VerificationKey(provider string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.pool(provider)
	if len(p.available) > 0 {
		return p.available[rand.Intn(len(p.available))], true
	}
	for key := range p.quarantined {
		return key, true
	}
	return "", false
}

// TotalKeys reports the count of non-retired keys for a provider. The
// execution engine derives its retry bound from this.
func (m *Manager) TotalKeys(provider string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool(provider).total
}

// Status snapshots every pool for the admin endpoint and metric gauges.
func (m *Manager) Status() []PoolStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PoolStatus, 0, len(m.pools))
	for provider, p := range m.pools {
		reasons := make(map[string]int)
		for _, reason := range p.retired {
			reasons[reason]++
		}
		out = append(out, PoolStatus{
			Provider:    provider,
			Available:   len(p.available),
			InFlight:    p.total - len(p.available) - len(p.quarantined),
			Quarantined: len(p.quarantined),
			Retired:     reasons,
			Total:       p.total,
		})
	}
	return out
}

// deliverLocked hands a key to the oldest waiter, or queues it. Caller holds
// m.mu.
func (m *Manager) deliverLocked(p *pool, key string) {
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		w <- key
		return
	}
	p.available = append(p.available, key)
}

// pool returns the pool for provider, creating it on first use. Caller holds
// m.mu.
func (m *Manager) pool(provider string) *pool {
	p, ok := m.pools[provider]
	if !ok {
		p = &pool{
			quarantined: make(map[string]quarantineEntry),
			retired:     make(map[string]string),
		}
		m.pools[provider] = p
	}
	return p
}
