package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// MaxSize is the maximum number of entries.
	// Default: 1000
	MaxSize int

	// Policy resolves the TTL of each Set.
	// Default: DefaultPolicy()
	Policy *Policy

	// SweepInterval is the period of the background sweep started by Start.
	// Default: 60 seconds
	SweepInterval time.Duration

	// Logger receives debug output for evictions and sweeps.
	// Default: no-op
	Logger *zap.Logger

	// Now is the clock.
	// Default: time.Now
	Now func() time.Time
}

// Stats is a snapshot of Manager counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Deletes   int64   `json:"deletes"`
	Evictions int64   `json:"evictions"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	HitRate   float64 `json:"hit_rate"`
}

type item struct {
	key   string
	entry Entry
}

// Manager is an in-memory cache with per-entry TTL and LRU eviction.
//
// The entry count never exceeds MaxSize: Set evicts the least recently
// used entry before inserting a new key into a full cache. Expired entries
// are dropped lazily on access and by Sweep. All counters change under the
// same lock as the entries they describe.
type Manager struct {
	config ManagerConfig
	policy Policy
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used
	stats   Stats

	runMu sync.Mutex
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewManager creates a new cache manager.
func NewManager(config ManagerConfig) *Manager {
	if config.MaxSize <= 0 {
		config.MaxSize = 1000
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 60 * time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	policy := DefaultPolicy()
	if config.Policy != nil {
		policy = *config.Policy
	}

	return &Manager{
		config:  config,
		policy:  policy,
		logger:  config.Logger,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Get returns the live value stored under key. An expired entry is removed
// and counted as both a miss and an eviction.
func (m *Manager) Get(_ context.Context, key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		m.stats.Misses++
		return nil, false
	}

	now := m.config.Now()
	it := el.Value.(*item)
	if it.entry.Expired(now) {
		m.removeLocked(el)
		m.stats.Misses++
		m.stats.Evictions++
		return nil, false
	}

	m.stats.Hits++
	m.lru.MoveToFront(el)
	return it.entry.touch(now), true
}

// Set stores value under key. A ttl <= 0 uses the policy default; the
// result is clamped to the policy maximum. When the resolved TTL is zero
// nothing is stored.
//
// Updating an existing key never evicts. Inserting a new key into a full
// cache first evicts the least recently used entry.
func (m *Manager) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	ttl = m.policy.TTL(ttl)
	if ttl <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.config.Now()
	entry := Entry{
		Value:      value,
		CreatedAt:  now,
		TTL:        ttl,
		LastAccess: now,
	}

	if el, ok := m.entries[key]; ok {
		el.Value.(*item).entry = entry
		m.lru.MoveToFront(el)
		m.stats.Sets++
		return nil
	}

	if len(m.entries) >= m.config.MaxSize {
		m.evictLocked()
	}

	m.entries[key] = m.lru.PushFront(&item{key: key, entry: entry})
	m.stats.Sets++
	return nil
}

// Delete removes key and reports whether a live entry was there. An
// expired entry is removed as an eviction and reported absent.
func (m *Manager) Delete(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return false
	}
	m.removeLocked(el)
	if el.Value.(*item).entry.Expired(m.config.Now()) {
		m.stats.Evictions++
		return false
	}
	m.stats.Deletes++
	return true
}

// Exists reports whether a live entry is stored under key without counting
// a hit or refreshing recency. An expired entry is removed as an eviction.
func (m *Manager) Exists(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return false
	}
	if el.Value.(*item).entry.Expired(m.config.Now()) {
		m.removeLocked(el)
		m.stats.Evictions++
		return false
	}
	return true
}

// Peek returns a copy of the entry stored under key, expired or not,
// without touching counters or recency.
func (m *Manager) Peek(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return Entry{}, false
	}
	return el.Value.(*item).entry, true
}

// Clear removes every entry in namespace and returns how many were
// removed. An empty namespace clears the whole cache. Cleared entries are
// not counted as deletes or evictions.
func (m *Manager) Clear(namespace string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if namespace == "" {
		n := len(m.entries)
		m.entries = make(map[string]*list.Element)
		m.lru.Init()
		m.logger.Info("cache cleared", zap.Int("removed", n))
		return n
	}

	prefix := namespace + ":"
	n := 0
	for key, el := range m.entries {
		if strings.HasPrefix(key, prefix) {
			m.removeLocked(el)
			n++
		}
	}
	m.logger.Info("cache namespace cleared", zap.String("namespace", namespace), zap.Int("removed", n))
	return n
}

// Len returns the number of stored entries, including expired entries not
// yet swept.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stats returns a snapshot of the cache counters. HitRate is a percentage
// of lookups that hit, or 0 before the first lookup.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats
	s.Size = len(m.entries)
	s.MaxSize = m.config.MaxSize
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total) * 100
	}
	return s
}

// ResetStats zeroes the counters. Size is unaffected.
func (m *Manager) ResetStats() {
	m.mu.Lock()
	m.stats = Stats{}
	m.mu.Unlock()
}

// Sweep removes every expired entry and returns how many were removed.
// Each removal counts as an eviction.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.config.Now()
	n := 0
	for _, el := range m.entries {
		if el.Value.(*item).entry.Expired(now) {
			m.removeLocked(el)
			n++
		}
	}
	m.stats.Evictions += int64(n)
	if n > 0 {
		m.logger.Debug("cache swept", zap.Int("expired", n), zap.Int("size", len(m.entries)))
	}
	return n
}

// Start launches the background sweep. It runs every SweepInterval until
// ctx is done or Close is called. Calling Start on a running manager is a
// no-op.
func (m *Manager) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.stop != nil {
		return
	}
	stop := make(chan struct{})
	m.stop = stop

	m.wg.Add(1)
	go m.sweepLoop(ctx, stop)
}

// Close stops the background sweep and waits for an in-flight sweep to
// finish. It is safe to call more than once.
func (m *Manager) Close() error {
	m.runMu.Lock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.runMu.Unlock()

	m.wg.Wait()
	return nil
}

func (m *Manager) sweepLoop(ctx context.Context, stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Namespace returns a view of the manager that prefixes every key with
// "namespace:".
func (m *Manager) Namespace(namespace string) *Namespace {
	return &Namespace{manager: m, name: namespace}
}

func (m *Manager) evictLocked() {
	el := m.lru.Back()
	if el == nil {
		return
	}
	key := el.Value.(*item).key
	m.removeLocked(el)
	m.stats.Evictions++
	m.logger.Debug("cache evicted", zap.String("key", key))
}

func (m *Manager) removeLocked(el *list.Element) {
	m.lru.Remove(el)
	delete(m.entries, el.Value.(*item).key)
}

// Namespace is a Manager view scoped to one key prefix.
type Namespace struct {
	manager *Manager
	name    string
}

// Name returns the namespace.
func (n *Namespace) Name() string { return n.name }

// Get implements Cache.
func (n *Namespace) Get(ctx context.Context, key string) (any, bool) {
	return n.manager.Get(ctx, NamespacedKey(n.name, key))
}

// Set implements Cache.
func (n *Namespace) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return n.manager.Set(ctx, NamespacedKey(n.name, key), value, ttl)
}

// Delete implements Cache.
func (n *Namespace) Delete(ctx context.Context, key string) bool {
	return n.manager.Delete(ctx, NamespacedKey(n.name, key))
}

// Exists implements Cache.
func (n *Namespace) Exists(ctx context.Context, key string) bool {
	return n.manager.Exists(ctx, NamespacedKey(n.name, key))
}

// Clear removes every entry in the namespace.
func (n *Namespace) Clear() int {
	return n.manager.Clear(n.name)
}

var (
	_ Cache = (*Manager)(nil)
	_ Cache = (*Namespace)(nil)
)
