package relay

import (
	"context"
	"sync"
	"time"

	"github.com/Shugur-Network/nostr-client/internal/constants"
	"github.com/Shugur-Network/nostr-client/internal/domain"
	"github.com/Shugur-Network/nostr-client/internal/limiter"
	"github.com/Shugur-Network/nostr-client/internal/logger"
	"github.com/Shugur-Network/nostr-client/internal/metrics"
	"github.com/Shugur-Network/nostr-client/internal/models"
	"github.com/Shugur-Network/nostr-client/internal/workers"
	"go.uber.org/zap"
)

// ManagerConfig holds the relay manager settings. It is treated as a value:
// modified copies are made by struct assignment, never by mutating a shared
// instance.
type ManagerConfig struct {
	// DefaultRelayURL is always configured and cannot be removed.
	DefaultRelayURL string

	// Storage persists the configured relay list. Nil means in-memory only.
	Storage domain.RelayStorage

	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}

func (c *ManagerConfig) withDefaults() {
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = constants.DefaultMaxReconnectAttempts
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = constants.DefaultReconnectDelay
	}
}

// StatusSnapshot is one full copy of the per-relay status map, emitted on
// every status change.
type StatusSnapshot = map[string]models.RelayConnectionStatus

// Manager owns the configured relay set and drives pool membership to match
// it. It tracks a per-relay connection status map and broadcasts a snapshot
// to every subscriber after each change. Pool failures degrade the affected
// relay to the error state; they never propagate out of the manager.
type Manager struct {
	cfg  ManagerConfig
	pool domain.ConnectionPool
	log  *zap.Logger

	workers    *workers.WorkerPool
	reconnects *limiter.RateLimiter

	mu          sync.RWMutex
	initialized bool
	configured  []string
	statuses    map[string]models.RelayConnectionStatus
	attempts    map[string]int

	subMu     sync.Mutex
	subs      map[int]chan StatusSnapshot
	nextSubID int
	disposed  bool

	reconnectStop chan struct{}
}

// NewManager creates a manager over the given pool. Call Initialize before
// anything else.
func NewManager(cfg ManagerConfig, pool domain.ConnectionPool) *Manager {
	cfg.withDefaults()
	return &Manager{
		cfg:        cfg,
		pool:       pool,
		log:        logger.New("relay-manager"),
		workers:    workers.NewWorkerPool(4, 64),
		reconnects: limiter.New(1, 1),
		statuses:   make(map[string]models.RelayConnectionStatus),
		attempts:   make(map[string]int),
		subs:       make(map[int]chan StatusSnapshot),
	}
}

// Initialize loads the persisted relay list, guarantees the default relay is
// present and first, persists the merged list back, and attempts to connect
// every configured relay. Idempotent: a second call is a no-op. A single bad
// relay never fails initialization; it is degraded to the error state.
func (m *Manager) Initialize(ctx context.Context) error {
	m.subMu.Lock()
	if m.disposed {
		// coming back from Dispose: the old worker pool is stopped for good
		m.disposed = false
		m.reconnectStop = nil
		m.workers = workers.NewWorkerPool(4, 64)
	}
	m.subMu.Unlock()

	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	defaultURL := NormalizeURL(m.cfg.DefaultRelayURL)

	urls := []string{}
	if m.cfg.Storage != nil {
		loaded, err := m.cfg.Storage.LoadRelays(ctx)
		if err != nil {
			m.log.Warn("Failed to load persisted relays, starting from default", zap.Error(err))
		}
		urls = loaded
	}

	configured := []string{defaultURL}
	present := map[string]struct{}{defaultURL: {}}
	for _, raw := range urls {
		norm := NormalizeURL(raw)
		if norm == "" {
			continue
		}
		if _, ok := present[norm]; ok {
			continue
		}
		present[norm] = struct{}{}
		configured = append(configured, norm)
	}
	m.configured = configured
	m.statuses = make(map[string]models.RelayConnectionStatus, len(configured))
	m.attempts = make(map[string]int)
	for _, url := range configured {
		m.statuses[url] = models.Connecting(url, url == defaultURL)
	}
	m.initialized = true
	m.mu.Unlock()

	m.persist(ctx)

	var wg sync.WaitGroup
	for _, url := range configured {
		url := url
		wg.Add(1)
		if !m.workers.AddJob(func() {
			defer wg.Done()
			m.attemptConnect(ctx, url)
		}) {
			// queue full, connect inline
			m.attemptConnect(ctx, url)
			wg.Done()
		}
	}
	wg.Wait()

	m.emit()
	m.startAutoReconnect()

	m.log.Info("Relay manager initialized",
		zap.Int("configured", len(configured)),
		zap.Int("connected", m.ConnectedRelayCount()))
	return nil
}

// IsInitialized reports whether Initialize completed since the last Dispose.
func (m *Manager) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// AddRelay accepts a new relay into the configured set. It returns false for
// blank, malformed or already-configured URLs. For accepted URLs the
// configuration change (list, persistence, status entry) is unconditional;
// the returned boolean reports whether the pool connection attempt itself
// succeeded. Connection failures stay observable on the status stream.
func (m *Manager) AddRelay(ctx context.Context, rawURL string) bool {
	norm := NormalizeURL(rawURL)
	if norm == "" {
		return false
	}

	m.mu.Lock()
	if m.isConfiguredLocked(norm) {
		m.mu.Unlock()
		return false
	}
	m.configured = append(m.configured, norm)
	m.statuses[norm] = models.Connecting(norm, false)
	m.mu.Unlock()

	m.persist(ctx)
	m.emit()

	return m.attemptConnect(ctx, norm)
}

// RemoveRelay drops a relay from the configured set. The default relay can
// never be removed.
func (m *Manager) RemoveRelay(ctx context.Context, rawURL string) bool {
	norm := NormalizeURL(rawURL)
	if norm == "" || norm == NormalizeURL(m.cfg.DefaultRelayURL) {
		return false
	}

	m.mu.Lock()
	if !m.isConfiguredLocked(norm) {
		m.mu.Unlock()
		return false
	}
	filtered := m.configured[:0]
	for _, url := range m.configured {
		if url != norm {
			filtered = append(filtered, url)
		}
	}
	m.configured = filtered
	delete(m.statuses, norm)
	delete(m.attempts, norm)
	m.mu.Unlock()

	m.persist(ctx)
	if err := m.pool.Remove(ctx, norm); err != nil {
		m.log.Warn("Pool remove failed", zap.String("relay", norm), zap.Error(err))
	}
	m.emit()
	return true
}

// RetryDisconnectedRelays re-attempts every configured relay that is not
// currently connected, emitting status updates as each attempt completes.
func (m *Manager) RetryDisconnectedRelays(ctx context.Context) {
	m.mu.RLock()
	var stale []string
	for _, url := range m.configured {
		if status, ok := m.statuses[url]; !ok || !status.IsConnected() {
			stale = append(stale, url)
		}
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, url := range stale {
		url := url
		m.setStatus(models.Connecting(url, m.isDefault(url)))
		wg.Add(1)
		if !m.workers.AddJob(func() {
			defer wg.Done()
			m.attemptConnect(ctx, url)
		}) {
			m.attemptConnect(ctx, url)
			wg.Done()
		}
	}
	wg.Wait()
}

// ReconnectRelay drops and re-dials one configured relay. Returns false for
// unknown or malformed URLs, otherwise the result of the new connection
// attempt.
func (m *Manager) ReconnectRelay(ctx context.Context, rawURL string) bool {
	norm := NormalizeURL(rawURL)
	if norm == "" {
		return false
	}
	m.mu.RLock()
	configured := m.isConfiguredLocked(norm)
	m.mu.RUnlock()
	if !configured {
		return false
	}

	m.setStatus(models.Connecting(norm, m.isDefault(norm)))
	if err := m.pool.Remove(ctx, norm); err != nil {
		m.log.Warn("Pool remove failed during reconnect", zap.String("relay", norm), zap.Error(err))
	}
	return m.attemptConnect(ctx, norm)
}

/* ------------------------------------------------------------------ *
|  Query surface                                                      |
* -------------------------------------------------------------------*/

// ConfiguredRelays returns a copy of the ordered configured relay list.
func (m *Manager) ConfiguredRelays() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.configured))
	copy(out, m.configured)
	return out
}

// ConfiguredRelayCount returns the size of the configured set.
func (m *Manager) ConfiguredRelayCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.configured)
}

// ConnectedRelays returns the configured relays the pool currently reports
// as connected. URLs the pool holds outside the configured set are ignored.
func (m *Manager) ConnectedRelays() []string {
	active := map[string]struct{}{}
	for _, handle := range m.pool.ActiveRelays() {
		if handle.Connected() {
			active[handle.URL()] = struct{}{}
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var connected []string
	for _, url := range m.configured {
		if _, ok := active[url]; ok {
			connected = append(connected, url)
		}
	}
	return connected
}

// ConnectedRelayCount returns the number of connected configured relays.
func (m *Manager) ConnectedRelayCount() int {
	return len(m.ConnectedRelays())
}

// HasConnectedRelay reports whether at least one configured relay is
// connected.
func (m *Manager) HasConnectedRelay() bool {
	return m.ConnectedRelayCount() > 0
}

// IsRelayConfigured reports whether the URL (after normalization) is in the
// configured set.
func (m *Manager) IsRelayConfigured(rawURL string) bool {
	norm := NormalizeURL(rawURL)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isConfiguredLocked(norm)
}

// IsRelayConnected reports whether the URL names a connected configured
// relay.
func (m *Manager) IsRelayConnected(rawURL string) bool {
	norm := NormalizeURL(rawURL)
	for _, url := range m.ConnectedRelays() {
		if url == norm {
			return true
		}
	}
	return false
}

// GetRelayStatus returns the current status entry for the URL, nil when not
// configured.
func (m *Manager) GetRelayStatus(rawURL string) *models.RelayConnectionStatus {
	norm := NormalizeURL(rawURL)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if status, ok := m.statuses[norm]; ok {
		return &status
	}
	return nil
}

// CurrentStatuses returns a snapshot copy of the status map. Mutating the
// returned map does not affect the manager.
func (m *Manager) CurrentStatuses() StatusSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

/* ------------------------------------------------------------------ *
|  Status stream                                                      |
* -------------------------------------------------------------------*/

// SubscribeStatus registers a status stream listener. Every status change
// pushes a fresh snapshot to every listener; a listener that stops draining
// loses intermediate snapshots rather than blocking mutators. The returned
// cancel removes the listener; after Dispose the channel is closed.
func (m *Manager) SubscribeStatus() (<-chan StatusSnapshot, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	if m.disposed {
		ch := make(chan StatusSnapshot)
		close(ch)
		return ch, func() {}
	}

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan StatusSnapshot, 16)
	m.subs[id] = ch

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if existing, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(existing)
		}
	}
}

// Dispose stops auto-reconnection, closes every status stream and resets the
// initialized flag. Safe to call more than once.
func (m *Manager) Dispose() {
	m.subMu.Lock()
	if !m.disposed {
		m.disposed = true
		if m.reconnectStop != nil {
			close(m.reconnectStop)
		}
		for id, ch := range m.subs {
			delete(m.subs, id)
			close(ch)
		}
	}
	m.subMu.Unlock()

	m.workers.Stop()

	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()
}

/* ------------------------------------------------------------------ *
|  Internals                                                          |
* -------------------------------------------------------------------*/

// attemptConnect drives one pool add and records the terminal status. Pool
// errors degrade the relay to the error state and are never re-raised.
func (m *Manager) attemptConnect(ctx context.Context, url string) bool {
	ok, err := m.pool.Add(ctx, url)
	if err != nil || !ok {
		if err != nil {
			m.log.Warn("Relay connection failed", zap.String("relay", url), zap.Error(err))
		}
		metrics.RelayErrors.WithLabelValues(url).Inc()
		m.setStatus(models.Errored(url, m.isDefault(url)))
		return false
	}

	m.mu.Lock()
	m.attempts[url] = 0
	m.mu.Unlock()
	m.setStatus(models.Connected(url, m.isDefault(url)))
	return true
}

func (m *Manager) isDefault(url string) bool {
	return url == NormalizeURL(m.cfg.DefaultRelayURL)
}

func (m *Manager) isConfiguredLocked(norm string) bool {
	for _, url := range m.configured {
		if url == norm {
			return true
		}
	}
	return false
}

// setStatus replaces one status entry and broadcasts a snapshot. Entries
// removed concurrently (relay removal) are not resurrected.
func (m *Manager) setStatus(status models.RelayConnectionStatus) {
	m.mu.Lock()
	if !m.isConfiguredLocked(status.URL) {
		m.mu.Unlock()
		return
	}
	m.statuses[status.URL] = status
	m.mu.Unlock()
	m.emit()
}

func (m *Manager) snapshotLocked() StatusSnapshot {
	snapshot := make(StatusSnapshot, len(m.statuses))
	for url, status := range m.statuses {
		snapshot[url] = status
	}
	return snapshot
}

// emit pushes a fresh snapshot to every subscriber and refreshes the gauges.
func (m *Manager) emit() {
	m.mu.RLock()
	snapshot := m.snapshotLocked()
	configured := len(m.configured)
	m.mu.RUnlock()

	connected := 0
	for _, status := range snapshot {
		if status.IsConnected() {
			connected++
		}
	}
	metrics.ConfiguredRelays.Set(float64(configured))
	metrics.ConnectedRelays.Set(float64(connected))

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- snapshot:
		default:
			// slow subscriber, drop this snapshot for it
		}
	}
}

func (m *Manager) persist(ctx context.Context) {
	if m.cfg.Storage == nil {
		return
	}
	urls := m.ConfiguredRelays()
	if err := m.cfg.Storage.SaveRelays(ctx, urls); err != nil {
		m.log.Warn("Failed to persist relay list", zap.Error(err))
	}
}

// startAutoReconnect launches the periodic retry loop when enabled. Each
// relay gets at most MaxReconnectAttempts consecutive failures before the
// loop leaves it alone; a successful connect resets its counter.
func (m *Manager) startAutoReconnect() {
	if !m.cfg.AutoReconnect {
		return
	}
	m.subMu.Lock()
	if m.disposed || m.reconnectStop != nil {
		m.subMu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.reconnectStop = stop
	m.subMu.Unlock()

	go func() {
		ticker := time.NewTicker(m.cfg.ReconnectDelay)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.reconnectPass()
			}
		}
	}()
}

func (m *Manager) reconnectPass() {
	m.mu.Lock()
	var stale []string
	for _, url := range m.configured {
		status, ok := m.statuses[url]
		if ok && status.IsConnected() {
			continue
		}
		if m.attempts[url] >= m.cfg.MaxReconnectAttempts {
			continue
		}
		if !m.reconnects.Allow("reconnect:" + url) {
			continue
		}
		m.attempts[url]++
		stale = append(stale, url)
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultConnectTimeout)
	defer cancel()
	for _, url := range stale {
		metrics.ReconnectAttempts.WithLabelValues(url).Inc()
		m.setStatus(models.Connecting(url, m.isDefault(url)))
		m.attemptConnect(ctx, url)
	}
}
