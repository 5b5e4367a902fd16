package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Shugur-Network/nostr-client/internal/cache"
	"github.com/Shugur-Network/nostr-client/internal/domain"
	"github.com/Shugur-Network/nostr-client/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	url       string
	connected bool
}

func (h fakeHandle) URL() string     { return h.url }
func (h fakeHandle) Connected() bool { return h.connected }

// fakePool records Add/Remove calls and lets tests fail specific URLs.
type fakePool struct {
	mu       sync.Mutex
	conns    map[string]bool
	added    []string
	removed  []string
	failWith map[string]error
}

func newFakePool() *fakePool {
	return &fakePool{
		conns:    make(map[string]bool),
		failWith: make(map[string]error),
	}
}

func (p *fakePool) Add(ctx context.Context, url string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, url)
	if err, ok := p.failWith[url]; ok {
		return false, err
	}
	p.conns[url] = true
	return true, nil
}

func (p *fakePool) Remove(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, url)
	delete(p.conns, url)
	return nil
}

func (p *fakePool) ActiveRelays() []domain.RelayHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	handles := make([]domain.RelayHandle, 0, len(p.conns))
	for url := range p.conns {
		handles = append(handles, fakeHandle{url: url, connected: true})
	}
	return handles
}

func (p *fakePool) addCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.added)
}

func (p *fakePool) setFailure(url string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failWith, url)
	} else {
		p.failWith[url] = err
	}
}

var _ domain.ConnectionPool = (*fakePool)(nil)

const testDefaultRelay = "wss://relay.damus.io"

func newTestManager(t *testing.T, pool *fakePool, storage domain.RelayStorage) *Manager {
	t.Helper()
	m := NewManager(ManagerConfig{
		DefaultRelayURL: testDefaultRelay,
		Storage:         storage,
	}, pool)
	t.Cleanup(m.Dispose)
	return m
}

func TestManagerInitializeMergesStoredList(t *testing.T) {
	pool := newFakePool()
	storage := cache.NewMemoryRelayStorage(
		"wss://relay.two.example/",
		"relay.one.example",
		"wss://relay.damus.io", // duplicate of default
		"not a url://",
	)
	m := newTestManager(t, pool, storage)

	require.NoError(t, m.Initialize(context.Background()))
	assert.True(t, m.IsInitialized())

	configured := m.ConfiguredRelays()
	require.Len(t, configured, 3)
	assert.Equal(t, testDefaultRelay, configured[0], "default relay always comes first")
	assert.Contains(t, configured, "wss://relay.two.example")
	assert.Contains(t, configured, "wss://relay.one.example")

	// merged, normalized list was persisted back
	saved, err := storage.LoadRelays(context.Background())
	require.NoError(t, err)
	assert.Equal(t, configured, saved)

	for _, url := range configured {
		status := m.GetRelayStatus(url)
		require.NotNil(t, status)
		assert.True(t, status.IsConnected(), "relay %s should be connected", url)
	}
	assert.Equal(t, 3, m.ConnectedRelayCount())
}

func TestManagerInitializeIdempotent(t *testing.T) {
	pool := newFakePool()
	m := newTestManager(t, pool, nil)

	require.NoError(t, m.Initialize(context.Background()))
	attempts := pool.addCount()
	require.NoError(t, m.Initialize(context.Background()))
	assert.Equal(t, attempts, pool.addCount(), "second Initialize must not re-dial")
}

func TestManagerInitializeIsolatesFailures(t *testing.T) {
	pool := newFakePool()
	pool.setFailure("wss://relay.bad.example", assert.AnError)
	storage := cache.NewMemoryRelayStorage("wss://relay.bad.example")
	m := newTestManager(t, pool, storage)

	require.NoError(t, m.Initialize(context.Background()), "one bad relay must not fail initialization")

	bad := m.GetRelayStatus("wss://relay.bad.example")
	require.NotNil(t, bad)
	assert.True(t, bad.HasError())

	def := m.GetRelayStatus(testDefaultRelay)
	require.NotNil(t, def)
	assert.True(t, def.IsConnected())
}

func TestManagerAddRelayValidation(t *testing.T) {
	pool := newFakePool()
	m := newTestManager(t, pool, nil)
	require.NoError(t, m.Initialize(context.Background()))
	ctx := context.Background()

	assert.False(t, m.AddRelay(ctx, ""))
	assert.False(t, m.AddRelay(ctx, "   "))
	assert.False(t, m.AddRelay(ctx, "https://not-a-relay.example"))

	assert.True(t, m.AddRelay(ctx, "relay.new.com"))
	assert.Contains(t, m.ConfiguredRelays(), "wss://relay.new.com")

	// duplicates are rejected in any spelling
	assert.False(t, m.AddRelay(ctx, "relay.new.com"))
	assert.False(t, m.AddRelay(ctx, "wss://relay.new.com/"))
	assert.False(t, m.AddRelay(ctx, testDefaultRelay))
}

func TestManagerAddRelayPoolFailureStillConfigures(t *testing.T) {
	pool := newFakePool()
	storage := cache.NewMemoryRelayStorage()
	m := newTestManager(t, pool, storage)
	require.NoError(t, m.Initialize(context.Background()))
	ctx := context.Background()

	pool.setFailure("wss://relay.flaky.example", assert.AnError)
	ok := m.AddRelay(ctx, "relay.flaky.example")

	assert.False(t, ok, "returned bool reflects the connection attempt")
	assert.True(t, m.IsRelayConfigured("relay.flaky.example"), "configuration is unconditional for a valid new URL")

	status := m.GetRelayStatus("wss://relay.flaky.example")
	require.NotNil(t, status)
	assert.True(t, status.HasError())

	saved, err := storage.LoadRelays(ctx)
	require.NoError(t, err)
	assert.Contains(t, saved, "wss://relay.flaky.example")
}

func TestManagerRemoveRelay(t *testing.T) {
	pool := newFakePool()
	m := newTestManager(t, pool, nil)
	require.NoError(t, m.Initialize(context.Background()))
	ctx := context.Background()

	require.True(t, m.AddRelay(ctx, "relay.other.example"))

	assert.False(t, m.RemoveRelay(ctx, testDefaultRelay), "default relay is protected")
	assert.False(t, m.RemoveRelay(ctx, "wss://relay.unknown.example"))

	assert.True(t, m.RemoveRelay(ctx, "relay.other.example"))
	assert.False(t, m.IsRelayConfigured("relay.other.example"))
	assert.Nil(t, m.GetRelayStatus("wss://relay.other.example"))
	assert.Contains(t, pool.removed, "wss://relay.other.example")
}

func TestManagerStatusStreamFanOut(t *testing.T) {
	pool := newFakePool()
	m := newTestManager(t, pool, nil)
	require.NoError(t, m.Initialize(context.Background()))

	ch1, cancel1 := m.SubscribeStatus()
	ch2, cancel2 := m.SubscribeStatus()
	defer cancel1()
	defer cancel2()

	require.True(t, m.AddRelay(context.Background(), "relay.stream.example"))

	for _, ch := range []<-chan StatusSnapshot{ch1, ch2} {
		var got StatusSnapshot
		deadline := time.After(time.Second)
	drain:
		for {
			select {
			case snapshot := <-ch:
				got = snapshot
				if status, ok := snapshot["wss://relay.stream.example"]; ok && status.IsConnected() {
					break drain
				}
			case <-deadline:
				break drain
			}
		}
		require.NotNil(t, got)
		status, ok := got["wss://relay.stream.example"]
		require.True(t, ok, "every listener sees the new relay")
		assert.True(t, status.IsConnected())
	}

	// snapshots are defensive copies
	snapshot := m.CurrentStatuses()
	delete(snapshot, testDefaultRelay)
	assert.NotNil(t, m.GetRelayStatus(testDefaultRelay))
}

// collectStatesUntilTerminal drains snapshots for one relay URL and returns
// the observed state sequence, ending at the first connected or error state.
func collectStatesUntilTerminal(t *testing.T, ch <-chan StatusSnapshot, url string) []models.RelayState {
	t.Helper()
	var states []models.RelayState
	deadline := time.After(time.Second)
	for {
		select {
		case snapshot := <-ch:
			status, ok := snapshot[url]
			if !ok {
				continue
			}
			states = append(states, status.State)
			if status.IsConnected() || status.HasError() {
				return states
			}
		case <-deadline:
			t.Fatalf("no terminal state observed for %s, saw %v", url, states)
		}
	}
}

func TestManagerAddRelayEmitsConnectingFirst(t *testing.T) {
	pool := newFakePool()
	m := newTestManager(t, pool, nil)
	require.NoError(t, m.Initialize(context.Background()))

	ch, cancel := m.SubscribeStatus()
	defer cancel()

	require.True(t, m.AddRelay(context.Background(), "wss://relay.order.example"))

	states := collectStatesUntilTerminal(t, ch, "wss://relay.order.example")
	require.GreaterOrEqual(t, len(states), 2, "connecting and terminal states are both emitted")
	assert.Equal(t, models.RelayStateConnecting, states[0])
	assert.Equal(t, models.RelayStateConnected, states[len(states)-1])
}

func TestManagerReconnectRelayEmitsConnectingBeforeError(t *testing.T) {
	pool := newFakePool()
	m := newTestManager(t, pool, nil)
	require.NoError(t, m.Initialize(context.Background()))

	ch, cancel := m.SubscribeStatus()
	defer cancel()

	pool.setFailure(testDefaultRelay, assert.AnError)
	assert.False(t, m.ReconnectRelay(context.Background(), testDefaultRelay))

	states := collectStatesUntilTerminal(t, ch, testDefaultRelay)
	require.GreaterOrEqual(t, len(states), 2)
	assert.Equal(t, models.RelayStateConnecting, states[0])
	assert.Equal(t, models.RelayStateError, states[len(states)-1])
}

func TestManagerReconnectRelay(t *testing.T) {
	pool := newFakePool()
	m := newTestManager(t, pool, nil)
	require.NoError(t, m.Initialize(context.Background()))
	ctx := context.Background()

	assert.False(t, m.ReconnectRelay(ctx, "wss://relay.unknown.example"))

	assert.True(t, m.ReconnectRelay(ctx, testDefaultRelay))
	assert.Contains(t, pool.removed, testDefaultRelay)
	status := m.GetRelayStatus(testDefaultRelay)
	require.NotNil(t, status)
	assert.True(t, status.IsConnected())
}

func TestManagerRetryDisconnectedRelays(t *testing.T) {
	pool := newFakePool()
	pool.setFailure("wss://relay.down.example", assert.AnError)
	storage := cache.NewMemoryRelayStorage("wss://relay.down.example")
	m := newTestManager(t, pool, storage)
	require.NoError(t, m.Initialize(context.Background()))

	require.True(t, m.GetRelayStatus("wss://relay.down.example").HasError())

	// relay comes back
	pool.setFailure("wss://relay.down.example", nil)
	m.RetryDisconnectedRelays(context.Background())

	status := m.GetRelayStatus("wss://relay.down.example")
	require.NotNil(t, status)
	assert.True(t, status.IsConnected())
}

func TestManagerConnectedRelaysIgnoresUnconfigured(t *testing.T) {
	pool := newFakePool()
	m := newTestManager(t, pool, nil)
	require.NoError(t, m.Initialize(context.Background()))

	// the pool holds a connection the manager never configured
	pool.mu.Lock()
	pool.conns["wss://relay.stray.example"] = true
	pool.mu.Unlock()

	connected := m.ConnectedRelays()
	assert.Equal(t, []string{testDefaultRelay}, connected)
	assert.False(t, m.IsRelayConnected("wss://relay.stray.example"))
	assert.True(t, m.IsRelayConnected(testDefaultRelay))
}

func TestManagerDispose(t *testing.T) {
	pool := newFakePool()
	m := NewManager(ManagerConfig{DefaultRelayURL: testDefaultRelay}, pool)
	require.NoError(t, m.Initialize(context.Background()))

	ch, _ := m.SubscribeStatus()

	m.Dispose()
	m.Dispose() // safe to call twice

	assert.False(t, m.IsInitialized())

	// existing streams complete
	for {
		if _, open := <-ch; !open {
			break
		}
	}

	// new listeners get an immediately completed stream
	late, cancel := m.SubscribeStatus()
	defer cancel()
	_, open := <-late
	assert.False(t, open)
}

func TestManagerReinitializeAfterDispose(t *testing.T) {
	pool := newFakePool()
	m := newTestManager(t, pool, nil)
	require.NoError(t, m.Initialize(context.Background()))
	m.Dispose()
	require.False(t, m.IsInitialized())

	require.NotPanics(t, func() {
		require.NoError(t, m.Initialize(context.Background()))
	})
	assert.True(t, m.IsInitialized())
	assert.True(t, m.IsRelayConnected(testDefaultRelay))

	// the status stream is live again
	ch, cancel := m.SubscribeStatus()
	defer cancel()
	select {
	case _, open := <-ch:
		assert.True(t, open, "stream must not start out completed after re-initialization")
	default:
	}

	require.True(t, m.AddRelay(context.Background(), "wss://nos.lol"))
	select {
	case snapshot, open := <-ch:
		require.True(t, open)
		assert.Contains(t, snapshot, "wss://nos.lol")
	case <-time.After(time.Second):
		t.Fatal("no snapshot after re-initialization")
	}
}
