package pool

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/Shugur-Network/nostr-client/internal/constants"
	"github.com/Shugur-Network/nostr-client/internal/domain"
	apperrors "github.com/Shugur-Network/nostr-client/internal/errors"
	"github.com/Shugur-Network/nostr-client/internal/identity"
	"github.com/Shugur-Network/nostr-client/internal/logger"
	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
)

// Config tunes the pool's transport behavior.
type Config struct {
	// Identity signs AUTH responses and built events. Nil means read-only.
	Identity *identity.ClientIdentity

	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
	PublishTimeout time.Duration
}

func (c *Config) withDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = constants.DefaultConnectTimeout
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = constants.DefaultQueryTimeout
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = constants.DefaultPublishTimeout
	}
}

// Pool holds client WebSocket connections to relays and speaks the raw
// protocol verbs over them. It implements both domain.ConnectionPool
// (membership driven by the relay manager) and domain.RelayProtocol
// (query/subscribe/publish/count used by the request client).
type Pool struct {
	cfg Config
	log *zap.Logger

	mu     sync.RWMutex
	conns  map[string]*relayConn
	subs   map[string]*poolSub
	closed bool
}

var (
	_ domain.ConnectionPool = (*Pool)(nil)
	_ domain.RelayProtocol  = (*Pool)(nil)
)

// poolSub is one live subscription fanned out across member connections.
// cleanup closes the ephemeral temp-relay connections dialed for it.
type poolSub struct {
	id      string
	conns   []*relayConn
	cleanup func()

	seenMu sync.Mutex
	seen   map[string]struct{}
}

// markSeen dedupes events arriving from multiple relays.
func (s *poolSub) markSeen(id string) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

// New creates an empty pool.
func New(cfg Config) *Pool {
	cfg.withDefaults()
	return &Pool{
		cfg:   cfg,
		log:   logger.New("pool"),
		conns: make(map[string]*relayConn),
		subs:  make(map[string]*poolSub),
	}
}

/* ------------------------------------------------------------------ *
|  domain.ConnectionPool                                              |
* -------------------------------------------------------------------*/

// Add opens a connection to url. An existing open connection is reused.
func (p *Pool) Add(ctx context.Context, url string) (bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false, fmt.Errorf("pool is closed")
	}
	if existing, ok := p.conns[url]; ok && existing.Connected() {
		p.mu.Unlock()
		return true, nil
	}
	p.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	rc, err := p.connect(dialCtx, url)
	if err != nil {
		return false, apperrors.ConnectionError(url, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		rc.close()
		return false, fmt.Errorf("pool is closed")
	}
	// another caller may have connected while we were dialing
	if existing, ok := p.conns[url]; ok && existing.Connected() {
		rc.close()
		return true, nil
	}
	p.conns[url] = rc
	p.log.Info("Relay connected", zap.String("relay", url))
	return true, nil
}

// Remove closes and forgets the connection to url.
func (p *Pool) Remove(ctx context.Context, url string) error {
	p.mu.Lock()
	rc := p.conns[url]
	delete(p.conns, url)
	p.mu.Unlock()

	if rc != nil {
		rc.close()
		p.log.Info("Relay disconnected", zap.String("relay", url))
	}
	return nil
}

// ActiveRelays lists the currently held connections.
func (p *Pool) ActiveRelays() []domain.RelayHandle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	handles := make([]domain.RelayHandle, 0, len(p.conns))
	for _, rc := range p.conns {
		handles = append(handles, rc)
	}
	return handles
}

/* ------------------------------------------------------------------ *
|  Internals                                                          |
* -------------------------------------------------------------------*/

// connect dials and wires the AUTH responder.
func (p *Pool) connect(ctx context.Context, url string) (*relayConn, error) {
	rc, err := dial(ctx, url, p.cfg.ConnectTimeout, p.log)
	if err != nil {
		return nil, err
	}
	rc.onAuth = func(challenge string) {
		p.respondAuth(rc, challenge)
	}
	return rc, nil
}

// respondAuth answers a relay AUTH challenge with a signed kind-22242 event.
// Without keys the challenge is ignored and the relay keeps serving whatever
// it allows unauthenticated.
func (p *Pool) respondAuth(rc *relayConn, challenge string) {
	if p.cfg.Identity == nil {
		return
	}
	evt := nostr.Event{
		Kind:      nostr.KindClientAuthentication,
		CreatedAt: nostr.Now(),
		Tags: nostr.Tags{
			{"relay", rc.url},
			{"challenge", challenge},
		},
	}
	if err := evt.Sign(p.cfg.Identity.PrivateKey); err != nil {
		p.log.Warn("Failed to sign auth event", zap.Error(err))
		return
	}
	if err := rc.writeJSON([]interface{}{"AUTH", evt}); err != nil {
		p.log.Warn("Failed to send auth response", zap.Error(err))
		return
	}
	rc.markAuthed()
}

// openConns returns the currently usable connections, optionally restricted
// to a set of URLs.
func (p *Pool) openConns(only []string) []*relayConn {
	allowed := map[string]struct{}{}
	for _, u := range only {
		allowed[u] = struct{}{}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	conns := make([]*relayConn, 0, len(p.conns))
	for url, rc := range p.conns {
		if !rc.Connected() {
			continue
		}
		if len(only) > 0 {
			if _, ok := allowed[url]; !ok {
				continue
			}
		}
		conns = append(conns, rc)
	}
	return conns
}

// withTempRelays dials short-lived connections for the given URLs and
// returns them alongside a cleanup that closes only the ephemeral ones.
func (p *Pool) withTempRelays(ctx context.Context, base []*relayConn, temp []string) ([]*relayConn, func()) {
	if len(temp) == 0 {
		return base, func() {}
	}

	held := map[string]struct{}{}
	for _, rc := range base {
		held[rc.url] = struct{}{}
	}

	var ephemeral []*relayConn
	conns := base
	for _, url := range temp {
		if _, ok := held[url]; ok {
			continue
		}
		dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		rc, err := p.connect(dialCtx, url)
		cancel()
		if err != nil {
			p.log.Debug("Temp relay dial failed", zap.String("relay", url), zap.Error(err))
			continue
		}
		ephemeral = append(ephemeral, rc)
		conns = append(conns, rc)
	}
	return conns, func() {
		for _, rc := range ephemeral {
			rc.close()
		}
	}
}

// newSubID generates a random subscription id.
func newSubID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("sub-%d", time.Now().UnixNano())
	}
	return "sub-" + hex.EncodeToString(buf)
}
