package relay

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/Shugur-Network/nostr-client/internal/constants"
	"github.com/Shugur-Network/nostr-client/internal/domain"
	"github.com/Shugur-Network/nostr-client/internal/logger"
	"github.com/Shugur-Network/nostr-client/internal/metrics"
	"github.com/Shugur-Network/nostr-client/internal/models"
	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/willf/bloom"
	"go.uber.org/zap"
)

// Subscription is one live event stream. Events arrive on C until the
// subscription is closed, at which point C is closed. A reader that stops
// draining loses events rather than stalling the relay read loop.
type Subscription struct {
	// ID is the effective relay-side subscription id. This is the id
	// Unsubscribe expects, even when the caller requested a different one.
	ID string

	C <-chan nostr.Event

	events chan nostr.Event
	once   sync.Once
}

func (s *Subscription) deliver(evt nostr.Event) {
	select {
	case s.events <- evt:
	default:
	}
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.events) })
}

// RequestClient is the orchestration layer over the relay protocol. Reads
// resolve through a waterfall of cache, gateway and live relays; writes go
// straight to the relay protocol. Both the cache DAO and the gateway are
// optional dependencies, nil simply disables the tier.
type RequestClient struct {
	manager  *Manager
	protocol domain.RelayProtocol
	dao      domain.EventDao
	gateway  domain.GatewayClient
	log      *zap.Logger

	mu       sync.Mutex
	subs     map[string]*Subscription
	disposed bool

	seenMu sync.Mutex
	seen   *bloom.BloomFilter
}

// NewRequestClient wires the request client. dao and gateway may be nil.
func NewRequestClient(manager *Manager, protocol domain.RelayProtocol, dao domain.EventDao, gateway domain.GatewayClient) *RequestClient {
	return &RequestClient{
		manager:  manager,
		protocol: protocol,
		dao:      dao,
		gateway:  gateway,
		log:      logger.New("request-client"),
		subs:     make(map[string]*Subscription),
		seen:     bloom.New(constants.BloomExpectedItems*10, constants.BloomHashFunctions),
	}
}

/* ------------------------------------------------------------------ *
|  Read waterfall                                                     |
* -------------------------------------------------------------------*/

// QueryEvents resolves a query through cache, gateway and relays, in that
// order, returning the first tier with a non-empty answer. The fast tiers
// only apply to single-filter queries; multi-filter queries go straight to
// the relays. Tier failures fall through, they never surface to the caller.
func (c *RequestClient) QueryEvents(ctx context.Context, filters []nostr.Filter, opts *models.QueryOptions) ([]nostr.Event, error) {
	if opts == nil {
		opts = models.DefaultQueryOptions()
	}

	if len(filters) == 1 {
		if events := c.queryCache(ctx, filters[0]); len(events) > 0 {
			metrics.QueryResolutions.WithLabelValues("cache").Inc()
			return events, nil
		}
		if events := c.queryGateway(ctx, filters[0], opts); len(events) > 0 {
			metrics.QueryResolutions.WithLabelValues("gateway").Inc()
			c.cacheBatch(ctx, events)
			return events, nil
		}
	}

	events, err := c.protocol.QueryEvents(ctx, filters, opts)
	if err != nil {
		return nil, err
	}
	metrics.QueryResolutions.WithLabelValues("relay").Inc()
	if len(events) > 0 {
		c.cacheBatch(ctx, events)
	}
	return events, nil
}

// FetchEventByID resolves a single event by id through the same waterfall.
// Returns nil when no tier knows the event.
func (c *RequestClient) FetchEventByID(ctx context.Context, id string, opts *models.QueryOptions) (*nostr.Event, error) {
	if opts == nil {
		opts = models.DefaultQueryOptions()
	}

	if c.dao != nil {
		evt, err := c.dao.GetEventByID(ctx, id)
		if err != nil {
			c.log.Debug("Cache lookup failed", zap.String("id", id), zap.Error(err))
		} else if evt != nil {
			metrics.QueryResolutions.WithLabelValues("cache").Inc()
			return evt, nil
		}
	}

	if c.gateway != nil && opts.UseGateway {
		evt, err := c.gateway.GetEvent(ctx, id)
		if err != nil {
			metrics.GatewayFallthroughs.Inc()
			c.log.Debug("Gateway event lookup failed", zap.String("id", id), zap.Error(err))
		} else if evt != nil {
			metrics.QueryResolutions.WithLabelValues("gateway").Inc()
			c.cacheOne(ctx, *evt)
			return evt, nil
		}
	}

	filter := nostr.Filter{IDs: []string{id}, Limit: 1}
	events, err := c.protocol.QueryEvents(ctx, []nostr.Filter{filter}, opts)
	if err != nil {
		return nil, err
	}
	metrics.QueryResolutions.WithLabelValues("relay").Inc()
	if len(events) == 0 {
		return nil, nil
	}
	evt := events[0]
	c.cacheOne(ctx, evt)
	return &evt, nil
}

// FetchProfile resolves the metadata event for a pubkey through the same
// waterfall. Returns nil when the pubkey has no known profile.
func (c *RequestClient) FetchProfile(ctx context.Context, pubkey string, opts *models.QueryOptions) (*nostr.Event, error) {
	if opts == nil {
		opts = models.DefaultQueryOptions()
	}

	if c.dao != nil {
		evt, err := c.dao.GetProfileByPubkey(ctx, pubkey)
		if err != nil {
			c.log.Debug("Cache profile lookup failed", zap.String("pubkey", pubkey), zap.Error(err))
		} else if evt != nil {
			metrics.QueryResolutions.WithLabelValues("cache").Inc()
			return evt, nil
		}
	}

	if c.gateway != nil && opts.UseGateway {
		evt, err := c.gateway.GetProfile(ctx, pubkey)
		if err != nil {
			metrics.GatewayFallthroughs.Inc()
			c.log.Debug("Gateway profile lookup failed", zap.String("pubkey", pubkey), zap.Error(err))
		} else if evt != nil {
			metrics.QueryResolutions.WithLabelValues("gateway").Inc()
			c.cacheOne(ctx, *evt)
			return evt, nil
		}
	}

	filter := nostr.Filter{
		Kinds:   []int{constants.KindProfileMetadata},
		Authors: []string{pubkey},
		Limit:   1,
	}
	events, err := c.protocol.QueryEvents(ctx, []nostr.Filter{filter}, opts)
	if err != nil {
		return nil, err
	}
	metrics.QueryResolutions.WithLabelValues("relay").Inc()
	if len(events) == 0 {
		return nil, nil
	}
	evt := events[0]
	c.cacheOne(ctx, evt)
	return &evt, nil
}

func (c *RequestClient) queryCache(ctx context.Context, filter nostr.Filter) []nostr.Event {
	if c.dao == nil {
		return nil
	}
	events, err := c.dao.GetEventsByFilter(ctx, filter)
	if err != nil {
		c.log.Debug("Cache query failed", zap.Error(err))
		return nil
	}
	return events
}

func (c *RequestClient) queryGateway(ctx context.Context, filter nostr.Filter, opts *models.QueryOptions) []nostr.Event {
	if c.gateway == nil || !opts.UseGateway {
		return nil
	}
	resp, err := c.gateway.Query(ctx, filter)
	if err != nil {
		metrics.GatewayFallthroughs.Inc()
		c.log.Debug("Gateway query failed", zap.Error(err))
		return nil
	}
	if resp == nil || len(resp.Events) == 0 {
		metrics.GatewayFallthroughs.Inc()
		return nil
	}
	return resp.Events
}

// cacheBatch writes query results back to the cache in one round trip.
// Failures are logged and swallowed.
func (c *RequestClient) cacheBatch(ctx context.Context, events []nostr.Event) {
	if c.dao == nil || len(events) == 0 {
		return
	}
	if err := c.dao.UpsertEventsBatch(ctx, events); err != nil {
		metrics.CacheWriteFailures.Inc()
		c.log.Debug("Cache write-back failed", zap.Int("events", len(events)), zap.Error(err))
		return
	}
	metrics.CacheWrites.Add(float64(len(events)))
}

func (c *RequestClient) cacheOne(ctx context.Context, evt nostr.Event) {
	if c.dao == nil {
		return
	}
	if err := c.dao.UpsertEvent(ctx, evt); err != nil {
		metrics.CacheWriteFailures.Inc()
		c.log.Debug("Cache write-back failed", zap.String("id", evt.ID), zap.Error(err))
		return
	}
	metrics.CacheWrites.Inc()
}

/* ------------------------------------------------------------------ *
|  Subscriptions                                                      |
* -------------------------------------------------------------------*/

// Subscribe opens a live subscription and returns its stream. Every call
// creates an independent registration. Incoming events are forwarded onto
// the stream and written to the cache when one is configured; a cache fault
// never blocks or fails delivery.
func (c *RequestClient) Subscribe(ctx context.Context, filters []nostr.Filter, opts *models.QueryOptions) (*Subscription, error) {
	if opts == nil {
		opts = models.DefaultQueryOptions()
	}

	sub := &Subscription{events: make(chan nostr.Event, 256)}
	sub.C = sub.events

	effectiveID, err := c.protocol.Subscribe(ctx, filters, opts.SubscriptionID, func(evt nostr.Event) {
		metrics.SubscriptionEvents.Inc()
		sub.deliver(evt)
		c.autoCache(evt)
	}, opts)
	if err != nil {
		sub.close()
		return nil, err
	}
	sub.ID = effectiveID

	c.mu.Lock()
	c.subs[effectiveID] = sub
	metrics.ActiveSubscriptions.Set(float64(len(c.subs)))
	c.mu.Unlock()

	return sub, nil
}

// Unsubscribe closes one live subscription. Unknown ids are a no-op for the
// local registry but the protocol is still told, so relay-side resources are
// always signaled.
func (c *RequestClient) Unsubscribe(ctx context.Context, subID string) {
	c.mu.Lock()
	if sub, ok := c.subs[subID]; ok {
		delete(c.subs, subID)
		sub.close()
	}
	metrics.ActiveSubscriptions.Set(float64(len(c.subs)))
	c.mu.Unlock()

	if err := c.protocol.Unsubscribe(ctx, subID); err != nil {
		c.log.Debug("Protocol unsubscribe failed", zap.String("sub_id", subID), zap.Error(err))
	}
}

// CloseAllSubscriptions closes every tracked subscription. No protocol calls
// happen when nothing is tracked.
func (c *RequestClient) CloseAllSubscriptions(ctx context.Context) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.Unsubscribe(ctx, id)
	}
}

// SearchVideos opens a live subscription over short-video events matching a
// full-text search query. Zero time bounds and limit are omitted from the
// filter.
func (c *RequestClient) SearchVideos(ctx context.Context, query string, since, until *nostr.Timestamp, limit int) (*Subscription, error) {
	return c.Subscribe(ctx, []nostr.Filter{searchFilter(constants.KindShortVideo, query, since, until, limit)}, nil)
}

// SearchUsers opens a live subscription over profile metadata events
// matching a full-text search query.
func (c *RequestClient) SearchUsers(ctx context.Context, query string, since, until *nostr.Timestamp, limit int) (*Subscription, error) {
	return c.Subscribe(ctx, []nostr.Filter{searchFilter(constants.KindProfileMetadata, query, since, until, limit)}, nil)
}

func searchFilter(kind int, query string, since, until *nostr.Timestamp, limit int) nostr.Filter {
	filter := nostr.Filter{
		Kinds:  []int{kind},
		Search: query,
		Since:  since,
		Until:  until,
	}
	if limit > 0 {
		filter.Limit = limit
	}
	return filter
}

// autoCache stores a live event in the cache, once per event id, swallowing
// every failure so delivery is never affected.
func (c *RequestClient) autoCache(evt nostr.Event) {
	if c.dao == nil {
		return
	}
	c.seenMu.Lock()
	dup := c.seen.TestAndAddString(evt.ID)
	c.seenMu.Unlock()
	if dup {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.dao.UpsertEvent(ctx, evt); err != nil {
		metrics.CacheWriteFailures.Inc()
		c.log.Debug("Subscription auto-cache failed", zap.String("id", evt.ID), zap.Error(err))
		return
	}
	metrics.CacheWrites.Inc()
}

/* ------------------------------------------------------------------ *
|  Writes                                                             |
* -------------------------------------------------------------------*/

// PublishEvent sends one event to the relay set, returning the accepted
// event or nil on failure. No retries happen at this layer.
func (c *RequestClient) PublishEvent(ctx context.Context, evt nostr.Event, opts *models.PublishOptions) (*nostr.Event, error) {
	accepted, err := c.protocol.SendEvent(ctx, evt, opts)
	c.recordPublish(accepted, err, evt.Kind)
	return accepted, err
}

// SendLike publishes a reaction to the target event.
func (c *RequestClient) SendLike(ctx context.Context, target *nostr.Event, content string, opts *models.PublishOptions) (*nostr.Event, error) {
	accepted, err := c.protocol.SendLike(ctx, target, content, opts)
	c.recordPublish(accepted, err, constants.KindReaction)
	return accepted, err
}

// SendRepost publishes a repost of the target event.
func (c *RequestClient) SendRepost(ctx context.Context, target *nostr.Event, relayAddr, content string, opts *models.PublishOptions) (*nostr.Event, error) {
	accepted, err := c.protocol.SendRepost(ctx, target, relayAddr, content, opts)
	c.recordPublish(accepted, err, constants.KindRepost)
	return accepted, err
}

// DeleteEvent publishes a deletion request for one event id.
func (c *RequestClient) DeleteEvent(ctx context.Context, eventID string, opts *models.PublishOptions) (*nostr.Event, error) {
	accepted, err := c.protocol.DeleteEvent(ctx, eventID, opts)
	c.recordPublish(accepted, err, constants.KindDeletion)
	return accepted, err
}

// DeleteEvents publishes one deletion request covering several event ids.
func (c *RequestClient) DeleteEvents(ctx context.Context, eventIDs []string, opts *models.PublishOptions) (*nostr.Event, error) {
	accepted, err := c.protocol.DeleteEvents(ctx, eventIDs, opts)
	c.recordPublish(accepted, err, constants.KindDeletion)
	return accepted, err
}

// SendContactList publishes the caller's contact list.
func (c *RequestClient) SendContactList(ctx context.Context, contacts nostr.Tags, content string, opts *models.PublishOptions) (*nostr.Event, error) {
	accepted, err := c.protocol.SendContactList(ctx, contacts, content, opts)
	c.recordPublish(accepted, err, constants.KindContactList)
	return accepted, err
}

func (c *RequestClient) recordPublish(accepted *nostr.Event, err error, kind int) {
	if err != nil || accepted == nil {
		metrics.PublishFailures.Inc()
		return
	}
	metrics.EventsPublished.WithLabelValues(strconv.Itoa(kind)).Inc()
}

// Broadcast sends the event once and reports the outcome against the
// currently connected relay count. A successful round trip counts every
// connected relay as reached; a failed one reports zero successes while
// keeping the total, so callers can tell "send failed" apart from "no
// relays". Zero connected relays is never a success, even when the send
// itself went through. Send errors are captured in the result, never
// propagated.
func (c *RequestClient) Broadcast(ctx context.Context, evt nostr.Event, targetRelays []string) models.BroadcastResult {
	result := models.BroadcastResult{
		TotalRelays: c.manager.ConnectedRelayCount(),
	}
	if result.TotalRelays == 0 {
		result.Errors = append(result.Errors, "no connected relays")
		return result
	}

	var opts *models.PublishOptions
	if len(targetRelays) > 0 {
		opts = &models.PublishOptions{TargetRelays: targetRelays}
	}
	accepted, err := c.protocol.SendEvent(ctx, evt, opts)
	c.recordPublish(accepted, err, evt.Kind)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	if accepted == nil {
		result.Errors = append(result.Errors, "event was not accepted")
		return result
	}
	result.Event = accepted
	result.SuccessCount = result.TotalRelays
	return result
}

/* ------------------------------------------------------------------ *
|  Counting                                                           |
* -------------------------------------------------------------------*/

// CountEvents asks the relay for a native COUNT. A relay that does not speak
// the verb triggers a client-side fallback: the equivalent query runs through
// the normal waterfall and the result length is the count.
func (c *RequestClient) CountEvents(ctx context.Context, filters []nostr.Filter, opts *models.QueryOptions) (*models.CountResult, error) {
	if opts == nil {
		opts = models.DefaultQueryOptions()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultCountTimeout
	}

	resp, err := c.protocol.CountEvents(ctx, filters, timeout)
	if err != nil {
		if !errors.Is(err, models.ErrCountNotSupported) {
			return nil, err
		}
		metrics.CountFallbacks.Inc()
		c.log.Debug("COUNT unsupported, counting client-side", zap.Error(err))
		events, qerr := c.QueryEvents(ctx, filters, opts)
		if qerr != nil {
			return nil, qerr
		}
		return &models.CountResult{
			Count:  int64(len(events)),
			Source: models.CountSourceClientSide,
		}, nil
	}

	return &models.CountResult{
		Count:       resp.Count,
		Approximate: resp.Approximate,
		Source:      models.CountSourceWebSocket,
	}, nil
}

/* ------------------------------------------------------------------ *
|  Lifecycle and pass-throughs                                        |
* -------------------------------------------------------------------*/

// Dispose closes every tracked subscription and then the relay protocol.
// Safe to call more than once.
func (c *RequestClient) Dispose(ctx context.Context) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.mu.Unlock()

	c.CloseAllSubscriptions(ctx)
	if err := c.protocol.Close(); err != nil {
		c.log.Warn("Protocol close failed", zap.Error(err))
	}
}

// IsDisposed reports whether Dispose ran.
func (c *RequestClient) IsDisposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// PublicKey returns the signing public key, empty when no keys are loaded.
func (c *RequestClient) PublicKey() string { return c.protocol.PublicKey() }

// HasKeys reports whether signing keys are configured.
func (c *RequestClient) HasKeys() bool { return c.protocol.PublicKey() != "" }

// IsInitialized reflects the relay manager's state.
func (c *RequestClient) IsInitialized() bool { return c.manager.IsInitialized() }

// Relay accessors delegated to the manager.

func (c *RequestClient) ConnectedRelays() []string     { return c.manager.ConnectedRelays() }
func (c *RequestClient) ConnectedRelayCount() int      { return c.manager.ConnectedRelayCount() }
func (c *RequestClient) ConfiguredRelays() []string    { return c.manager.ConfiguredRelays() }
func (c *RequestClient) ConfiguredRelayCount() int     { return c.manager.ConfiguredRelayCount() }
func (c *RequestClient) RelayStatuses() StatusSnapshot { return c.manager.CurrentStatuses() }

func (c *RequestClient) RelayStatusStream() (<-chan StatusSnapshot, func()) {
	return c.manager.SubscribeStatus()
}

func (c *RequestClient) RetryDisconnectedRelays(ctx context.Context) {
	c.manager.RetryDisconnectedRelays(ctx)
}

func (c *RequestClient) AddRelay(ctx context.Context, url string) bool {
	return c.manager.AddRelay(ctx, url)
}

func (c *RequestClient) RemoveRelay(ctx context.Context, url string) bool {
	return c.manager.RemoveRelay(ctx, url)
}
