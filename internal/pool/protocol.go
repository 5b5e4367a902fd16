package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Shugur-Network/nostr-client/internal/constants"
	"github.com/Shugur-Network/nostr-client/internal/domain"
	"github.com/Shugur-Network/nostr-client/internal/models"
	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
)

/* ------------------------------------------------------------------ *
|  domain.RelayProtocol                                               |
* -------------------------------------------------------------------*/

// PublicKey returns the hex public key the pool signs with.
func (p *Pool) PublicKey() string {
	if p.cfg.Identity == nil {
		return ""
	}
	return p.cfg.Identity.PublicKey
}

// QueryEvents runs a one-shot query across the relay set, merging and
// deduplicating results until every relay reached EOSE or the timeout hit.
func (p *Pool) QueryEvents(ctx context.Context, filters []nostr.Filter, opts *models.QueryOptions) ([]nostr.Event, error) {
	if opts == nil {
		opts = models.DefaultQueryOptions()
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("at least one filter is required")
	}

	var only []string
	if opts.RelayURL != "" {
		only = []string{opts.RelayURL}
	}
	conns, cleanup := p.withTempRelays(ctx, p.openConns(only), opts.TempRelays)
	defer cleanup()
	if len(conns) == 0 {
		return nil, fmt.Errorf("no connected relays")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = p.cfg.QueryTimeout
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	subID := opts.SubscriptionID
	if subID == "" {
		subID = newSubID()
	}

	var (
		mu     sync.Mutex
		seen   = make(map[string]struct{})
		events = make([]nostr.Event, 0, constants.DefaultQueryPrealloc)
	)
	collect := func(evt nostr.Event) {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := seen[evt.ID]; ok {
			return
		}
		seen[evt.ID] = struct{}{}
		events = append(events, evt)
	}

	var wg sync.WaitGroup
	for _, rc := range conns {
		if opts.SendAfterAuth {
			if err := rc.waitAuthed(queryCtx); err != nil {
				continue
			}
		}
		if err := rc.subscribe(subID, filters, collect); err != nil {
			p.log.Debug("Query subscribe failed", zap.String("relay", rc.url), zap.Error(err))
			continue
		}
		wg.Add(1)
		go func(rc *relayConn) {
			defer wg.Done()
			select {
			case <-rc.eoseWait(subID):
			case <-queryCtx.Done():
			}
			rc.unsubscribe(subID)
		}(rc)
	}
	wg.Wait()

	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt > events[j].CreatedAt
	})
	return events, nil
}

// Subscribe opens a live subscription across the current relay set. The
// returned id may differ from the requested one when it is empty or already
// taken, and is the id Unsubscribe expects.
func (p *Pool) Subscribe(ctx context.Context, filters []nostr.Filter, subID string, onEvent domain.EventCallback, opts *models.QueryOptions) (string, error) {
	if opts == nil {
		opts = models.DefaultQueryOptions()
	}
	if len(filters) == 0 {
		return "", fmt.Errorf("at least one filter is required")
	}

	conns, cleanup := p.withTempRelays(ctx, p.openConns(nil), opts.TempRelays)
	if len(conns) == 0 {
		cleanup()
		return "", fmt.Errorf("no connected relays")
	}

	effective := subID
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cleanup()
		return "", fmt.Errorf("pool is closed")
	}
	if _, taken := p.subs[effective]; effective == "" || taken {
		effective = newSubID()
	}
	sub := &poolSub{id: effective, conns: conns, cleanup: cleanup, seen: make(map[string]struct{})}
	p.subs[effective] = sub
	p.mu.Unlock()

	deliver := func(evt nostr.Event) {
		if sub.markSeen(evt.ID) {
			onEvent(evt)
		}
	}

	registered := 0
	for _, rc := range conns {
		if opts.SendAfterAuth {
			if err := rc.waitAuthed(ctx); err != nil {
				continue
			}
		}
		if err := rc.subscribe(effective, filters, deliver); err != nil {
			p.log.Debug("Subscribe failed", zap.String("relay", rc.url), zap.Error(err))
			continue
		}
		registered++
	}
	if registered == 0 {
		p.mu.Lock()
		delete(p.subs, effective)
		p.mu.Unlock()
		cleanup()
		return "", fmt.Errorf("subscription could not be registered on any relay")
	}
	return effective, nil
}

// Unsubscribe closes a live subscription. Unknown ids are a no-op.
func (p *Pool) Unsubscribe(ctx context.Context, subID string) error {
	p.mu.Lock()
	sub := p.subs[subID]
	delete(p.subs, subID)
	p.mu.Unlock()

	if sub == nil {
		return nil
	}
	for _, rc := range sub.conns {
		rc.unsubscribe(subID)
	}
	if sub.cleanup != nil {
		sub.cleanup()
	}
	return nil
}

// CountEvents asks the first connected relay for a native count. When the
// relay rejects or ignores the verb the error unwraps to
// models.ErrCountNotSupported.
func (p *Pool) CountEvents(ctx context.Context, filters []nostr.Filter, timeout time.Duration) (*models.CountResponse, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("at least one filter is required")
	}
	conns := p.openConns(nil)
	if len(conns) == 0 {
		return nil, fmt.Errorf("no connected relays")
	}
	if timeout <= 0 {
		timeout = constants.DefaultCountTimeout
	}

	res, err := conns[0].count(ctx, newSubID(), filters, timeout)
	if err != nil {
		return nil, err
	}
	if res.unsupported {
		return nil, fmt.Errorf("count on %s: %w", conns[0].url, models.ErrCountNotSupported)
	}
	return &models.CountResponse{Count: res.count, Approximate: res.approximate}, nil
}

// SendEvent publishes an event: OK from the primary relay decides the
// outcome, remaining relays receive a fire-and-forget copy. Unsigned events
// are signed when keys are available.
func (p *Pool) SendEvent(ctx context.Context, evt nostr.Event, opts *models.PublishOptions) (*nostr.Event, error) {
	if opts == nil {
		opts = &models.PublishOptions{}
	}
	if evt.Sig == "" {
		if err := p.sign(&evt); err != nil {
			return nil, err
		}
	}

	conns, cleanup := p.withTempRelays(ctx, p.openConns(opts.TargetRelays), opts.TempRelays)
	defer cleanup()
	if len(conns) == 0 {
		return nil, fmt.Errorf("no connected relays")
	}

	ok, reason, err := conns[0].publish(ctx, evt, p.cfg.PublishTimeout)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("relay %s rejected event: %s", conns[0].url, reason)
	}
	for _, rc := range conns[1:] {
		rc.send(evt)
	}
	return &evt, nil
}

// SendLike publishes a kind-7 reaction to the target event.
func (p *Pool) SendLike(ctx context.Context, target *nostr.Event, content string, opts *models.PublishOptions) (*nostr.Event, error) {
	if target == nil {
		return nil, fmt.Errorf("target event is required")
	}
	if content == "" {
		content = "+"
	}
	evt := nostr.Event{
		Kind:      constants.KindReaction,
		CreatedAt: nostr.Now(),
		Content:   content,
		Tags: nostr.Tags{
			{"e", target.ID},
			{"p", target.PubKey},
			{"k", fmt.Sprintf("%d", target.Kind)},
		},
	}
	return p.SendEvent(ctx, evt, opts)
}

// SendRepost publishes a repost: kind 6 for text notes, kind 16 with a
// k-tag for everything else. The content carries the reposted event JSON.
func (p *Pool) SendRepost(ctx context.Context, target *nostr.Event, relayAddr, content string, opts *models.PublishOptions) (*nostr.Event, error) {
	if target == nil {
		return nil, fmt.Errorf("target event is required")
	}
	kind := constants.KindRepost
	tags := nostr.Tags{
		{"e", target.ID, relayAddr},
		{"p", target.PubKey},
	}
	if target.Kind != constants.KindTextNote {
		kind = constants.KindGenericRepost
		tags = append(tags, nostr.Tag{"k", fmt.Sprintf("%d", target.Kind)})
	}
	if content == "" {
		if raw, err := json.Marshal(target); err == nil {
			content = string(raw)
		}
	}
	evt := nostr.Event{
		Kind:      kind,
		CreatedAt: nostr.Now(),
		Content:   content,
		Tags:      tags,
	}
	return p.SendEvent(ctx, evt, opts)
}

// DeleteEvent publishes a kind-5 deletion for one event id.
func (p *Pool) DeleteEvent(ctx context.Context, eventID string, opts *models.PublishOptions) (*nostr.Event, error) {
	return p.DeleteEvents(ctx, []string{eventID}, opts)
}

// DeleteEvents publishes one kind-5 deletion covering several event ids.
func (p *Pool) DeleteEvents(ctx context.Context, eventIDs []string, opts *models.PublishOptions) (*nostr.Event, error) {
	if len(eventIDs) == 0 {
		return nil, fmt.Errorf("at least one event id is required")
	}
	tags := make(nostr.Tags, 0, len(eventIDs))
	for _, id := range eventIDs {
		tags = append(tags, nostr.Tag{"e", id})
	}
	evt := nostr.Event{
		Kind:      constants.KindDeletion,
		CreatedAt: nostr.Now(),
		Tags:      tags,
	}
	return p.SendEvent(ctx, evt, opts)
}

// SendContactList publishes a kind-3 contact list.
func (p *Pool) SendContactList(ctx context.Context, contacts nostr.Tags, content string, opts *models.PublishOptions) (*nostr.Event, error) {
	evt := nostr.Event{
		Kind:      constants.KindContactList,
		CreatedAt: nostr.Now(),
		Content:   content,
		Tags:      contacts,
	}
	return p.SendEvent(ctx, evt, opts)
}

// Close tears down every connection and live subscription.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := p.conns
	subs := p.subs
	p.conns = make(map[string]*relayConn)
	p.subs = make(map[string]*poolSub)
	p.mu.Unlock()

	// ephemeral temp-relay connections live on the subscriptions, not in
	// p.conns
	for _, sub := range subs {
		if sub.cleanup != nil {
			sub.cleanup()
		}
	}
	for _, rc := range conns {
		rc.close()
	}
	return nil
}

func (p *Pool) sign(evt *nostr.Event) error {
	if p.cfg.Identity == nil {
		return fmt.Errorf("no signing keys configured")
	}
	return evt.Sign(p.cfg.Identity.PrivateKey)
}
