package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Shugur-Network/nostr-client/internal/constants"
	"github.com/gorilla/websocket"
	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
)

// relayConn is a single client connection to a relay, speaking the standard
// message frames: REQ/CLOSE/EVENT/COUNT upstream, EVENT/EOSE/OK/COUNT/
// CLOSED/NOTICE/AUTH downstream. One writer mutex guards the socket; the
// read loop owns all dispatch.
type relayConn struct {
	url string
	ws  *websocket.Conn
	log *zap.Logger

	writeMu sync.Mutex

	mu           sync.Mutex
	subs         map[string]*connSub
	okWaiters    map[string]chan okResult
	countWaiters map[string]chan countResult
	closed       bool
	authed       bool

	authedCh  chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// onAuth is invoked with the relay's AUTH challenge; installed by the
	// pool when signing keys are available.
	onAuth func(challenge string)
}

type connSub struct {
	id       string
	onEvent  func(evt nostr.Event)
	eoseCh   chan struct{}
	eoseOnce sync.Once
}

type okResult struct {
	ok     bool
	reason string
}

type countResult struct {
	count       int64
	approximate bool
	unsupported bool
}

// dial opens and starts a relay connection.
func dial(ctx context.Context, url string, timeout time.Duration, log *zap.Logger) (*relayConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	rc := &relayConn{
		url:          url,
		ws:           ws,
		log:          log.With(zap.String("relay", url)),
		subs:         make(map[string]*connSub),
		okWaiters:    make(map[string]chan okResult),
		countWaiters: make(map[string]chan countResult),
		authedCh:     make(chan struct{}),
		done:         make(chan struct{}),
	}

	ws.SetReadLimit(constants.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(constants.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(constants.PongWait))
	})

	go rc.readLoop()
	go rc.pingLoop()
	return rc, nil
}

func (rc *relayConn) URL() string { return rc.url }

func (rc *relayConn) Connected() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return !rc.closed
}

func (rc *relayConn) close() {
	rc.closeOnce.Do(func() {
		rc.mu.Lock()
		rc.closed = true
		subs := rc.subs
		rc.subs = make(map[string]*connSub)
		rc.mu.Unlock()

		for _, sub := range subs {
			sub.signalEOSE()
		}
		close(rc.done)
		_ = rc.ws.Close()
	})
}

func (s *connSub) signalEOSE() {
	s.eoseOnce.Do(func() { close(s.eoseCh) })
}

// writeJSON sends one frame under the write mutex with a bounded deadline.
func (rc *relayConn) writeJSON(v interface{}) error {
	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	_ = rc.ws.SetWriteDeadline(time.Now().Add(constants.WriteWait))
	err := rc.ws.WriteJSON(v)
	_ = rc.ws.SetWriteDeadline(time.Time{})
	return err
}

// subscribe registers a subscription and sends the REQ frame.
func (rc *relayConn) subscribe(id string, filters []nostr.Filter, onEvent func(nostr.Event)) error {
	sub := &connSub{id: id, onEvent: onEvent, eoseCh: make(chan struct{})}

	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return fmt.Errorf("connection to %s is closed", rc.url)
	}
	rc.subs[id] = sub
	rc.mu.Unlock()

	frame := make([]interface{}, 0, len(filters)+2)
	frame = append(frame, "REQ", id)
	for _, f := range filters {
		frame = append(frame, f)
	}
	if err := rc.writeJSON(frame); err != nil {
		rc.mu.Lock()
		delete(rc.subs, id)
		rc.mu.Unlock()
		return err
	}
	return nil
}

// unsubscribe removes a subscription and sends the CLOSE frame.
func (rc *relayConn) unsubscribe(id string) {
	rc.mu.Lock()
	sub := rc.subs[id]
	delete(rc.subs, id)
	rc.mu.Unlock()

	if sub != nil {
		sub.signalEOSE()
	}
	_ = rc.writeJSON([]interface{}{"CLOSE", id})
}

// eoseWait returns the channel closed when the relay signals end of stored
// events for the subscription (or the subscription dies).
func (rc *relayConn) eoseWait(id string) <-chan struct{} {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if sub, ok := rc.subs[id]; ok {
		return sub.eoseCh
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// publish sends an EVENT frame and waits for the relay's OK.
func (rc *relayConn) publish(ctx context.Context, evt nostr.Event, timeout time.Duration) (bool, string, error) {
	waiter := make(chan okResult, 1)
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return false, "", fmt.Errorf("connection to %s is closed", rc.url)
	}
	rc.okWaiters[evt.ID] = waiter
	rc.mu.Unlock()

	defer func() {
		rc.mu.Lock()
		delete(rc.okWaiters, evt.ID)
		rc.mu.Unlock()
	}()

	if err := rc.writeJSON([]interface{}{"EVENT", evt}); err != nil {
		return false, "", err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-waiter:
		return res.ok, res.reason, nil
	case <-rc.done:
		return false, "", fmt.Errorf("connection to %s closed while waiting for OK", rc.url)
	case <-timer.C:
		return false, "", fmt.Errorf("timed out waiting for OK from %s", rc.url)
	case <-ctx.Done():
		return false, "", ctx.Err()
	}
}

// send writes an EVENT frame without waiting for the OK. Used for the
// secondary relays of a fan-out publish.
func (rc *relayConn) send(evt nostr.Event) {
	if err := rc.writeJSON([]interface{}{"EVENT", evt}); err != nil {
		rc.log.Debug("Fire-and-forget send failed", zap.Error(err))
	}
}

// count sends a COUNT frame and waits for the relay's answer. unsupported is
// reported when the relay closes the subscription instead of answering.
func (rc *relayConn) count(ctx context.Context, id string, filters []nostr.Filter, timeout time.Duration) (countResult, error) {
	waiter := make(chan countResult, 1)
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return countResult{}, fmt.Errorf("connection to %s is closed", rc.url)
	}
	rc.countWaiters[id] = waiter
	rc.mu.Unlock()

	defer func() {
		rc.mu.Lock()
		delete(rc.countWaiters, id)
		rc.mu.Unlock()
	}()

	frame := make([]interface{}, 0, len(filters)+2)
	frame = append(frame, "COUNT", id)
	for _, f := range filters {
		frame = append(frame, f)
	}
	if err := rc.writeJSON(frame); err != nil {
		return countResult{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-waiter:
		return res, nil
	case <-rc.done:
		return countResult{}, fmt.Errorf("connection to %s closed while waiting for COUNT", rc.url)
	case <-timer.C:
		// relays predating the COUNT verb ignore the frame entirely
		return countResult{unsupported: true}, nil
	case <-ctx.Done():
		return countResult{}, ctx.Err()
	}
}

// waitAuthed blocks until the AUTH handshake finished or the context ends.
func (rc *relayConn) waitAuthed(ctx context.Context) error {
	select {
	case <-rc.authedCh:
		return nil
	case <-rc.done:
		return fmt.Errorf("connection to %s closed before auth", rc.url)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rc *relayConn) markAuthed() {
	rc.mu.Lock()
	already := rc.authed
	rc.authed = true
	rc.mu.Unlock()
	if !already {
		close(rc.authedCh)
	}
}

func (rc *relayConn) pingLoop() {
	ticker := time.NewTicker(constants.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rc.done:
			return
		case <-ticker.C:
			rc.writeMu.Lock()
			err := rc.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(constants.WriteWait))
			rc.writeMu.Unlock()
			if err != nil {
				rc.log.Debug("Ping failed, closing connection", zap.Error(err))
				rc.close()
				return
			}
		}
	}
}

func (rc *relayConn) readLoop() {
	defer rc.close()

	for {
		_, data, err := rc.ws.ReadMessage()
		if err != nil {
			if rc.Connected() {
				rc.log.Debug("Read loop ended", zap.Error(err))
			}
			return
		}
		_ = rc.ws.SetReadDeadline(time.Now().Add(constants.PongWait))
		rc.dispatch(data)
	}
}

// dispatch routes one relay frame. Malformed frames are dropped.
func (rc *relayConn) dispatch(data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 2 {
		return
	}
	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		return
	}

	switch label {
	case "EVENT":
		if len(frame) < 3 {
			return
		}
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		var evt nostr.Event
		if err := json.Unmarshal(frame[2], &evt); err != nil {
			return
		}
		rc.mu.Lock()
		sub := rc.subs[subID]
		rc.mu.Unlock()
		if sub != nil {
			sub.onEvent(evt)
		}

	case "EOSE":
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		rc.mu.Lock()
		sub := rc.subs[subID]
		rc.mu.Unlock()
		if sub != nil {
			sub.signalEOSE()
		}

	case "OK":
		if len(frame) < 3 {
			return
		}
		var eventID string
		var ok bool
		if json.Unmarshal(frame[1], &eventID) != nil || json.Unmarshal(frame[2], &ok) != nil {
			return
		}
		reason := ""
		if len(frame) >= 4 {
			_ = json.Unmarshal(frame[3], &reason)
		}
		rc.mu.Lock()
		waiter := rc.okWaiters[eventID]
		delete(rc.okWaiters, eventID)
		rc.mu.Unlock()
		if waiter != nil {
			waiter <- okResult{ok: ok, reason: reason}
		}

	case "COUNT":
		if len(frame) < 3 {
			return
		}
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		var payload struct {
			Count       int64 `json:"count"`
			Approximate bool  `json:"approximate"`
		}
		if err := json.Unmarshal(frame[2], &payload); err != nil {
			return
		}
		rc.mu.Lock()
		waiter := rc.countWaiters[subID]
		delete(rc.countWaiters, subID)
		rc.mu.Unlock()
		if waiter != nil {
			waiter <- countResult{count: payload.Count, approximate: payload.Approximate}
		}

	case "CLOSED":
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		reason := ""
		if len(frame) >= 3 {
			_ = json.Unmarshal(frame[2], &reason)
		}
		rc.mu.Lock()
		sub := rc.subs[subID]
		delete(rc.subs, subID)
		countWaiter := rc.countWaiters[subID]
		delete(rc.countWaiters, subID)
		rc.mu.Unlock()
		if sub != nil {
			rc.log.Debug("Relay closed subscription", zap.String("sub_id", subID), zap.String("reason", reason))
			sub.signalEOSE()
		}
		if countWaiter != nil {
			countWaiter <- countResult{unsupported: true}
		}

	case "NOTICE":
		var notice string
		_ = json.Unmarshal(frame[1], &notice)
		rc.log.Debug("Relay notice", zap.String("message", notice))

	case "AUTH":
		var challenge string
		if err := json.Unmarshal(frame[1], &challenge); err != nil {
			return
		}
		if rc.onAuth != nil {
			rc.onAuth(challenge)
		}
	}
}
