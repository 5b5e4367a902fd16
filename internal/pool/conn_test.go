package pool

import (
	"context"
	"testing"

	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newDispatchConn builds a connection without a socket, enough to exercise
// the frame router.
func newDispatchConn() *relayConn {
	return &relayConn{
		url:          "wss://relay.test",
		log:          zap.NewNop(),
		subs:         make(map[string]*connSub),
		okWaiters:    make(map[string]chan okResult),
		countWaiters: make(map[string]chan countResult),
		authedCh:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func TestDispatchEventRoutesToSubscription(t *testing.T) {
	rc := newDispatchConn()
	var got []nostr.Event
	rc.subs["sub-1"] = &connSub{
		id:      "sub-1",
		onEvent: func(evt nostr.Event) { got = append(got, evt) },
		eoseCh:  make(chan struct{}),
	}

	rc.dispatch([]byte(`["EVENT","sub-1",{"id":"e1","kind":1,"content":"hi"}]`))
	rc.dispatch([]byte(`["EVENT","other-sub",{"id":"e2","kind":1}]`))

	require.Len(t, got, 1, "only the owning subscription sees the event")
	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, "hi", got[0].Content)
}

func TestDispatchEOSE(t *testing.T) {
	rc := newDispatchConn()
	rc.subs["sub-1"] = &connSub{id: "sub-1", onEvent: func(nostr.Event) {}, eoseCh: make(chan struct{})}

	eose := rc.eoseWait("sub-1")
	select {
	case <-eose:
		t.Fatal("eose must not be signaled yet")
	default:
	}

	rc.dispatch([]byte(`["EOSE","sub-1"]`))

	select {
	case <-eose:
	default:
		t.Fatal("eose channel should be closed")
	}
}

func TestDispatchOKResolvesWaiter(t *testing.T) {
	rc := newDispatchConn()
	waiter := make(chan okResult, 1)
	rc.okWaiters["event-id"] = waiter

	rc.dispatch([]byte(`["OK","event-id",false,"blocked: spam"]`))

	res := <-waiter
	assert.False(t, res.ok)
	assert.Equal(t, "blocked: spam", res.reason)
}

func TestDispatchCountResolvesWaiter(t *testing.T) {
	rc := newDispatchConn()
	waiter := make(chan countResult, 1)
	rc.countWaiters["count-sub"] = waiter

	rc.dispatch([]byte(`["COUNT","count-sub",{"count":12,"approximate":true}]`))

	res := <-waiter
	assert.Equal(t, int64(12), res.count)
	assert.True(t, res.approximate)
	assert.False(t, res.unsupported)
}

func TestDispatchClosedMarksCountUnsupported(t *testing.T) {
	rc := newDispatchConn()
	waiter := make(chan countResult, 1)
	rc.countWaiters["count-sub"] = waiter

	rc.dispatch([]byte(`["CLOSED","count-sub","unsupported: COUNT"]`))

	res := <-waiter
	assert.True(t, res.unsupported)
}

func TestDispatchClosedEndsSubscription(t *testing.T) {
	rc := newDispatchConn()
	rc.subs["sub-1"] = &connSub{id: "sub-1", onEvent: func(nostr.Event) {}, eoseCh: make(chan struct{})}
	eose := rc.eoseWait("sub-1")

	rc.dispatch([]byte(`["CLOSED","sub-1","shutting down"]`))

	select {
	case <-eose:
	default:
		t.Fatal("closed subscription must signal eose")
	}
	rc.mu.Lock()
	_, stillThere := rc.subs["sub-1"]
	rc.mu.Unlock()
	assert.False(t, stillThere)
}

func TestDispatchAuthChallenge(t *testing.T) {
	rc := newDispatchConn()
	var challenge string
	rc.onAuth = func(c string) { challenge = c }

	rc.dispatch([]byte(`["AUTH","challenge-string"]`))
	assert.Equal(t, "challenge-string", challenge)
}

func TestDispatchIgnoresMalformedFrames(t *testing.T) {
	rc := newDispatchConn()
	frames := [][]byte{
		[]byte(`not json`),
		[]byte(`{}`),
		[]byte(`["EVENT"]`),
		[]byte(`["EVENT",42,{}]`),
		[]byte(`[1,2,3]`),
		[]byte(`["UNKNOWN","x"]`),
	}
	for _, frame := range frames {
		rc.dispatch(frame) // must not panic
	}
}

func TestEoseWaitUnknownSubscription(t *testing.T) {
	rc := newDispatchConn()
	select {
	case <-rc.eoseWait("never-registered"):
	default:
		t.Fatal("unknown subscriptions must report a finished stream")
	}
}

func TestMarkAuthedIdempotent(t *testing.T) {
	rc := newDispatchConn()

	select {
	case <-rc.authedCh:
		t.Fatal("must not be authed before the handshake")
	default:
	}

	rc.markAuthed()
	rc.markAuthed() // second call must not panic on the closed channel

	require.NoError(t, rc.waitAuthed(context.Background()))
}

func TestNewSubIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := newSubID()
		assert.NotEmpty(t, id)
		_, dup := seen[id]
		assert.False(t, dup, "sub ids must not repeat")
		seen[id] = struct{}{}
	}
}
