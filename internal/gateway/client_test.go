package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Shugur-Network/nostr-client/internal/models"
	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, time.Second, 0)
}

func TestQueryDecodesResponse(t *testing.T) {
	var gotFilter nostr.Filter
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/query", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotFilter))

		resp := models.GatewayResponse{
			Events: []nostr.Event{{ID: "e1", Kind: 1}},
			EOSE:   true,
			Cached: true,
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	out, err := client.Query(context.Background(), nostr.Filter{Kinds: []int{1}, Limit: 5})
	require.NoError(t, err)
	require.Len(t, out.Events, 1)
	assert.Equal(t, "e1", out.Events[0].ID)
	assert.True(t, out.EOSE)
	assert.True(t, out.Cached)
	assert.Equal(t, []int{1}, gotFilter.Kinds)
}

func TestQueryStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusBadGateway)
	})

	_, err := client.Query(context.Background(), nostr.Filter{})
	require.Error(t, err)

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusBadGateway, gwErr.StatusCode)
	assert.Contains(t, gwErr.Message, "upstream overloaded")
}

func TestGetEventFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/event/abc", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(nostr.Event{ID: "abc", Kind: 1}))
	})

	evt, err := client.GetEvent(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, evt)
	assert.Equal(t, "abc", evt.ID)
}

func TestGetEventNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	evt, err := client.GetEvent(context.Background(), "missing")
	require.NoError(t, err, "404 is a miss, not an error")
	assert.Nil(t, evt)
}

func TestGetProfilePath(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/profile/npub-hex", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(nostr.Event{ID: "profile-1", Kind: 0}))
	})

	evt, err := client.GetProfile(context.Background(), "npub-hex")
	require.NoError(t, err)
	require.NotNil(t, evt)
	assert.Equal(t, "profile-1", evt.ID)
}

func TestGetEventEmptyBodyIsMiss(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(nostr.Event{}))
	})

	evt, err := client.GetEvent(context.Background(), "abc")
	require.NoError(t, err)
	assert.Nil(t, evt, "an event without an id is treated as a miss")
}

func TestTransportErrorIsWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // force connection refused
	client := New(server.URL, time.Second, 0)

	_, err := client.Query(context.Background(), nostr.Filter{})
	require.Error(t, err)
}
