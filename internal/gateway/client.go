package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/Shugur-Network/nostr-client/internal/errors"
	"github.com/Shugur-Network/nostr-client/internal/limiter"
	"github.com/Shugur-Network/nostr-client/internal/logger"
	"github.com/Shugur-Network/nostr-client/internal/metrics"
	"github.com/Shugur-Network/nostr-client/internal/models"
	nostr "github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
)

// GatewayError is an HTTP-level failure from the gateway service. The
// request client treats any gateway error as "fall through to relays".
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the HTTP gateway fast path. It answers single-filter
// queries, event-by-id lookups and profile lookups with lower latency than
// opening a relay subscription.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *limiter.RateLimiter
	log     *zap.Logger
}

// New creates a gateway client for baseURL. requestsPerSecond <= 0 disables
// throttling.
func New(baseURL string, timeout time.Duration, requestsPerSecond int) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: limiter.New(float64(requestsPerSecond), requestsPerSecond+1),
		log:     logger.New("gateway"),
	}
}

// Query answers a single-filter query. An empty Events slice in the response
// means the gateway has no answer, not an error.
func (c *Client) Query(ctx context.Context, filter nostr.Filter) (*models.GatewayResponse, error) {
	if err := c.limiter.Wait(ctx, "gateway"); err != nil {
		return nil, err
	}

	body, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}

	start := time.Now()
	defer func() {
		metrics.GatewayRequestDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.GatewayRequestError("/query", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var out models.GatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	c.log.Debug("Gateway query answered",
		zap.Int("events", len(out.Events)),
		zap.Bool("cached", out.Cached))
	return &out, nil
}

// GetEvent looks up a single event by id. A 404 yields (nil, nil).
func (c *Client) GetEvent(ctx context.Context, id string) (*nostr.Event, error) {
	return c.getEvent(ctx, "/event/"+url.PathEscape(id))
}

// GetProfile looks up the metadata event for a pubkey. A 404 yields (nil, nil).
func (c *Client) GetProfile(ctx context.Context, pubkey string) (*nostr.Event, error) {
	return c.getEvent(ctx, "/profile/"+url.PathEscape(pubkey))
}

func (c *Client) getEvent(ctx context.Context, path string) (*nostr.Event, error) {
	if err := c.limiter.Wait(ctx, "gateway"); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.GatewayRequestDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.GatewayRequestError(path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var evt nostr.Event
	if err := json.NewDecoder(resp.Body).Decode(&evt); err != nil {
		return nil, fmt.Errorf("decode gateway event: %w", err)
	}
	if evt.ID == "" {
		return nil, nil
	}
	return &evt, nil
}

func (c *Client) statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &GatewayError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
}
