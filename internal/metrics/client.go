package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for tracking client performance and the resolution waterfall.
var (
	// Relay connection metrics
	ConnectedRelays = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nostr_client_connected_relays",
		Help: "The number of currently connected relays",
	})

	ConfiguredRelays = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nostr_client_configured_relays",
		Help: "The number of configured relays",
	})

	ReconnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostr_client_reconnect_attempts_total",
		Help: "The total number of reconnect attempts by relay",
	}, []string{"relay"})

	RelayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostr_client_relay_errors_total",
		Help: "The total number of relay connection failures by relay",
	}, []string{"relay"})

	// Waterfall metrics: which tier answered a read operation
	QueryResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostr_client_query_resolutions_total",
		Help: "The total number of read operations resolved, by tier",
	}, []string{"tier"}) // "cache", "gateway", "relay"

	GatewayFallthroughs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nostr_client_gateway_fallthroughs_total",
		Help: "The total number of gateway attempts that fell through to the relay tier",
	})

	GatewayRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nostr_client_gateway_request_duration_seconds",
		Help:    "Gateway HTTP request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 10, 5),
	})

	// Cache metrics
	CacheWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nostr_client_cache_writes_total",
		Help: "The total number of events written back to the cache",
	})

	CacheWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nostr_client_cache_write_failures_total",
		Help: "The total number of swallowed cache write failures",
	})

	// Subscription metrics
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nostr_client_active_subscriptions",
		Help: "The number of active subscriptions",
	})

	SubscriptionEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nostr_client_subscription_events_total",
		Help: "The total number of events delivered on live subscriptions",
	})

	// Publish metrics
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostr_client_events_published_total",
		Help: "The total number of events published, by kind",
	}, []string{"kind"})

	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nostr_client_publish_failures_total",
		Help: "The total number of failed publishes",
	})

	// Count metrics
	CountFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nostr_client_count_fallbacks_total",
		Help: "The total number of COUNT requests answered by client-side counting",
	})
)

// RegisterMetrics exists for symmetry with explicit-registration setups;
// promauto registers everything at package init, so there is nothing to do.
func RegisterMetrics() {}
