/*
Copyright © 2026 Deutsche Telekom AG
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	// Namespace is the Prometheus metrics namespace for api-catalog
	Namespace = "api_catalog"
)

var (
	// DiscoveryDuration measures the duration of discovery cycles in seconds
	DiscoveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "discovery_duration_seconds",
			Help:      "Duration of API discovery cycles in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// DiscoveryCycles counts discovery cycles per result
	DiscoveryCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "discovery_cycles_total",
			Help:      "Total number of API discovery cycles per result",
		},
		[]string{"result"},
	)

	// GroupEnumerationErrors counts failed API group enumerations
	GroupEnumerationErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "group_enumeration_errors_total",
			Help:      "Total number of failed API group enumerations",
		},
	)

	// EndpointFetchErrors counts resource list endpoints that could not be fetched
	EndpointFetchErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "endpoint_fetch_errors_total",
			Help:      "Total number of API resource list fetches that failed",
		},
	)

	// BatchDuration measures how long one batch of resource list fetches took
	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "discovery_batch_duration_seconds",
			Help:      "Duration of one batch of concurrent API resource list fetches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// CatalogResources tracks the size of the published catalog per class
	CatalogResources = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "catalog_resources",
			Help:      "Number of entries in the published catalog per class",
		},
		[]string{"class"},
	)

	// LastPublishedTimestamp is the unix time of the last published catalog
	LastPublishedTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "catalog_last_published_timestamp_seconds",
			Help:      "Unix timestamp of the last published catalog",
		},
	)

	// CacheOperations counts catalog cache operations per backend, operation and result
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of catalog cache operations",
		},
		[]string{"backend", "operation", "result"},
	)

	// RefreshRequests counts out-of-band refresh requests per result
	RefreshRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "refresh_requests_total",
			Help:      "Total number of out-of-band discovery refresh requests",
		},
		[]string{"result"},
	)
)

func init() {
	// Register all metrics with controller-runtime's registry
	metrics.Registry.MustRegister(
		DiscoveryDuration,
		DiscoveryCycles,
		GroupEnumerationErrors,
		EndpointFetchErrors,
		BatchDuration,
		CatalogResources,
		LastPublishedTimestamp,
		CacheOperations,
		RefreshRequests,
	)
}

// Result constants for labeling cycle and refresh outcomes
const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultUnchanged = "unchanged"
	ResultSkipped   = "skipped"
	ResultTriggered = "triggered"
)

// Catalog class constants
const (
	ClassAll        = "all"
	ClassSafe       = "safe"
	ClassAdmin      = "admin"
	ClassNamespaced = "namespaced"
	ClassModels     = "models"
)

// Cache operation and result constants
const (
	CacheOpLoad = "load"
	CacheOpSave = "save"

	CacheResultHit   = "hit"
	CacheResultMiss  = "miss"
	CacheResultError = "error"
	CacheResultOK    = "ok"
)

// RecordCacheOperation increments the cache operation counter.
func RecordCacheOperation(backend, operation, result string) {
	CacheOperations.WithLabelValues(backend, operation, result).Inc()
}
