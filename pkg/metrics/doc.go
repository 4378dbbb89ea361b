// Package metrics defines and registers Prometheus metrics for api-catalog,
// covering discovery cycles, endpoint failures, catalog size and cache operations.
package metrics
