// Package metrics declares the prometheus instruments shared by the
// registry and store services and exposes them via promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts API requests by action and outcome status.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bazar_requests_total",
			Help: "Total number of API requests by action and outcome",
		},
		[]string{"action", "status"},
	)

	// FanoutFailures counts fan-out sub-requests that were dropped from
	// an aggregation, by tenant.
	FanoutFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bazar_fanout_failures_total",
			Help: "Total number of failed fan-out sub-requests by tenant",
		},
		[]string{"tenant"},
	)

	// CacheInvalidations counts cache token bumps.
	CacheInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bazar_cache_invalidations_total",
			Help: "Total number of cache token invalidations",
		},
	)

	// StoreOperations counts row-store mutations and reads by store name
	// and operation.
	StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bazar_store_operations_total",
			Help: "Total number of row store operations by store and op",
		},
		[]string{"store", "op"},
	)

	// RequestDuration tracks request latency per action.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bazar_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(FanoutFailures)
	prometheus.MustRegister(CacheInvalidations)
	prometheus.MustRegister(StoreOperations)
	prometheus.MustRegister(RequestDuration)
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
