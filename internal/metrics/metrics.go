// Package metrics exposes Prometheus counters and histograms for the
// catalog client, the collection store and the reference server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records client requests, store refresh outcomes and served
// HTTP traffic. Metrics are registered on the Registerer given to
// NewCollector so tests can use a private registry.
type Collector struct {
	clientRequests *prometheus.CounterVec
	clientLatency  *prometheus.HistogramVec
	refreshes      *prometheus.CounterVec
	serverRequests *prometheus.CounterVec
	serverLatency  *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		clientRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "animetracker_client_requests_total",
			Help: "Catalog API calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		clientLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "animetracker_client_request_duration_seconds",
			Help:    "Catalog API call latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "animetracker_store_refreshes_total",
			Help: "Collection refresh cycles by result (applied, failed, superseded).",
		}, []string{"result"}),
		serverRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "animetracker_server_requests_total",
			Help: "Requests served by the reference server by route and status code.",
		}, []string{"route", "status_code"}),
		serverLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "animetracker_server_request_duration_seconds",
			Help:    "Reference server request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.clientRequests,
		c.clientLatency,
		c.refreshes,
		c.serverRequests,
		c.serverLatency,
	)

	return c
}

// RecordRequest implements services.RequestRecorder.
func (c *Collector) RecordRequest(operation, outcome string, duration time.Duration) {
	c.clientRequests.WithLabelValues(operation, outcome).Inc()
	c.clientLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRefresh implements store.RefreshRecorder.
func (c *Collector) RecordRefresh(result string) {
	c.refreshes.WithLabelValues(result).Inc()
}

func (c *Collector) RecordHTTP(route string, statusCode int, duration time.Duration) {
	c.serverRequests.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	c.serverLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
