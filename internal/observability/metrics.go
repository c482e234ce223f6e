package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mmuni_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// UpstreamRequests counts proxied upstream calls by upstream and outcome.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mmuni_upstream_requests_total",
		Help: "Total upstream requests by upstream and outcome",
	}, []string{"upstream", "outcome"})

	// UpstreamLatency records upstream call latency.
	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mmuni_upstream_latency_seconds",
		Help:    "Upstream request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"upstream"})

	// WeatherCacheLookups counts weather cache hits and misses.
	WeatherCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mmuni_weather_cache_lookups_total",
		Help: "Weather cache lookups by result",
	}, []string{"result"})

	// ProfileWrites counts privileged profile writes by writer and outcome.
	ProfileWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mmuni_profile_writes_total",
		Help: "Privileged profile writes by writer and outcome",
	}, []string{"writer", "outcome"})
)

// Outcome labels a call result for the counters above.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
