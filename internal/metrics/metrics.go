package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var msBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000}

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forest_http_requests_total",
		Help: "Total number of API requests by route",
	}, []string{"route"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forest_http_request_duration_ms",
		Help:    "Request duration in milliseconds by route",
		Buckets: msBuckets,
	}, []string{"route"})
	SearchRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forest_search_total",
		Help: "Total number of radius searches",
	})
	SearchEmptyTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forest_search_empty_total",
		Help: "Total number of searches with no matches or no data",
	})
	SearchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "forest_search_duration_ms",
		Help:    "Radius search duration in milliseconds",
		Buckets: msBuckets,
	})
	DatasetRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "forest_dataset_records",
		Help: "Number of records in the loaded dataset",
	})
	AddressCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forest_address_cache_hits_total",
		Help: "Total address cache hits (including cached empty results)",
	})
	AddressCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forest_address_cache_misses_total",
		Help: "Total address cache misses",
	})
	AddressLookupFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forest_address_lookup_fail_total",
		Help: "Total address lookups cached as empty after failure",
	})
	GSIRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forest_gsi_requests_total",
		Help: "Total reverse geocoder requests",
	})
	GSISuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forest_gsi_success_total",
		Help: "Total reverse geocoder successes",
	})
	GSIFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forest_gsi_fail_total",
		Help: "Total reverse geocoder failures",
	})
	GSIDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "forest_gsi_duration_ms",
		Help:    "Reverse geocoder call duration in milliseconds",
		Buckets: msBuckets,
	})
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "forest_active_sessions",
		Help: "Number of live tracking sessions",
	})
	SessionSearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forest_session_updates_total",
		Help: "Position updates by outcome (searched / skipped)",
	}, []string{"outcome"})
	GeoIPLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forest_geoip_lookups_total",
		Help: "GeoIP fallback lookups by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDurationMs,
		SearchRequestsTotal,
		SearchEmptyTotal,
		SearchDurationMs,
		DatasetRecords,
		AddressCacheHitsTotal,
		AddressCacheMissesTotal,
		AddressLookupFailTotal,
		GSIRequestsTotal,
		GSISuccessTotal,
		GSIFailTotal,
		GSIDurationMs,
		ActiveSessions,
		SessionSearchesTotal,
		GeoIPLookupsTotal,
	)
}

// 文档注释：返回 Prometheus 指标处理器，挂载到 /metrics
func Handler() http.Handler { return promhttp.Handler() }
