package gateway

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 中継結果のラベル値。
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// metrics はゲートウェイのPrometheusメトリクス。
// サーバーごとにレジストリを持つため、テストで複数のサーバーを生成できる。
type metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	upstreamCallsTotal   *prometheus.CounterVec
	upstreamCallDuration *prometheus.HistogramVec
	panicRecoveriesTotal prometheus.Counter
	journalFailuresTotal prometheus.Counter
}

// newMetrics は新しいレジストリにメトリクスを登録して返す。
func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &metrics{
		registry: reg,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcp_gateway_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcp_gateway_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		upstreamCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcp_gateway_upstream_calls_total",
				Help: "Total number of calls to the upstream RAG API",
			},
			[]string{"route", "outcome"},
		),
		upstreamCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcp_gateway_upstream_call_duration_seconds",
				Help:    "Upstream RAG API call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		panicRecoveriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mcp_gateway_panic_recoveries_total",
				Help: "Total number of panics recovered in HTTP handlers",
			},
		),
		journalFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mcp_gateway_journal_failures_total",
				Help: "Total number of exchanges that could not be written to the journal",
			},
		),
	}
}

// middleware はリクエスト数と処理時間を記録するGinミドルウェアを返す。
func (m *metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// observeUpstream はアップストリーム呼び出しの結果を記録する。
func (m *metrics) observeUpstream(route string, err error, d time.Duration) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	m.upstreamCallsTotal.WithLabelValues(route, outcome).Inc()
	m.upstreamCallDuration.WithLabelValues(route).Observe(d.Seconds())
}
