// Package metrics exposes the Prometheus collectors for the shop. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "medshop"

// Stock alert kinds.
const (
	AlertExpired      = "expired"
	AlertLowStock     = "low_stock"
	AlertExpiringSoon = "expiring_soon"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	PoolAcquireWait     prometheus.Histogram
	PoolSpilloverTotal  prometheus.Counter
	BillsCreatedTotal   prometheus.Counter
	BillAmountTotal     prometheus.Counter
	AuthAttemptsTotal   *prometheus.CounterVec
	StockAlerts         *prometheus.GaugeVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		PoolAcquireWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_acquire_wait_seconds",
			Help:      "Time spent waiting for a pooled database connection",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10},
		}),
		PoolSpilloverTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_spillover_total",
			Help:      "Connections opened outside the pool after the acquire timeout",
		}),
		BillsCreatedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_created_total",
			Help:      "Total number of bills created",
		}),
		BillAmountTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_amount_total",
			Help:      "Sum of all bill totals",
		}),
		AuthAttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
		StockAlerts: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stock_alerts",
			Help:      "Products currently flagged by the inventory alert job",
		}, []string{"kind"}),
	}
}

// ObserveAcquire implements database.PoolObserver.
func (m *Metrics) ObserveAcquire(wait time.Duration, spilled bool) {
	if m == nil {
		return
	}
	m.PoolAcquireWait.Observe(wait.Seconds())
	if spilled {
		m.PoolSpilloverTotal.Inc()
	}
}

func (m *Metrics) BillCreated(amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.BillsCreatedTotal.Inc()
	m.BillAmountTotal.Add(amount.InexactFloat64())
}

func (m *Metrics) AuthAttempt(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.AuthAttemptsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetStockAlerts(kind string, n int) {
	if m == nil {
		return
	}
	m.StockAlerts.WithLabelValues(kind).Set(float64(n))
}

// Middleware records request count and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the collectors gathered from g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
