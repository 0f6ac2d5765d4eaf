package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API
// and its payment pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	paymentsInitialized prometheus.Counter
	paymentsCompleted   prometheus.Counter
	paymentsFailed      prometheus.Counter
	couponRedemptions   prometheus.Counter
	gatewayErrors       prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	paymentsInitialized := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_initialized_total",
		Help: "Payment sessions created with the gateway",
	})

	paymentsCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_completed_total",
		Help: "Payments confirmed by the gateway",
	})

	paymentsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Payments reported failed by the gateway",
	})

	couponRedemptions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coupon_redemptions_total",
		Help: "Coupons consumed by completed payments",
	})

	gatewayErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_transport_errors_total",
		Help: "Gateway calls that failed before an authoritative answer",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, paymentsInitialized, paymentsCompleted, paymentsFailed, couponRedemptions, gatewayErrors, goroutines)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		paymentsInitialized: paymentsInitialized,
		paymentsCompleted:   paymentsCompleted,
		paymentsFailed:      paymentsFailed,
		couponRedemptions:   couponRedemptions,
		gatewayErrors:       gatewayErrors,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// PaymentInitialized counts a created payment session.
func (m *MetricsService) PaymentInitialized() {
	if m != nil {
		m.paymentsInitialized.Inc()
	}
}

// PaymentCompleted counts a confirmed payment, and the coupon it
// consumed when one was attached.
func (m *MetricsService) PaymentCompleted(withCoupon bool) {
	if m == nil {
		return
	}
	m.paymentsCompleted.Inc()
	if withCoupon {
		m.couponRedemptions.Inc()
	}
}

// PaymentFailed counts an authoritative gateway failure.
func (m *MetricsService) PaymentFailed() {
	if m != nil {
		m.paymentsFailed.Inc()
	}
}

// GatewayError counts a transport-level gateway failure.
func (m *MetricsService) GatewayError() {
	if m != nil {
		m.gatewayErrors.Inc()
	}
}
