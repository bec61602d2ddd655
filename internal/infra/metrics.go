package infra

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics はゲートウェイのPrometheusメトリクスを保持する。
// メソッドはnilレシーバでも呼び出せる（メトリクス無効時）。
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	upstreamErrors      *prometheus.CounterVec
	authFailures        *prometheus.CounterVec
	tenantResolutions   *prometheus.CounterVec
	auditDropped        prometheus.Counter
	auditWriteErrors    *prometheus.CounterVec
	decryptionFailures  *prometheus.CounterVec
	keySetRefreshes     *prometheus.CounterVec
	routeReloads        *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics は専用レジストリにメトリクスを登録して返す。
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "status_code"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_errors_total",
				Help: "Total number of failed upstream calls by route",
			},
			[]string{"route"},
		),
		authFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_auth_failures_total",
				Help: "Total number of rejected requests by reason",
			},
			[]string{"reason"},
		),
		tenantResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_tenant_resolutions_total",
				Help: "Total number of tenant resolutions by source",
			},
			[]string{"source"},
		),
		auditDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_audit_entries_dropped_total",
				Help: "Total number of audit entries dropped because the buffer was full",
			},
		),
		auditWriteErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_audit_write_errors_total",
				Help: "Total number of failed audit writes by sink",
			},
			[]string{"sink"},
		),
		decryptionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_field_decryption_failures_total",
				Help: "Total number of stored values that failed to decrypt",
			},
			[]string{"entity", "field"},
		),
		keySetRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_jwks_refreshes_total",
				Help: "Total number of key set refresh attempts by status",
			},
			[]string{"status"},
		),
		routeReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_route_reloads_total",
				Help: "Total number of route table reload attempts by status",
			},
			[]string{"status"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.upstreamErrors,
		m.authFailures,
		m.tenantResolutions,
		m.auditDropped,
		m.auditWriteErrors,
		m.decryptionFailures,
		m.keySetRefreshes,
		m.routeReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordHTTPRequest はHTTPリクエスト1件を記録する。
func (m *Metrics) RecordHTTPRequest(route, method string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// UpstreamFailed はバックエンド呼び出しの失敗を記録する。
func (m *Metrics) UpstreamFailed(route string) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(route).Inc()
}

// AuthFailed は認証・認可による拒否を記録する。
func (m *Metrics) AuthFailed(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

// TenantResolved はテナントの解決元を記録する。
func (m *Metrics) TenantResolved(source string) {
	if m == nil {
		return
	}
	m.tenantResolutions.WithLabelValues(source).Inc()
}

// AuditDropped はバッファ溢れで破棄した監査エントリを記録する。
func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

// AuditWriteFailed は監査ログの書き込み失敗を記録する。
func (m *Metrics) AuditWriteFailed(sink string) {
	if m == nil {
		return
	}
	m.auditWriteErrors.WithLabelValues(sink).Inc()
}

// DecryptionFailed は復号失敗を記録する。
func (m *Metrics) DecryptionFailed(entity, field string) {
	if m == nil {
		return
	}
	m.decryptionFailures.WithLabelValues(entity, field).Inc()
}

// KeySetRefreshed は鍵セット取得の結果を記録する。
func (m *Metrics) KeySetRefreshed(status string) {
	if m == nil {
		return
	}
	m.keySetRefreshes.WithLabelValues(status).Inc()
}

// RouteReloaded はルート表の再読み込み結果を記録する。
func (m *Metrics) RouteReloaded(status string) {
	if m == nil {
		return
	}
	m.routeReloads.WithLabelValues(status).Inc()
}

// Handler はPrometheusのスクレイプ用ハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry はPrometheusレジストリを返す。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
