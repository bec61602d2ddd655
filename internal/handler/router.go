// Package handler はHTTPルーティングとバックエンドへの転送を提供する。
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"benefits-gateway/internal/domain"
	"benefits-gateway/internal/middleware"
	"benefits-gateway/internal/usecase"
	"benefits-gateway/pkg/httputil"
)

// Metrics はルーターが記録するメトリクス。
type Metrics interface {
	middleware.HTTPMetrics
	middleware.AuthMetrics
	middleware.TenantMetrics
	Handler() http.Handler
}

// RouterConfig はルーターの設定。
type RouterConfig struct {
	APIPrefix      string
	PublicPaths    []string
	AllowedOrigins []string
}

// Dependencies はルーターが使うコンポーネント。RateLimiter と Metrics は省略できる。
type Dependencies struct {
	Health      *HealthHandler
	Proxy       *ProxyRouter
	Validator   middleware.TokenValidator
	Tenants     *usecase.TenantResolver
	Audit       middleware.AuditRecorder
	RateLimiter *middleware.RateLimiter
	Metrics     Metrics
}

// NewRouter はゲートウェイのルーターを生成する。
// APIプレフィックス配下は レート制限 → 認証 → テナント解決 → 監査 → 転送 の順に処理する。
func NewRouter(cfg RouterConfig, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	var (
		httpMetrics   middleware.HTTPMetrics
		authMetrics   middleware.AuthMetrics
		tenantMetrics middleware.TenantMetrics
	)
	if deps.Metrics != nil {
		httpMetrics, authMetrics, tenantMetrics = deps.Metrics, deps.Metrics, deps.Metrics
	}

	// ミドルウェア
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.AccessLog(httpMetrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", httputil.RequestIDHeader, middleware.TraceIDHeader, HeaderTenantID},
		ExposedHeaders:   []string{httputil.RequestIDHeader, middleware.TraceIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// ヘルスチェック（認証なし）
	r.Get("/health", deps.Health.Health)
	r.Get("/health/live", deps.Health.Live)
	r.Get("/health/ready", deps.Health.Ready)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route(cfg.APIPrefix, func(api chi.Router) {
		if deps.RateLimiter != nil {
			api.Use(deps.RateLimiter.Handler)
		}
		api.Use(middleware.Authenticate(deps.Validator, cfg.PublicPaths, authMetrics))
		api.Use(middleware.Tenant(deps.Tenants, cfg.PublicPaths, tenantMetrics))
		api.Use(middleware.Audit(deps.Audit))

		api.Get("/health", deps.Health.Health)
		api.Handle("/*", deps.Proxy)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, r, domain.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method "+r.Method+" not allowed for "+r.URL.Path)
	})

	return r
}
