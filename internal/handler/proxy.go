package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"benefits-gateway/internal/domain"
	"benefits-gateway/internal/middleware"
)

// 転送先に付与するヘッダー。
const (
	HeaderTenantID     = "X-Tenant-ID"
	HeaderTenantSchema = "X-Tenant-Schema"
	HeaderUserID       = "X-User-ID"
	HeaderUserRole     = "X-User-Role"
	HeaderRequestID    = "X-Request-ID"
	HeaderTraceID      = "X-Trace-ID"
)

// Authorizer はルートへのアクセス可否を判定する。
type Authorizer interface {
	Authorize(ctx context.Context, identity *domain.Identity, route *domain.Route, method string) error
}

// UpstreamMetrics はバックエンドへの転送失敗を記録する。
type UpstreamMetrics interface {
	UpstreamFailed(route string)
}

type routeKey struct{}

// ProxyRouter はパスプレフィックスでバックエンドサービスを選び、リクエストを転送する。
// レスポンスボディはバッファせずにストリーミングで返す。転送失敗時は再試行せず502を返す。
type ProxyRouter struct {
	routes     atomic.Pointer[[]*domain.Route]
	proxy      *httputil.ReverseProxy
	authorizer Authorizer
	metrics    UpstreamMetrics
}

// NewProxyRouter は新しいProxyRouterを生成する。
// upstreamTimeout はバックエンドがレスポンスヘッダーを返すまでの上限。
func NewProxyRouter(routes []*domain.Route, authorizer Authorizer, upstreamTimeout time.Duration, metrics UpstreamMetrics) *ProxyRouter {
	p := &ProxyRouter{authorizer: authorizer, metrics: metrics}
	p.proxy = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		Transport:      otelhttp.NewTransport(newUpstreamTransport(upstreamTimeout)),
		FlushInterval:  -1,
		ErrorHandler:   p.handleError,
		ModifyResponse: func(resp *http.Response) error {
			// ゲートウェイが設定済みの相関ヘッダーと重複させない
			resp.Header.Del(HeaderRequestID)
			resp.Header.Del(HeaderTraceID)
			return nil
		},
	}
	p.Replace(routes)
	return p
}

func newUpstreamTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
	}
}

// Replace はルーティングテーブルを差し替える。処理中のリクエストは古いテーブルのまま完了する。
func (p *ProxyRouter) Replace(routes []*domain.Route) {
	sorted := append([]*domain.Route(nil), routes...)
	// 長いプレフィックスを優先する
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	p.routes.Store(&sorted)
}

// Routes は現在のルーティングテーブルを返す。
func (p *ProxyRouter) Routes() []*domain.Route {
	return *p.routes.Load()
}

// Match はパスに該当するルートを返す。
func (p *ProxyRouter) Match(path string) (*domain.Route, bool) {
	for _, route := range p.Routes() {
		if route.Matches(path) {
			return route, true
		}
	}
	return nil, false
}

func (p *ProxyRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, ok := p.Match(r.URL.Path)
	if !ok {
		middleware.WriteError(w, r, domain.ErrRouteNotFound)
		return
	}

	rc := domain.RequestContextFrom(r.Context())
	if p.authorizer != nil && rc.Authenticated() {
		if err := p.authorizer.Authorize(r.Context(), rc.Identity, route, r.Method); err != nil {
			slog.WarnContext(r.Context(), "authorization denied",
				"route", route.Name,
				"user_id", rc.Identity.Subject,
				"role", rc.Identity.Role,
				"error", err,
			)
			middleware.WriteError(w, r, err)
			return
		}
	}

	p.proxy.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), routeKey{}, route)))
}

func (p *ProxyRouter) rewrite(pr *httputil.ProxyRequest) {
	route := pr.In.Context().Value(routeKey{}).(*domain.Route)
	target := route.Target

	pr.Out.URL.Scheme = target.Scheme
	pr.Out.URL.Host = target.Host
	pr.Out.URL.Path = joinURLPath(target.Path, route.RewritePath(pr.In.URL.Path))
	pr.Out.URL.RawPath = ""
	pr.Out.URL.RawQuery = pr.In.URL.RawQuery
	pr.Out.Host = ""
	pr.SetXForwarded()

	// クライアントが送った識別ヘッダーは信用せず、ゲートウェイが確定した値で上書きする
	h := pr.Out.Header
	for _, name := range []string{HeaderTenantID, HeaderTenantSchema, HeaderUserID, HeaderUserRole} {
		h.Del(name)
	}
	rc := domain.RequestContextFrom(pr.In.Context())
	if rc == nil {
		return
	}
	h.Set(HeaderRequestID, rc.RequestID)
	h.Set(HeaderTraceID, rc.TraceID)
	if rc.TenantID != "" {
		// スキーマ単位でテナントを分離するバックエンドは X-Tenant-Schema を使う
		h.Set(HeaderTenantID, rc.TenantID)
		h.Set(HeaderTenantSchema, rc.TenantSchema)
	}
	if rc.Identity != nil {
		h.Set(HeaderUserID, rc.Identity.Subject)
		h.Set(HeaderUserRole, rc.Identity.Role)
	}
}

func (p *ProxyRouter) handleError(w http.ResponseWriter, r *http.Request, err error) {
	route, _ := r.Context().Value(routeKey{}).(*domain.Route)
	name := ""
	if route != nil {
		name = route.Name
	}

	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		slog.InfoContext(r.Context(), "client disconnected during proxy", "route", name)
		return
	}

	slog.ErrorContext(r.Context(), "proxy error",
		"route", name,
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	if p.metrics != nil {
		p.metrics.UpstreamFailed(name)
	}
	middleware.WriteError(w, r, domain.ErrUpstreamUnavailable)
}

func joinURLPath(base, path string) string {
	if base == "" || base == "/" {
		return path
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
