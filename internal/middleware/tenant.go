package middleware

import (
	"log/slog"
	"net/http"

	"benefits-gateway/internal/domain"
	"benefits-gateway/internal/usecase"
)

// TenantMetrics はテナントの解決元を記録する。
type TenantMetrics interface {
	TenantResolved(source string)
}

// Tenant は公開パス以外のリクエストでテナントを特定し、RequestContextに設定する。
// 特定できない場合は400を返す。
func Tenant(resolver *usecase.TenantResolver, publicPaths []string, metrics TenantMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicPath(r.URL.Path, publicPaths) {
				next.ServeHTTP(w, r)
				return
			}

			rc := domain.RequestContextFrom(r.Context())
			var identity *domain.Identity
			if rc != nil {
				identity = rc.Identity
			}

			res, err := resolver.Resolve(r, identity)
			if err != nil {
				slog.WarnContext(r.Context(), "tenant resolution failed",
					"host", r.Host,
					"path", r.URL.Path,
					"error", err,
				)
				WriteError(w, r, err)
				return
			}

			if rc != nil {
				rc.SetTenant(res.TenantID, res.Source)
			}
			if metrics != nil {
				metrics.TenantResolved(string(res.Source))
			}
			next.ServeHTTP(w, r)
		})
	}
}
