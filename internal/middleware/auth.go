package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"benefits-gateway/internal/domain"
	"benefits-gateway/internal/usecase"
)

// TokenValidator はAuthorizationヘッダーを検証する。
type TokenValidator interface {
	Validate(ctx context.Context, authorization string) (*domain.Identity, error)
}

// AuthMetrics は認証失敗を記録する。
type AuthMetrics interface {
	AuthFailed(reason string)
}

// Authenticate は公開パス以外のリクエストでベアラートークンを検証し、Identityを設定する。
// 検証に失敗した場合は401を返し、後続の処理は行わない。
func Authenticate(validator TokenValidator, publicPaths []string, metrics AuthMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicPath(r.URL.Path, publicPaths) {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := validator.Validate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				reason := usecase.FailureReason(err)
				slog.WarnContext(r.Context(), "authentication failed",
					"reason", reason,
					"path", r.URL.Path,
					"error", err,
				)
				if metrics != nil {
					metrics.AuthFailed(reason)
				}
				WriteError(w, r, err)
				return
			}

			if rc := domain.RequestContextFrom(r.Context()); rc != nil {
				rc.Identity = identity
			}
			next.ServeHTTP(w, r)
		})
	}
}
