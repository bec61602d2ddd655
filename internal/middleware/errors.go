// Package middleware はゲートウェイのリクエスト処理パイプラインを構成するHTTPミドルウェアを提供する。
package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"benefits-gateway/internal/domain"
	"benefits-gateway/pkg/httputil"
)

// WriteError はエラーを対応するステータスとエラーコードのレスポンスに変換する。
// 想定外のエラーは内部情報を含めず INTERNAL_ERROR として返す。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrAuthentication):
		httputil.Error(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "Authentication required")
	case errors.Is(err, domain.ErrAuthorization):
		httputil.Error(w, http.StatusForbidden, "AUTHORIZATION_ERROR", "Insufficient permissions")
	case errors.Is(err, domain.ErrInvalidTenantID):
		httputil.Error(w, http.StatusBadRequest, "INVALID_TENANT", "Invalid tenant ID")
	case errors.Is(err, domain.ErrTenantRequired):
		httputil.Error(w, http.StatusBadRequest, "TENANT_REQUIRED", "Tenant identification required")
	case errors.Is(err, domain.ErrRateLimited):
		httputil.Error(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, please try again later.")
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		httputil.Error(w, http.StatusBadGateway, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
	case errors.Is(err, domain.ErrRouteNotFound):
		httputil.Error(w, http.StatusNotFound, "NOT_FOUND", "Route "+r.Method+" "+r.URL.Path+" not found")
	default:
		slog.ErrorContext(r.Context(), "unhandled error",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// IsPublicPath はパスが認証不要かを返す。
// 末尾が "/" のエントリはプレフィックス一致、それ以外は完全一致で判定する。
func IsPublicPath(path string, publicPaths []string) bool {
	for _, p := range publicPaths {
		if p == path {
			return true
		}
		if len(p) > 1 && p[len(p)-1] == '/' && (len(path) >= len(p) && path[:len(p)] == p) {
			return true
		}
	}
	return false
}
