package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// HTTPMetrics はHTTPリクエストの件数と処理時間を記録する。
type HTTPMetrics interface {
	RecordHTTPRequest(route, method string, statusCode int, duration time.Duration)
}

// AccessLog はリクエストごとにアクセスログを1行出力し、メトリクスを記録する。
// metricsがnilの場合はログのみ出力する。
func AccessLog(metrics HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			slog.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", clientIP(r),
			)

			if metrics != nil {
				metrics.RecordHTTPRequest(routePattern(r), r.Method, status, duration)
			}
		})
	}
}

// routePattern はメトリクスのラベルに使うルートパターンを返す。
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
