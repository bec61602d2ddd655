package middleware

import (
	"context"
	"net/http"
	"time"

	"benefits-gateway/internal/domain"
)

// AuditRecorder は監査エントリを非同期に記録する。
type AuditRecorder interface {
	Record(ctx context.Context, entry *domain.AuditEntry)
}

// Audit は認証済みかつテナント解決済みのリクエストごとに監査エントリを1件記録する。
// 記録はバックエンドへの転送前に行い、失敗してもリクエストは止めない。
func Audit(recorder AuditRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := domain.RequestContextFrom(r.Context())
			if rc.Authenticated() && rc.TenantID != "" {
				recorder.Record(r.Context(), &domain.AuditEntry{
					Timestamp: time.Now().UTC(),
					Subject:   rc.Identity.Subject,
					TenantID:  rc.TenantID,
					Action:    r.Method + " " + r.URL.Path,
					IPAddress: clientIP(r),
					UserAgent: r.UserAgent(),
					RequestID: rc.RequestID,
				})
			}
			next.ServeHTTP(w, r)
		})
	}
}
