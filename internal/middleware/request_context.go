package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"benefits-gateway/internal/domain"
	"benefits-gateway/pkg/httputil"
)

// TraceIDHeader はトレースIDを受け渡すヘッダー名。
const TraceIDHeader = "X-Trace-ID"

// RequestContext はリクエストID・トレースIDを確定し、domain.RequestContext をcontextに格納する。
// リクエストIDは受信ヘッダーの値を引き継ぎ、無ければUUIDを生成する。
// トレースIDは受信ヘッダー、アクティブなスパン、UUIDの順に決める。
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(httputil.RequestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		traceID := r.Header.Get(TraceIDHeader)
		if traceID == "" || len(traceID) > 128 {
			if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
				traceID = sc.TraceID().String()
			} else {
				traceID = uuid.NewString()
			}
		}

		w.Header().Set(httputil.RequestIDHeader, requestID)
		w.Header().Set(TraceIDHeader, traceID)

		rc := &domain.RequestContext{RequestID: requestID, TraceID: traceID}
		next.ServeHTTP(w, r.WithContext(domain.WithRequestContext(r.Context(), rc)))
	})
}
