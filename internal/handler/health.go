package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"benefits-gateway/pkg/httputil"
)

const readinessTimeout = 3 * time.Second

// ReadinessCheck は依存先の疎通を確認する。
type ReadinessCheck func(ctx context.Context) error

// HealthHandler はヘルスチェックエンドポイントを提供する。
type HealthHandler struct {
	env     string
	started time.Time
	checks  map[string]ReadinessCheck
	now     func() time.Time
}

// HealthResponse は /health のレスポンス。
type HealthResponse struct {
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
	Uptime      float64 `json:"uptime"`
	Environment string  `json:"environment"`
}

// ReadinessResponse は /health/ready のレスポンス。
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewHealthHandler は新しいHealthHandlerを生成する。
func NewHealthHandler(env string, checks map[string]ReadinessCheck) *HealthHandler {
	return &HealthHandler{env: env, started: time.Now(), checks: checks, now: time.Now}
}

// Health はプロセスの稼働状況を返す。
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	httputil.JSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		Timestamp:   now.UTC().Format(time.RFC3339),
		Uptime:      now.Sub(h.started).Seconds(),
		Environment: h.env,
	})
}

// Live はプロセスが応答可能なら OK を返す。
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Ready は依存先がすべて応答する場合に200、いずれかが失敗した場合に503を返す。
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := ReadinessResponse{Status: "ready", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "not ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	httputil.JSON(w, status, resp)
}
