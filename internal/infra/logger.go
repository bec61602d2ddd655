package infra

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"

	"benefits-gateway/config"
	"benefits-gateway/internal/domain"
)

// ContextHandler はcontextに載った相関情報をログレコードへ書き出すslogハンドラ。
//
// RequestContextがあればrequest_id・trace_id・tenant_id・user_idを、
// 有効なスパンがあればspanIdとCloud Logging用のトレースキーを付与する。
type ContextHandler struct {
	next slog.Handler
	// projects/<id>/traces/ 。GCPプロジェクト未設定なら空
	cloudTracePrefix string
	spans            bool
}

// NewContextHandler はnextへ委譲するContextHandlerを生成する。
func NewContextHandler(next slog.Handler, cfg *config.Config) *ContextHandler {
	h := &ContextHandler{next: next, spans: cfg.OtelEnabled}
	if cfg.GoogleCloudProject != "" {
		h.cloudTracePrefix = "projects/" + cfg.GoogleCloudProject + "/traces/"
	}
	return h
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if rc := domain.RequestContextFrom(ctx); rc != nil {
		r.AddAttrs(requestAttrs(rc)...)
	}
	if h.spans {
		r.AddAttrs(h.spanAttrs(trace.SpanContextFromContext(ctx))...)
	}
	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.wrap(h.next.WithAttrs(attrs))
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return h.wrap(h.next.WithGroup(name))
}

func (h *ContextHandler) wrap(next slog.Handler) *ContextHandler {
	c := *h
	c.next = next
	return &c
}

func requestAttrs(rc *domain.RequestContext) []slog.Attr {
	attrs := []slog.Attr{slog.String("request_id", rc.RequestID)}
	if rc.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", rc.TraceID))
	}
	if rc.TenantID != "" {
		attrs = append(attrs, slog.String("tenant_id", rc.TenantID))
	}
	if rc.Identity != nil {
		attrs = append(attrs, slog.String("user_id", rc.Identity.Subject))
	}
	return attrs
}

func (h *ContextHandler) spanAttrs(sc trace.SpanContext) []slog.Attr {
	if !sc.IsValid() {
		return nil
	}
	traceID, spanID := sc.TraceID().String(), sc.SpanID().String()
	attrs := []slog.Attr{
		slog.String("spanId", spanID),
		slog.Bool("traceSampled", sc.IsSampled()),
	}
	if h.cloudTracePrefix != "" {
		attrs = append(attrs,
			slog.String("logging.googleapis.com/trace", h.cloudTracePrefix+traceID),
			slog.String("logging.googleapis.com/spanId", spanID),
		)
	}
	return attrs
}

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。不明な値はINFOとする。
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger はwへJSONで出力するロガーを生成する。
func NewLogger(w io.Writer, cfg *config.Config, level slog.Level) *slog.Logger {
	return slog.New(NewContextHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), cfg))
}

// SetupLogger は標準出力へのロガーをデフォルトに設定する。
func SetupLogger(cfg *config.Config, level slog.Level) {
	slog.SetDefault(NewLogger(os.Stdout, cfg, level))
}
