package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"benefits-gateway/internal/domain"
)

const auditWriteTimeout = 5 * time.Second

// AuditSink は監査エントリの書き込み先。
type AuditSink interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
}

// AuditMetrics は監査ログの欠落・書き込み失敗を記録する。
type AuditMetrics interface {
	AuditDropped()
	AuditWriteFailed(sink string)
}

// NamedSink は書き込み先とログ・メトリクス用の名前の組。
type NamedSink struct {
	Name string
	Sink AuditSink
}

// LogAuditSink は監査エントリを構造化ログとして出力する。
type LogAuditSink struct {
	logger *slog.Logger
}

// NewLogAuditSink は新しいLogAuditSinkを生成する。loggerがnilの場合は slog.Default() を使う。
func NewLogAuditSink(logger *slog.Logger) *LogAuditSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAuditSink{logger: logger}
}

// Append は監査エントリを1行のログとして出力する。
func (s *LogAuditSink) Append(ctx context.Context, entry *domain.AuditEntry) error {
	s.logger.InfoContext(ctx, "audit",
		"timestamp", entry.Timestamp,
		"user_id", entry.Subject,
		"tenant_id", entry.TenantID,
		"action", entry.Action,
		"ip_address", entry.IPAddress,
		"user_agent", entry.UserAgent,
		"request_id", entry.RequestID,
	)
	return nil
}

// AuditService は監査エントリをバッファ経由で非同期に書き込む。
// Record はリクエスト処理をブロックせず、バッファが満杯の場合はエントリを破棄してログに残す。
type AuditService struct {
	sinks   []NamedSink
	metrics AuditMetrics
	entries chan *domain.AuditEntry
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAuditService は書き込みワーカーを起動したAuditServiceを生成する。
func NewAuditService(sinks []NamedSink, bufferSize int, metrics AuditMetrics) *AuditService {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	s := &AuditService{
		sinks:   sinks,
		metrics: metrics,
		entries: make(chan *domain.AuditEntry, bufferSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Record は監査エントリを書き込みキューに積む。
func (s *AuditService) Record(ctx context.Context, entry *domain.AuditEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		slog.WarnContext(ctx, "audit service closed, dropping entry", "request_id", entry.RequestID)
		s.dropped()
		return
	}

	select {
	case s.entries <- entry:
	default:
		slog.WarnContext(ctx, "audit buffer full, dropping entry",
			"request_id", entry.RequestID,
			"tenant_id", entry.TenantID,
		)
		s.dropped()
	}
}

func (s *AuditService) dropped() {
	if s.metrics != nil {
		s.metrics.AuditDropped()
	}
}

func (s *AuditService) run() {
	defer close(s.done)
	for entry := range s.entries {
		s.write(entry)
	}
}

func (s *AuditService) write(entry *domain.AuditEntry) {
	for _, sink := range s.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		err := sink.Sink.Append(ctx, entry)
		cancel()
		if err != nil {
			slog.Error("failed to write audit entry",
				"sink", sink.Name,
				"request_id", entry.RequestID,
				"tenant_id", entry.TenantID,
				"error", err,
			)
			if s.metrics != nil {
				s.metrics.AuditWriteFailed(sink.Name)
			}
		}
	}
}

// Close は新規の受け付けを止め、キューに残ったエントリを書き切るまで待つ。
// ctxが先に終了した場合は ctx.Err() を返す。
func (s *AuditService) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.entries)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
