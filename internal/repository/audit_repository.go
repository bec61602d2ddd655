package repository

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"benefits-gateway/internal/domain"
)

// AuditLogModel はaudit_logsテーブルのモデル。追記のみで更新・削除はしない。
type AuditLogModel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"type:datetime(6);not null;index:idx_audit_tenant_time"`
	UserID    string    `gorm:"type:varchar(255);not null"`
	TenantID  string    `gorm:"type:varchar(63);not null;index:idx_audit_tenant_time"`
	Action    string    `gorm:"type:varchar(2048);not null"`
	IPAddress string    `gorm:"type:varchar(64)"`
	UserAgent string    `gorm:"type:varchar(512)"`
	RequestID string    `gorm:"type:varchar(64);not null;index:idx_audit_request_id"`
}

// TableName はテーブル名を返す。
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

func (m *AuditLogModel) toDomain() *domain.AuditEntry {
	return &domain.AuditEntry{
		Timestamp: m.Timestamp,
		Subject:   m.UserID,
		TenantID:  m.TenantID,
		Action:    m.Action,
		IPAddress: m.IPAddress,
		UserAgent: m.UserAgent,
		RequestID: m.RequestID,
	}
}

// AuditRepository は監査ログをデータベースに保存する。
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository は新しいAuditRepositoryを生成する。
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append は監査エントリを1件追記する。
func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	model := &AuditLogModel{
		Timestamp: entry.Timestamp,
		UserID:    entry.Subject,
		TenantID:  entry.TenantID,
		Action:    entry.Action,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
		RequestID: entry.RequestID,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to append audit entry",
			"operation", "append",
			"tenant_id", entry.TenantID,
			"request_id", entry.RequestID,
			"error", err,
		)
		return err
	}
	return nil
}

// FindByTenantID は指定されたテナントの監査ログを新しい順に取得する。
func (r *AuditRepository) FindByTenantID(ctx context.Context, tenantID string, limit int) ([]*domain.AuditEntry, error) {
	var models []AuditLogModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find audit entries",
			"operation", "find_by_tenant_id",
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, err
	}

	entries := make([]*domain.AuditEntry, len(models))
	for i, m := range models {
		entries[i] = m.toDomain()
	}
	return entries, nil
}
