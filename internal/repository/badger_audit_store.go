package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"benefits-gateway/internal/domain"
)

const auditKeyPrefix = "audit/"

// BadgerAuditStore は監査ログをローカルのbadgerに追記する。
// キーは audit/<tenant>/<unix nano>/<uuid> で、テナント内では時刻順に並ぶ。
type BadgerAuditStore struct {
	db *badger.DB
}

// NewBadgerAuditStore は新しいBadgerAuditStoreを生成する。
func NewBadgerAuditStore(db *badger.DB) *BadgerAuditStore {
	return &BadgerAuditStore{db: db}
}

func auditKey(entry *domain.AuditEntry) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d/%s", auditKeyPrefix, entry.TenantID, entry.Timestamp.UnixNano(), uuid.New().String()))
}

func auditTenantPrefix(tenantID string) []byte {
	return []byte(auditKeyPrefix + tenantID + "/")
}

// Append は監査エントリを1件追記する。
func (s *BadgerAuditStore) Append(ctx context.Context, entry *domain.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(auditKey(entry), data)
	})
	if err != nil {
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

// List は指定されたテナントの監査ログを古い順に最大limit件取得する。limitが0以下の場合は全件。
func (s *BadgerAuditStore) List(ctx context.Context, tenantID string, limit int) ([]*domain.AuditEntry, error) {
	prefix := auditTenantPrefix(tenantID)
	var entries []*domain.AuditEntry

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var entry domain.AuditEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to list audit entries",
			"operation", "list",
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, err
	}
	return entries, nil
}
