package usecase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"benefits-gateway/pkg/fieldcrypt"
)

// EntityTables はエンティティ種別と保存先テーブルの対応。
var EntityTables = map[string]string{
	"Employee":   "employees",
	"Dependent":  "dependents",
	"Enrollment": "enrollments",
}

// IntegrityFailure は復号できなかった値1件を表す。
type IntegrityFailure struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// IntegrityReport は暗号化フィールドの検査結果。
type IntegrityReport struct {
	TenantID string             `json:"tenant_id"`
	Scanned  int                `json:"scanned"`
	Failures []IntegrityFailure `json:"failures"`
}

// OK は復号できない値が無いかを返す。
func (r *IntegrityReport) OK() bool {
	return len(r.Failures) == 0
}

// IntegrityService は保存済みの暗号化フィールドが現在の鍵で復号できるかを検査する。
// 暗号化プラグインを経由せずに生の値を読み出す。
type IntegrityService struct {
	db       *gorm.DB
	codec    *fieldcrypt.Codec
	registry *fieldcrypt.Registry
	tables   map[string]string
}

// NewIntegrityService は新しいIntegrityServiceを生成する。
func NewIntegrityService(db *gorm.DB, codec *fieldcrypt.Codec, registry *fieldcrypt.Registry) *IntegrityService {
	return &IntegrityService{db: db, codec: codec, registry: registry, tables: EntityTables}
}

// Verify は指定テナントの全登録エンティティを走査する。
func (s *IntegrityService) Verify(ctx context.Context, tenantID string) (*IntegrityReport, error) {
	report := &IntegrityReport{TenantID: tenantID, Failures: []IntegrityFailure{}}

	for _, entity := range s.registry.Entities() {
		table, ok := s.tables[entity]
		if !ok {
			continue
		}
		if err := s.verifyTable(ctx, tenantID, entity, table, report); err != nil {
			slog.ErrorContext(ctx, "failed to verify encrypted fields",
				"operation", "verify",
				"entity", entity,
				"tenant_id", tenantID,
				"error", err,
			)
			return nil, err
		}
	}
	return report, nil
}

func (s *IntegrityService) verifyTable(ctx context.Context, tenantID, entity, table string, report *IntegrityReport) error {
	fields := s.registry.Fields(entity)
	columns := append([]string{"id"}, fields...)

	rows, err := s.db.WithContext(ctx).
		Table(table).
		Select(columns).
		Where("tenant_id = ?", tenantID).
		Rows()
	if err != nil {
		return fmt.Errorf("scan %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}

		report.Scanned++
		id := values[0].String
		for i, field := range fields {
			v := values[i+1]
			if !v.Valid || v.String == "" {
				continue
			}
			if _, err := s.codec.Decrypt(v.String); err != nil {
				reason := err.Error()
				var decErr *fieldcrypt.DecryptionError
				if errors.As(err, &decErr) {
					reason = decErr.Reason
				}
				report.Failures = append(report.Failures, IntegrityFailure{
					Entity: entity,
					ID:     id,
					Field:  field,
					Reason: reason,
				})
			}
		}
	}
	return rows.Err()
}
