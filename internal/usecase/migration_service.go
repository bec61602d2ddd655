package usecase

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"
	"unicode"

	"gorm.io/gorm"

	"benefits-gateway/internal/domain"
)

// MigrationRepository はマイグレーション履歴を管理するリポジトリのインターフェース。
type MigrationRepository interface {
	FindAllApplied(ctx context.Context) ([]*domain.Migration, error)
}

// MigrationService はスキーママイグレーションを適用する。
// マイグレーションは {version}_{name}.sql 形式のファイルで、バイナリに埋め込んだものかディレクトリから読み込む。
type MigrationService struct {
	repo       MigrationRepository
	db         *gorm.DB
	migrations fs.FS
}

// NewMigrationService は新しいMigrationServiceを生成する。
func NewMigrationService(repo MigrationRepository, db *gorm.DB, migrations fs.FS) *MigrationService {
	return &MigrationService{
		repo:       repo,
		db:         db,
		migrations: migrations,
	}
}

// scanMigrationFiles は.sqlファイルをバージョン順に列挙する。
func (s *MigrationService) scanMigrationFiles() ([]*domain.Migration, error) {
	entries, err := fs.ReadDir(s.migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMigrationFileNotFound, err)
	}

	var migrations []*domain.Migration
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		version, name, err := parseMigrationFileName(entry.Name())
		if err != nil {
			return nil, err
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("%w: version %s used by %s and %s", domain.ErrInvalidMigrationFile, version, other, entry.Name())
		}
		seen[version] = entry.Name()

		migrations = append(migrations, &domain.Migration{
			Version:  version,
			Name:     name,
			FilePath: entry.Name(),
			Status:   domain.MigrationStatusPending,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationFileName はファイル名からバージョンと名前を抽出する。
// ファイル名のフォーマット: {version}_{name}.sql (例: 001_create_employees.sql)
func parseMigrationFileName(filename string) (version, name string, err error) {
	parts := strings.SplitN(strings.TrimSuffix(filename, ".sql"), "_", 2)
	if len(parts) < 2 || !isNumeric(parts[0]) || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s (expected format: {version}_{name}.sql)", domain.ErrInvalidMigrationFile, filename)
	}
	return parts[0], parts[1], nil
}

// isNumeric はバージョン部が数字のみで構成されているかを返す。
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// splitStatements はSQLファイルを文単位に分割する。
// MySQLドライバは既定で複数文の一括実行を受け付けないため、1文ずつ実行する。
func splitStatements(sql string) []string {
	var statements []string
	for _, stmt := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			statements = append(statements, strings.TrimSpace(strings.Join(lines, "\n")))
		}
	}
	return statements
}

// ApplyMigrations は未適用マイグレーションを番号順に実行し、適用件数を返す。
func (s *MigrationService) ApplyMigrations(ctx context.Context) (int, error) {
	migrations, err := s.GetMigrationStatus(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load migration status",
			"operation", "apply_migrations",
			"error", err,
		)
		return 0, err
	}

	appliedCount := 0
	for _, migration := range migrations {
		if !migration.IsPending() {
			continue
		}
		if err := s.applyMigration(ctx, migration); err != nil {
			slog.ErrorContext(ctx, "failed to apply migration",
				"operation", "apply_migrations",
				"version", migration.Version,
				"error", err,
			)
			return appliedCount, fmt.Errorf("%w: version %s: %v", domain.ErrMigrationFailed, migration.Version, err)
		}
		slog.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"name", migration.Name,
		)
		appliedCount++
	}
	return appliedCount, nil
}

// applyMigration は単一のマイグレーションをトランザクション内で実行し、履歴を記録する。
func (s *MigrationService) applyMigration(ctx context.Context, migration *domain.Migration) error {
	sqlBytes, err := fs.ReadFile(s.migrations, migration.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range splitStatements(string(sqlBytes)) {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to execute migration SQL: %w", err)
			}
		}

		// 履歴を記録（同じトランザクションで実行する）
		model := struct {
			Version   string    `gorm:"column:version;primaryKey;type:varchar(14)"`
			AppliedAt time.Time `gorm:"column:applied_at"`
		}{
			Version:   migration.Version,
			AppliedAt: time.Now(),
		}
		if err := tx.Table("schema_migrations").Create(&model).Error; err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})
}

// GetMigrationStatus は全マイグレーションと適用状況を返す。
func (s *MigrationService) GetMigrationStatus(ctx context.Context) ([]*domain.Migration, error) {
	migrations, err := s.scanMigrationFiles()
	if err != nil {
		return nil, err
	}

	applied, err := s.repo.FindAllApplied(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch applied migrations",
			"operation", "get_migration_status",
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch applied migrations: %w", err)
	}

	appliedMap := make(map[string]*domain.Migration, len(applied))
	for _, m := range applied {
		appliedMap[m.Version] = m
	}
	for _, m := range migrations {
		if a, ok := appliedMap[m.Version]; ok {
			m.Status = domain.MigrationStatusApplied
			m.AppliedAt = a.AppliedAt
		}
	}
	return migrations, nil
}
