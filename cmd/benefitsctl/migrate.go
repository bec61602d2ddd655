package main

import (
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"benefits-gateway/internal/domain"
	"benefits-gateway/internal/infra"
	"benefits-gateway/internal/repository"
	"benefits-gateway/internal/usecase"
	"benefits-gateway/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
	Long:  "Manage database migrations for the benefits data store",
}

// openDB はDATABASE_URLで接続する。
// 暗号化フィールドを平文で読み書きするコマンドはフィールド暗号化プラグインを渡す。
func openDB(plugins ...gorm.Plugin) (*gorm.DB, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	db, err := infra.NewDB(dsn, infra.DefaultDBConfig(), plugins...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// migrationsFS はMIGRATIONS_DIRが指定されていればそのディレクトリ、無ければ埋め込みのマイグレーションを返す。
func migrationsFS() fs.FS {
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func newMigrationService(cmd *cobra.Command) (*usecase.MigrationService, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	repo := repository.NewMigrationRepository(db)
	if err := repo.EnsureTable(cmd.Context()); err != nil {
		return nil, fmt.Errorf("failed to prepare schema_migrations: %w", err)
	}
	return usecase.NewMigrationService(repo, db, migrationsFS()), nil
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Long:  "Apply all pending migrations to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		service, err := newMigrationService(cmd)
		if err != nil {
			return err
		}

		// マイグレーション実行
		appliedCount, err := service.ApplyMigrations(cmd.Context())
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		if appliedCount == 0 {
			fmt.Println("No pending migrations.")
		} else {
			fmt.Printf("Applied %d migration(s) successfully.\n", appliedCount)
		}
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long:  "Show the status of all migrations (applied/pending)",
	RunE: func(cmd *cobra.Command, args []string) error {
		service, err := newMigrationService(cmd)
		if err != nil {
			return err
		}

		statuses, err := service.GetMigrationStatus(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}

		if output == "json" {
			return printResult("", statuses)
		}

		// テーブル形式で出力
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
		fmt.Fprintln(w, "-------\t----\t------\t----------")

		for _, migration := range statuses {
			appliedAt := "-"
			if migration.AppliedAt != nil {
				appliedAt = migration.AppliedAt.Format("2006-01-02 15:04:05")
			}

			status := "pending"
			if migration.Status == domain.MigrationStatusApplied {
				status = "applied"
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", migration.Version, migration.Name, status, appliedAt)
		}

		if err := w.Flush(); err != nil {
			return fmt.Errorf("failed to flush output: %w", err)
		}
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
