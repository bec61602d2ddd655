package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"benefits-gateway/internal/domain"
	"benefits-gateway/internal/infra"
	"benefits-gateway/internal/repository"
	"benefits-gateway/internal/usecase"
	"benefits-gateway/pkg/fieldcrypt"
)

// verifyCmd は保存済みの暗号化フィールドが現在の鍵で復号できるかを検査する。
func verifyCmd() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every encrypted field of a tenant can be decrypted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := domain.ValidateTenantID(tenantID); err != nil {
				return fmt.Errorf("--tenant: %w", err)
			}
			codec, err := newCodec(cmd.Context())
			if err != nil {
				return err
			}
			db, err := openDB()
			if err != nil {
				return err
			}

			report, err := usecase.NewIntegrityService(db, codec, fieldcrypt.DefaultRegistry()).Verify(cmd.Context(), tenantID)
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}

			if output == "json" {
				if err := printResult("", report); err != nil {
					return err
				}
			} else {
				fmt.Printf("Scanned %d record(s) for tenant %q, %d undecryptable value(s).\n", report.Scanned, tenantID, len(report.Failures))
				if !report.OK() {
					w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
					fmt.Fprintln(w, "ENTITY\tID\tFIELD\tREASON")
					for _, f := range report.Failures {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Entity, f.ID, f.Field, f.Reason)
					}
					if err := w.Flush(); err != nil {
						return fmt.Errorf("failed to flush output: %w", err)
					}
				}
			}

			if !report.OK() {
				return fmt.Errorf("%d value(s) failed to decrypt", len(report.Failures))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

// auditCmd は監査ログの参照コマンド。
func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect audit entries",
	}

	var (
		tenantID string
		limit    int
		source   string
		dir      string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List audit entries of a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := domain.ValidateTenantID(tenantID); err != nil {
				return fmt.Errorf("--tenant: %w", err)
			}

			var entries []*domain.AuditEntry
			switch source {
			case "database":
				db, err := openDB()
				if err != nil {
					return err
				}
				entries, err = repository.NewAuditRepository(db).FindByTenantID(cmd.Context(), tenantID, limit)
				if err != nil {
					return err
				}
			case "badger":
				if dir == "" {
					dir = os.Getenv("AUDIT_BADGER_DIR")
				}
				if dir == "" {
					return fmt.Errorf("--dir is required (or set AUDIT_BADGER_DIR)")
				}
				bdb, err := infra.NewBadgerDB(dir)
				if err != nil {
					return err
				}
				defer bdb.Close()
				entries, err = repository.NewBadgerAuditStore(bdb).List(cmd.Context(), tenantID, limit)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown --source %q (database, badger)", source)
			}

			if output == "json" {
				return printResult("", entries)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "TIMESTAMP\tUSER\tACTION\tIP\tREQUEST ID")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.Subject, e.Action, e.IPAddress, e.RequestID)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	list.Flags().IntVar(&limit, "limit", 50, "Maximum number of entries (0 for all)")
	list.Flags().StringVar(&source, "source", "database", "Audit store: database, badger")
	list.Flags().StringVar(&dir, "dir", "", "Badger directory (or set AUDIT_BADGER_DIR)")
	list.MarkFlagRequired("tenant")
	cmd.AddCommand(list)
	return cmd
}
