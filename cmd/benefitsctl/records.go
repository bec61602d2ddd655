package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"benefits-gateway/internal/domain"
	"benefits-gateway/internal/repository"
	"benefits-gateway/pkg/fieldcrypt"
	"benefits-gateway/pkg/fieldcrypt/gormcrypt"
)

// openEncryptedDB は保護対象フィールドを透過的に暗号化・復号する接続を開く。
func openEncryptedDB(ctx context.Context) (*gorm.DB, error) {
	codec, err := newCodec(ctx)
	if err != nil {
		return nil, err
	}
	return openDB(gormcrypt.New(codec, fieldcrypt.DefaultRegistry(), nil))
}

// employeeCmd は従業員レコードの登録・参照コマンド。
func employeeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "employee",
		Short: "Store and read employee records with field encryption applied",
	}

	var (
		tenantID string
		emp      domain.Employee
	)
	put := &cobra.Command{
		Use:   "put",
		Short: "Create an employee, or replace it when --id already exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := domain.ValidateTenantID(tenantID); err != nil {
				return fmt.Errorf("--tenant: %w", err)
			}
			db, err := openEncryptedDB(cmd.Context())
			if err != nil {
				return err
			}
			repo := repository.NewEmployeeRepository(db)

			emp.TenantID = tenantID
			if emp.ID == "" {
				err = repo.Create(cmd.Context(), &emp)
			} else {
				err = repo.Upsert(cmd.Context(), &emp)
			}
			if err != nil {
				return fmt.Errorf("failed to store employee: %w", err)
			}
			return writeResult(cmd.OutOrStdout(), emp.ID, map[string]string{"id": emp.ID})
		},
	}
	put.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	put.Flags().StringVar(&emp.ID, "id", "", "Employee ID (generated when omitted)")
	put.Flags().StringVar(&emp.FirstName, "first-name", "", "First name")
	put.Flags().StringVar(&emp.LastName, "last-name", "", "Last name")
	put.Flags().StringVar(&emp.Email, "email", "", "Email address")
	put.Flags().StringVar(&emp.SSN, "ssn", "", "Social security number (encrypted)")
	put.Flags().StringVar(&emp.DOB, "dob", "", "Date of birth (encrypted)")
	put.Flags().StringVar(&emp.Address, "address", "", "Address (encrypted)")
	put.Flags().StringVar(&emp.Phone, "phone", "", "Phone number (encrypted)")
	put.MarkFlagRequired("tenant")

	var getTenant string
	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Read an employee with protected fields decrypted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := domain.ValidateTenantID(getTenant); err != nil {
				return fmt.Errorf("--tenant: %w", err)
			}
			db, err := openEncryptedDB(cmd.Context())
			if err != nil {
				return err
			}

			found, err := repository.NewEmployeeRepository(db).FindByID(cmd.Context(), getTenant, args[0])
			if err != nil {
				return fmt.Errorf("failed to read employee: %w", err)
			}
			if found == nil {
				return fmt.Errorf("employee %s: %w", args[0], domain.ErrRecordNotFound)
			}

			if output == "json" {
				return writeResult(cmd.OutOrStdout(), "", found)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintf(w, "ID\t%s\n", found.ID)
			fmt.Fprintf(w, "NAME\t%s %s\n", found.FirstName, found.LastName)
			fmt.Fprintf(w, "EMAIL\t%s\n", found.Email)
			fmt.Fprintf(w, "SSN\t%s\n", found.SSN)
			fmt.Fprintf(w, "DOB\t%s\n", found.DOB)
			fmt.Fprintf(w, "ADDRESS\t%s\n", found.Address)
			fmt.Fprintf(w, "PHONE\t%s\n", found.Phone)
			return w.Flush()
		},
	}
	get.Flags().StringVar(&getTenant, "tenant", "", "Tenant ID (required)")
	get.MarkFlagRequired("tenant")

	var listTenant string
	list := &cobra.Command{
		Use:   "list",
		Short: "List employees of a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := domain.ValidateTenantID(listTenant); err != nil {
				return fmt.Errorf("--tenant: %w", err)
			}
			db, err := openEncryptedDB(cmd.Context())
			if err != nil {
				return err
			}

			employees, err := repository.NewEmployeeRepository(db).FindAllByTenantID(cmd.Context(), listTenant)
			if err != nil {
				return fmt.Errorf("failed to list employees: %w", err)
			}

			if output == "json" {
				return writeResult(cmd.OutOrStdout(), "", employees)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL")
			for _, e := range employees {
				fmt.Fprintf(w, "%s\t%s %s\t%s\n", e.ID, e.FirstName, e.LastName, e.Email)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&listTenant, "tenant", "", "Tenant ID (required)")
	list.MarkFlagRequired("tenant")

	cmd.AddCommand(put, get, list)
	return cmd
}

// enrollmentCmd は確認番号による加入申込の検索コマンド。確認番号は復号せずハッシュで照合する。
func enrollmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrollment",
		Short: "Look up enrollments",
	}

	var tenantID string
	find := &cobra.Command{
		Use:   "find <confirmation>",
		Short: "Find an enrollment by confirmation number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := domain.ValidateTenantID(tenantID); err != nil {
				return fmt.Errorf("--tenant: %w", err)
			}
			codec, err := newCodec(cmd.Context())
			if err != nil {
				return err
			}
			db, err := openDB(gormcrypt.New(codec, fieldcrypt.DefaultRegistry(), nil))
			if err != nil {
				return err
			}

			enr, err := repository.NewEnrollmentRepository(db, codec).FindByConfirmation(cmd.Context(), tenantID, args[0])
			if err != nil {
				return fmt.Errorf("failed to find enrollment: %w", err)
			}
			if enr == nil {
				return fmt.Errorf("enrollment %s: %w", args[0], domain.ErrRecordNotFound)
			}
			text := fmt.Sprintf("%s\t%s\t%s\t%s", enr.ID, enr.EmployeeID, enr.PlanID, enr.Status)
			return writeResult(cmd.OutOrStdout(), text, enr)
		},
	}
	find.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	find.MarkFlagRequired("tenant")

	cmd.AddCommand(find)
	return cmd
}
