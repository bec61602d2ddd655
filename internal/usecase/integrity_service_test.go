package usecase

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"benefits-gateway/pkg/fieldcrypt"
)

func setupIntegrityDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	statements := []string{
		`CREATE TABLE employees (id TEXT PRIMARY KEY, tenant_id TEXT NOT NULL, ssn TEXT, dob TEXT, address TEXT, phone TEXT)`,
		`CREATE TABLE dependents (id TEXT PRIMARY KEY, tenant_id TEXT NOT NULL, ssn TEXT, dob TEXT)`,
		`CREATE TABLE enrollments (id TEXT PRIMARY KEY, tenant_id TEXT NOT NULL, confirmation TEXT)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to create table: %v", err)
		}
	}
	return db
}

func newIntegrityCodec(t *testing.T) *fieldcrypt.Codec {
	t.Helper()
	km, err := fieldcrypt.NewKeyMaterial("integrity-test-passphrase", "integrity-salt")
	if err != nil {
		t.Fatalf("failed to derive key: %v", err)
	}
	codec, err := fieldcrypt.NewCodec(km)
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}
	return codec
}

func mustEncrypt(t *testing.T, codec *fieldcrypt.Codec, s string) string {
	t.Helper()
	v, err := codec.Encrypt(s)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	return v
}

func TestIntegrityService_Verify(t *testing.T) {
	ctx := context.Background()
	db := setupIntegrityDB(t)
	codec := newIntegrityCodec(t)

	inserts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO employees (id, tenant_id, ssn, dob, address, phone) VALUES (?, ?, ?, ?, ?, ?)`,
			[]any{"e1", "acme", mustEncrypt(t, codec, "123-45-6789"), mustEncrypt(t, codec, "1990-01-01"), nil, ""}},
		{`INSERT INTO employees (id, tenant_id, ssn, dob, address, phone) VALUES (?, ?, ?, ?, ?, ?)`,
			[]any{"e2", "acme", "plaintext-ssn", mustEncrypt(t, codec, "1985-05-05"), nil, "zz:zz"}},
		{`INSERT INTO employees (id, tenant_id, ssn, dob, address, phone) VALUES (?, ?, ?, ?, ?, ?)`,
			[]any{"e3", "globex", "corrupt", nil, nil, nil}},
		{`INSERT INTO dependents (id, tenant_id, ssn, dob) VALUES (?, ?, ?, ?)`,
			[]any{"d1", "acme", mustEncrypt(t, codec, "987-65-4321"), nil}},
		{`INSERT INTO enrollments (id, tenant_id, confirmation) VALUES (?, ?, ?)`,
			[]any{"n1", "acme", mustEncrypt(t, codec, "CONF-0001")}},
	}
	for _, ins := range inserts {
		if err := db.Exec(ins.sql, ins.args...).Error; err != nil {
			t.Fatalf("failed to insert fixture: %v", err)
		}
	}

	svc := NewIntegrityService(db, codec, fieldcrypt.DefaultRegistry())
	report, err := svc.Verify(ctx, "acme")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if report.Scanned != 4 {
		t.Errorf("expected 4 scanned records, got %d", report.Scanned)
	}
	if report.OK() {
		t.Fatal("expected failures to be reported")
	}
	if len(report.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %d: %+v", len(report.Failures), report.Failures)
	}
	for _, f := range report.Failures {
		if f.Entity != "Employee" || f.ID != "e2" {
			t.Errorf("unexpected failure: %+v", f)
		}
	}

	clean, err := NewIntegrityService(db, codec, fieldcrypt.NewRegistry(map[string][]string{
		"Dependent": {"ssn", "dob"},
	})).Verify(ctx, "acme")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !clean.OK() || clean.Scanned != 1 {
		t.Errorf("expected clean report with 1 record, got %+v", clean)
	}
}
