package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"benefits-gateway/internal/domain"
)

func TestAuthorizer_Authorize(t *testing.T) {
	ctx := context.Background()
	authz, err := NewAuthorizer(ctx, "")
	if err != nil {
		t.Fatalf("NewAuthorizer failed: %v", err)
	}

	reports := &domain.Route{Name: "reporting", Prefix: "/api/reports", RequiredPermission: "reports:read"}
	benefits := &domain.Route{Name: "benefits", Prefix: "/api/benefits"}

	tests := []struct {
		name     string
		identity *domain.Identity
		route    *domain.Route
		wantErr  error
	}{
		{
			name:     "holds permission",
			identity: &domain.Identity{Subject: "u1", Role: "HR_ADMIN", Permissions: []string{"reports:read"}},
			route:    reports,
		},
		{
			name:     "super admin",
			identity: &domain.Identity{Subject: "u2", Role: domain.RoleSuperAdmin, Permissions: []string{}},
			route:    reports,
		},
		{
			name:     "route without permission",
			identity: &domain.Identity{Subject: "u3", Role: domain.DefaultRole, Permissions: []string{}},
			route:    benefits,
		},
		{
			name:     "missing permission",
			identity: &domain.Identity{Subject: "u3", Role: domain.DefaultRole, Permissions: []string{"enrollments:read"}},
			route:    reports,
			wantErr:  domain.ErrAuthorization,
		},
		{
			name:    "no identity",
			route:   benefits,
			wantErr: domain.ErrAuthentication,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authz.Authorize(ctx, tt.identity, tt.route, "GET")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAuthorizer_PolicyFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "authz.rego")
	policy := `package gateway.authz

default allow := false

allow if input.method == "GET"
`
	if err := os.WriteFile(path, []byte(policy), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}

	authz, err := NewAuthorizerFromFile(ctx, path)
	if err != nil {
		t.Fatalf("NewAuthorizerFromFile failed: %v", err)
	}

	identity := &domain.Identity{Subject: "u1", Role: domain.DefaultRole}
	route := &domain.Route{Name: "enrollment", Prefix: "/api/enrollments", RequiredPermission: "enrollments:write"}
	if err := authz.Authorize(ctx, identity, route, "GET"); err != nil {
		t.Errorf("expected GET to be allowed: %v", err)
	}
	if err := authz.Authorize(ctx, identity, route, "POST"); !errors.Is(err, domain.ErrAuthorization) {
		t.Errorf("expected POST to be denied, got %v", err)
	}
}

func TestNewAuthorizer_InvalidPolicy(t *testing.T) {
	if _, err := NewAuthorizer(context.Background(), "package gateway.authz\n\nallow if {"); err == nil {
		t.Error("expected compile error for invalid policy")
	}
}
