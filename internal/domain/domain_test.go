package domain

import (
	"context"
	"errors"
	"net/url"
	"testing"
)

func TestValidateTenantID(t *testing.T) {
	tests := []struct {
		name     string
		tenantID string
		wantErr  bool
	}{
		{name: "lowercase", tenantID: "acme", wantErr: false},
		{name: "with hyphen and digits", tenantID: "acme-01", wantErr: false},
		{name: "empty", tenantID: "", wantErr: true},
		{name: "uppercase", tenantID: "Acme", wantErr: true},
		{name: "underscore", tenantID: "acme_co", wantErr: true},
		{name: "dot", tenantID: "acme.co", wantErr: true},
		{name: "too long", tenantID: string(make([]byte, 64)), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTenantID(tt.tenantID)
			if tt.wantErr && !errors.Is(err, ErrInvalidTenantID) {
				t.Errorf("want ErrInvalidTenantID, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRequestContext_SetTenant(t *testing.T) {
	rc := &RequestContext{RequestID: "req-1"}
	rc.SetTenant("acme", TenantSourceSubdomain)

	if rc.TenantSchema != "tenant_acme" {
		t.Errorf("want schema tenant_acme, got %s", rc.TenantSchema)
	}
	if rc.TenantSource != TenantSourceSubdomain {
		t.Errorf("want source subdomain, got %s", rc.TenantSource)
	}

	ctx := WithRequestContext(context.Background(), rc)
	if got := RequestContextFrom(ctx); got != rc {
		t.Error("expected the same RequestContext from context")
	}
	if got := RequestIDFrom(ctx); got != "req-1" {
		t.Errorf("want request id req-1, got %s", got)
	}
	if got := RequestIDFrom(context.Background()); got != "" {
		t.Errorf("want empty request id, got %s", got)
	}
}

func TestIdentity_HasPermission(t *testing.T) {
	employee := &Identity{Subject: "u1", Role: DefaultRole, Permissions: []string{"enrollments:read"}}
	admin := &Identity{Subject: "u2", Role: RoleSuperAdmin}

	if !employee.HasPermission("enrollments:read") {
		t.Error("expected employee to hold enrollments:read")
	}
	if employee.HasPermission("reports:read") {
		t.Error("expected employee to lack reports:read")
	}
	if !admin.HasPermission("reports:read") {
		t.Error("expected super admin to hold every permission")
	}
	var nilIdentity *Identity
	if nilIdentity.HasPermission("reports:read") {
		t.Error("expected nil identity to hold nothing")
	}
}

func TestRoute_MatchesAndRewrite(t *testing.T) {
	target, _ := url.Parse("http://enrollment-service:3100")
	r := &Route{Name: "enrollment", Prefix: "/api/enrollments", Target: target, RewritePrefix: "/enrollments"}

	tests := []struct {
		path      string
		wantMatch bool
		wantPath  string
	}{
		{path: "/api/enrollments", wantMatch: true, wantPath: "/enrollments"},
		{path: "/api/enrollments/123", wantMatch: true, wantPath: "/enrollments/123"},
		{path: "/api/enrollmentsx", wantMatch: false},
		{path: "/api/benefits", wantMatch: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := r.Matches(tt.path); got != tt.wantMatch {
				t.Fatalf("Matches(%q) = %v, want %v", tt.path, got, tt.wantMatch)
			}
			if tt.wantMatch {
				if got := r.RewritePath(tt.path); got != tt.wantPath {
					t.Errorf("RewritePath(%q) = %q, want %q", tt.path, got, tt.wantPath)
				}
			}
		})
	}
}
