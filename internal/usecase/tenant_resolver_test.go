package usecase

import (
	"errors"
	"net/http/httptest"
	"testing"

	"benefits-gateway/internal/domain"
)

func newTestTenantResolver(defaultTenant string) *TenantResolver {
	return NewTenantResolver(TenantResolverConfig{
		Header:             "X-Tenant-ID",
		QueryParam:         "tenantId",
		DefaultTenant:      defaultTenant,
		ReservedSubdomains: []string{"www", "api"},
	})
}

func TestTenantResolver_Resolve(t *testing.T) {
	tests := []struct {
		name          string
		host          string
		header        string
		query         string
		claim         string
		defaultTenant string
		wantTenant    string
		wantSource    domain.TenantSource
		wantErr       error
	}{
		{
			name:       "subdomain wins over conflicting header",
			host:       "acme.app.example",
			header:     "other-co",
			wantTenant: "acme",
			wantSource: domain.TenantSourceSubdomain,
		},
		{
			name:       "subdomain with port",
			host:       "acme.app.example:8443",
			wantTenant: "acme",
			wantSource: domain.TenantSourceSubdomain,
		},
		{
			name:       "reserved subdomain falls through to header",
			host:       "api.app.example",
			header:     "other-co",
			wantTenant: "other-co",
			wantSource: domain.TenantSourceHeader,
		},
		{
			name:       "header only",
			host:       "localhost:3000",
			header:     "other-co",
			wantTenant: "other-co",
			wantSource: domain.TenantSourceHeader,
		},
		{
			name:       "ip address host is not a subdomain",
			host:       "10.0.0.12:3000",
			claim:      "globex",
			wantTenant: "globex",
			wantSource: domain.TenantSourceClaim,
		},
		{
			name:       "claim before query",
			host:       "localhost",
			claim:      "globex",
			query:      "initech",
			wantTenant: "globex",
			wantSource: domain.TenantSourceClaim,
		},
		{
			name:       "query parameter",
			host:       "localhost",
			query:      "initech",
			wantTenant: "initech",
			wantSource: domain.TenantSourceQuery,
		},
		{
			name:          "default tenant outside production",
			host:          "localhost",
			defaultTenant: "default",
			wantTenant:    "default",
			wantSource:    domain.TenantSourceDefault,
		},
		{
			name:    "nothing resolvable in production",
			host:    "localhost",
			wantErr: domain.ErrTenantRequired,
		},
		{
			name:    "invalid header value",
			host:    "localhost",
			header:  "Acme_Co",
			wantErr: domain.ErrInvalidTenantID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/enrollments"
			if tt.query != "" {
				target += "?tenantId=" + tt.query
			}
			req := httptest.NewRequest("GET", target, nil)
			req.Host = tt.host
			if tt.header != "" {
				req.Header.Set("X-Tenant-ID", tt.header)
			}
			var identity *domain.Identity
			if tt.claim != "" {
				identity = &domain.Identity{Subject: "u1", TenantID: tt.claim}
			}

			got, err := newTestTenantResolver(tt.defaultTenant).Resolve(req, identity)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.TenantID != tt.wantTenant {
				t.Errorf("expected tenant %s, got %s", tt.wantTenant, got.TenantID)
			}
			if got.Source != tt.wantSource {
				t.Errorf("expected source %s, got %s", tt.wantSource, got.Source)
			}
		})
	}
}
