package domain

import (
	"regexp"
)

const maxTenantIDLength = 63

var tenantIDRegex = regexp.MustCompile(`^[a-z0-9-]+$`)

// TenantSource はテナントIDをどこから特定したかを表す。
type TenantSource string

const (
	TenantSourceSubdomain TenantSource = "subdomain"
	TenantSourceHeader    TenantSource = "header"
	TenantSourceClaim     TenantSource = "claim"
	TenantSourceQuery     TenantSource = "query"
	TenantSourceDefault   TenantSource = "default"
)

// ValidateTenantID はテナントIDの形式を検証する。
func ValidateTenantID(tenantID string) error {
	if tenantID == "" || len(tenantID) > maxTenantIDLength {
		return ErrInvalidTenantID
	}
	if !tenantIDRegex.MatchString(tenantID) {
		return ErrInvalidTenantID
	}
	return nil
}

// TenantSchema はデータ層のパーティションキー（スキーマ名）を返す。
func TenantSchema(tenantID string) string {
	return "tenant_" + tenantID
}
