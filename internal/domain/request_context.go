package domain

import (
	"context"
	"slices"
)

// Identity は検証済みトークンから取り出した利用者情報を表す。
type Identity struct {
	Subject     string
	Email       string
	Role        string
	Permissions []string
	TenantID    string // トークン内のテナントクレーム（無い場合は空）
}

// RoleSuperAdmin は全権限を持つロール。
const RoleSuperAdmin = "SUPER_ADMIN"

// DefaultRole はロールクレームが無い場合のロール。
const DefaultRole = "EMPLOYEE"

// HasPermission は権限を保持しているか、SUPER_ADMINかを返す。
func (i *Identity) HasPermission(permission string) bool {
	if i == nil {
		return false
	}
	return i.Role == RoleSuperAdmin || slices.Contains(i.Permissions, permission)
}

// RequestContext はリクエスト単位の処理状態を表す。
// パイプラインの各段階で順に埋められ、そのリクエストだけが所有する。
type RequestContext struct {
	RequestID    string
	TraceID      string
	TenantID     string
	TenantSchema string
	TenantSource TenantSource
	Identity     *Identity
}

// Authenticated は認証済みかどうかを返す。
func (rc *RequestContext) Authenticated() bool {
	return rc != nil && rc.Identity != nil
}

// SetTenant はテナントIDと派生するスキーマ名を設定する。
func (rc *RequestContext) SetTenant(tenantID string, source TenantSource) {
	rc.TenantID = tenantID
	rc.TenantSchema = TenantSchema(tenantID)
	rc.TenantSource = source
}

type requestContextKey struct{}

// WithRequestContext はRequestContextを格納したcontextを返す。
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom はcontextからRequestContextを取り出す。無い場合はnil。
func RequestContextFrom(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}

// RequestIDFrom はcontextのリクエストIDを返す。
func RequestIDFrom(ctx context.Context) string {
	if rc := RequestContextFrom(ctx); rc != nil {
		return rc.RequestID
	}
	return ""
}
