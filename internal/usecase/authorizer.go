package usecase

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"

	"benefits-gateway/internal/domain"
)

const authzQuery = "data.gateway.authz.allow"

// DefaultPolicy はルートの必要権限を保持しているか、SUPER_ADMINであれば許可する。
const DefaultPolicy = `package gateway.authz

default allow := false

allow if input.identity.role == "SUPER_ADMIN"

allow if input.route.permission == ""

allow if input.route.permission in input.identity.permissions
`

// Authorizer はOPAのポリシーでルートへのアクセス可否を判定する。
type Authorizer struct {
	query rego.PreparedEvalQuery
}

// NewAuthorizer はポリシーをコンパイルしてAuthorizerを生成する。policyが空の場合は DefaultPolicy を使う。
func NewAuthorizer(ctx context.Context, policy string) (*Authorizer, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	query, err := rego.New(
		rego.Query(authzQuery),
		rego.Module("authz.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile authorization policy: %w", err)
	}
	return &Authorizer{query: query}, nil
}

// NewAuthorizerFromFile はファイルのポリシーからAuthorizerを生成する。pathが空の場合は DefaultPolicy を使う。
func NewAuthorizerFromFile(ctx context.Context, path string) (*Authorizer, error) {
	if path == "" {
		return NewAuthorizer(ctx, "")
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read authorization policy: %w", err)
	}
	return NewAuthorizer(ctx, string(src))
}

// Authorize は利用者がルートにアクセスできるかを判定する。拒否時は domain.ErrAuthorization を返す。
func (a *Authorizer) Authorize(ctx context.Context, identity *domain.Identity, route *domain.Route, method string) error {
	if identity == nil {
		return domain.ErrAuthentication
	}

	permissions := make([]any, len(identity.Permissions))
	for i, p := range identity.Permissions {
		permissions[i] = p
	}
	input := map[string]any{
		"method": method,
		"identity": map[string]any{
			"subject":     identity.Subject,
			"role":        identity.Role,
			"permissions": permissions,
			"tenant_id":   identity.TenantID,
		},
		"route": map[string]any{
			"name":       route.Name,
			"prefix":     route.Prefix,
			"permission": route.RequiredPermission,
		},
	}

	rs, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return fmt.Errorf("evaluate authorization policy: %w", err)
	}
	if !rs.Allowed() {
		return fmt.Errorf("%w: %s requires %q", domain.ErrAuthorization, route.Name, route.RequiredPermission)
	}
	return nil
}
