package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"benefits-gateway/internal/domain"
)

// KeyProvider はトークンヘッダーのkidに対応する検証鍵を返す。
type KeyProvider interface {
	Key(ctx context.Context, kid string) (any, error)
}

// TokenValidatorConfig はトークン検証の期待値。
type TokenValidatorConfig struct {
	Issuer         string
	Audience       string
	Algorithms     []string
	ClaimNamespace string // 例: https://benefits.example.com/ （カスタムクレームの接頭辞）
	Leeway         time.Duration
}

// TokenValidator はベアラートークンの署名とクレームを検証し、Identityを取り出す。
type TokenValidator struct {
	keys   KeyProvider
	cfg    TokenValidatorConfig
	parser *jwt.Parser
}

// NewTokenValidator は新しいTokenValidatorを生成する。
func NewTokenValidator(keys KeyProvider, cfg TokenValidatorConfig) *TokenValidator {
	return &TokenValidator{
		keys: keys,
		cfg:  cfg,
		parser: jwt.NewParser(
			jwt.WithValidMethods(cfg.Algorithms),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(cfg.Leeway),
		),
	}
}

// ErrMissingToken はAuthorizationヘッダーにベアラートークンが無い場合のエラー。
var ErrMissingToken = fmt.Errorf("%w: missing bearer token", domain.ErrAuthentication)

// Validate はAuthorizationヘッダーの値を検証する。
// 失敗時のエラーは常に domain.ErrAuthentication をラップする。
func (v *TokenValidator) Validate(ctx context.Context, authorization string) (*domain.Identity, error) {
	raw, ok := bearerToken(authorization)
	if !ok {
		return nil, ErrMissingToken
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
	}

	identity := v.identity(claims)
	if identity.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrAuthentication)
	}
	return identity, nil
}

// FailureReason は検証エラーをメトリクス用の理由ラベルに変換する。
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "missing"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "claims"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "signature"
	default:
		return "invalid"
	}
}

func bearerToken(authorization string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(authorization), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (v *TokenValidator) identity(claims jwt.MapClaims) *domain.Identity {
	sub, _ := claims.GetSubject()
	identity := &domain.Identity{
		Subject:     sub,
		Email:       v.stringClaim(claims, "email"),
		Role:        v.stringClaim(claims, "role"),
		Permissions: v.listClaim(claims, "permissions"),
		TenantID:    v.stringClaim(claims, "tenant_id", "tenantId"),
	}
	if identity.Role == "" {
		identity.Role = domain.DefaultRole
	}
	return identity
}

// lookup は名前空間付きのクレームを優先して値を返す。
func (v *TokenValidator) lookup(claims jwt.MapClaims, names ...string) (any, bool) {
	for _, name := range names {
		if v.cfg.ClaimNamespace != "" {
			if val, ok := claims[v.cfg.ClaimNamespace+name]; ok {
				return val, true
			}
		}
		if val, ok := claims[name]; ok {
			return val, true
		}
	}
	return nil, false
}

func (v *TokenValidator) stringClaim(claims jwt.MapClaims, names ...string) string {
	val, _ := v.lookup(claims, names...)
	s, _ := val.(string)
	return s
}

func (v *TokenValidator) listClaim(claims jwt.MapClaims, name string) []string {
	val, ok := v.lookup(claims, name)
	if !ok {
		return []string{}
	}
	switch list := val.(type) {
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(list)
	}
	return []string{}
}
