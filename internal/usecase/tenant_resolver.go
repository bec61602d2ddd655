package usecase

import (
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"

	"benefits-gateway/internal/domain"
)

// TenantResolution はテナント解決の結果。
type TenantResolution struct {
	TenantID string
	Source   domain.TenantSource
}

// TenantResolverConfig はTenantResolverの設定。
type TenantResolverConfig struct {
	Header             string
	QueryParam         string
	DefaultTenant      string // 空の場合は既定テナントにフォールバックしない
	ReservedSubdomains []string
}

// TenantResolver はリクエストから対象テナントを特定する。
// 優先順位: サブドメイン > ヘッダー > トークンのクレーム > クエリパラメータ > 既定テナント
type TenantResolver struct {
	cfg TenantResolverConfig
}

// NewTenantResolver は新しいTenantResolverを生成する。
func NewTenantResolver(cfg TenantResolverConfig) *TenantResolver {
	return &TenantResolver{cfg: cfg}
}

// Resolve はテナントIDを特定する。
// 最初に見つかった候補の形式が不正な場合は後続の情報源を試さず ErrInvalidTenantID を返す。
func (r *TenantResolver) Resolve(req *http.Request, identity *domain.Identity) (TenantResolution, error) {
	candidates := []struct {
		value  string
		source domain.TenantSource
	}{
		{r.fromSubdomain(req.Host), domain.TenantSourceSubdomain},
		{strings.TrimSpace(req.Header.Get(r.cfg.Header)), domain.TenantSourceHeader},
		{claimTenant(identity), domain.TenantSourceClaim},
		{strings.TrimSpace(req.URL.Query().Get(r.cfg.QueryParam)), domain.TenantSourceQuery},
		{r.cfg.DefaultTenant, domain.TenantSourceDefault},
	}

	for _, c := range candidates {
		if c.value == "" {
			continue
		}
		if err := domain.ValidateTenantID(c.value); err != nil {
			return TenantResolution{}, fmt.Errorf("%w: %q from %s", err, c.value, c.source)
		}
		return TenantResolution{TenantID: c.value, Source: c.source}, nil
	}
	return TenantResolution{}, domain.ErrTenantRequired
}

// fromSubdomain はホスト名の先頭ラベルを返す。
// 3ラベル未満のホスト、IPアドレス、予約済みサブドメインは対象外。
func (r *TenantResolver) fromSubdomain(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}

	labels := strings.Split(host, ".")
	if len(labels) < 3 || slices.Contains(r.cfg.ReservedSubdomains, labels[0]) {
		return ""
	}
	return labels[0]
}

func claimTenant(identity *domain.Identity) string {
	if identity == nil {
		return ""
	}
	return identity.TenantID
}
