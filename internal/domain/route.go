package domain

import (
	"net/url"
	"strings"
)

// Route はパスプレフィックスとバックエンドサービスの対応を表す。
type Route struct {
	Name               string   // サービス名（メトリクスやログのラベル）
	Prefix             string   // 受信パスのプレフィックス（例: /api/enrollments）
	Target             *url.URL // バックエンドのベースURL
	RewritePrefix      string   // 転送時にPrefixを置き換えるパス（例: /enrollments）
	RequiredPermission string   // 必要な権限（空なら認証のみ）
}

// Matches はパスがこのルートに該当するかを返す。
// プレフィックスはパスセグメント境界でのみ一致する。
func (r *Route) Matches(path string) bool {
	if !strings.HasPrefix(path, r.Prefix) {
		return false
	}
	rest := path[len(r.Prefix):]
	return rest == "" || strings.HasPrefix(rest, "/") || strings.HasSuffix(r.Prefix, "/")
}

// RewritePath は受信パスをバックエンド向けのパスに書き換える。
func (r *Route) RewritePath(path string) string {
	rewritten := r.RewritePrefix + strings.TrimPrefix(path, r.Prefix)
	if rewritten == "" {
		return "/"
	}
	return rewritten
}
