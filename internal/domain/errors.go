package domain

import "errors"

var (
	// ErrAuthentication はベアラートークンが欠落・不正・期限切れの場合のエラー。
	ErrAuthentication = errors.New("authentication required")

	// ErrAuthorization は認証済みだが権限が不足している場合のエラー。
	ErrAuthorization = errors.New("insufficient permissions")

	// ErrTenantRequired はどの情報源からもテナントを特定できない場合のエラー。
	ErrTenantRequired = errors.New("tenant identification required")

	// ErrInvalidTenantID はテナントIDの形式が不正な場合のエラー。
	ErrInvalidTenantID = errors.New("invalid tenant ID")

	// ErrUpstreamUnavailable はバックエンドに到達できない、またはタイムアウトした場合のエラー。
	ErrUpstreamUnavailable = errors.New("service temporarily unavailable")

	// ErrRateLimited はクライアントがレート制限を超過した場合のエラー。
	ErrRateLimited = errors.New("too many requests")

	// ErrRouteNotFound は該当するルートが存在しない場合のエラー。
	ErrRouteNotFound = errors.New("route not found")

	// ErrRecordNotFound は指定されたレコードが存在しない場合のエラー。
	ErrRecordNotFound = errors.New("record not found")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
