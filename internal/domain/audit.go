package domain

import "time"

// AuditEntry は認証済みリクエスト1件ごとの監査記録。作成後は変更しない。
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	Action    string    `json:"action"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	RequestID string    `json:"request_id"`
}
