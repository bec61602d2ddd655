// Package httputil はHTTPレスポンス生成のユーティリティを提供する。
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// RequestIDHeader はリクエストIDを受け渡すヘッダー名。
const RequestIDHeader = "X-Request-ID"

// ErrorResponse はエラーレスポンスの形式。
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// JSON はJSONレスポンスを返す。
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// ヘッダーは既に送信済みのため、ログのみ出力する
			slog.Error("Failed to encode response", "status", status, "error", err)
		}
	}
}

// Error はリクエストID付きのエラーレスポンスを返す。
// リクエストIDはレスポンスヘッダーに設定済みの値を使用する。
func Error(w http.ResponseWriter, status int, code string, message string) {
	JSON(w, status, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: w.Header().Get(RequestIDHeader),
	})
}
