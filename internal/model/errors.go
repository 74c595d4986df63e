// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, feed, settings, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidURL        = "INVALID_URL"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeFeedNotFound      = "FEED_NOT_FOUND"
	ErrCodeSSRFBlocked       = "SSRF_BLOCKED"
	ErrCodeSmtpNotConfigured = "SMTP_NOT_CONFIGURED"
	ErrCodeInvalidSmtp       = "INVALID_SMTP_PROFILE"
)

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なフィードURLです: %s", reason),
		Category: "validation",
		Action:   "http:// または https:// で始まる絶対URLを入力してください。",
	}
}

// NewInvalidRequestError はリクエストボディ不正エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewFeedNotFoundError はフィード未検出エラーを生成する。
func NewFeedNotFoundError(feedID string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotFound,
		Message:  fmt.Sprintf("指定されたフィードが見つかりません: %s", feedID),
		Category: "feed",
		Action:   "フィードIDを確認してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。",
	}
}

// NewSmtpNotConfiguredError はSMTP未設定エラーを生成する。
func NewSmtpNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeSmtpNotConfigured,
		Message:  "SMTP設定が登録されていません。",
		Category: "settings",
		Action:   "PUT /api/settings/smtp でSMTP設定を登録してください。",
	}
}

// NewInvalidSmtpError は無効なSMTP設定エラーを生成する。
func NewInvalidSmtpError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSmtp,
		Message:  fmt.Sprintf("無効なSMTP設定です: %s", reason),
		Category: "validation",
		Action:   "ホスト、ポート、送信元・宛先アドレスを確認してください。",
	}
}
