package poll

import "fmt"

// FetchErrorKind はフェッチ失敗の分類を表す。
type FetchErrorKind int

const (
	// FetchErrNetwork はタイムアウト・DNS失敗・接続拒否などのネットワークエラー。リトライ可能。
	FetchErrNetwork FetchErrorKind = iota
	// FetchErrHTTP は2xx以外のHTTPステータス。5xxと429のみリトライ可能。
	FetchErrHTTP
	// FetchErrParse はフィードドキュメントの解析失敗。同一サイクル内ではリトライしない。
	FetchErrParse
)

// String はメトリクスラベル用の短い名前を返す。
func (k FetchErrorKind) String() string {
	switch k {
	case FetchErrNetwork:
		return "network"
	case FetchErrHTTP:
		return "http"
	case FetchErrParse:
		return "parse"
	default:
		return "unknown"
	}
}

// FetchError はフィード取得の失敗を表す。
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int // Kind==FetchErrHTTP の場合のみ有効
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	if e.Kind == FetchErrHTTP {
		return fmt.Sprintf("フェッチ失敗 (%s, status=%d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("フェッチ失敗 (%s): %v", e.Kind, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable は次サイクルを待たずにリトライしてよい失敗かを返す。
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case FetchErrNetwork:
		return true
	case FetchErrHTTP:
		return e.StatusCode >= 500 || e.StatusCode == 429
	default:
		return false
	}
}

// NotifyErrorKind は通知失敗の分類を表す。
type NotifyErrorKind int

const (
	// NotifyErrTransient は接続・タイムアウト等の一時的な失敗。リトライ可能。
	NotifyErrTransient NotifyErrorKind = iota
	// NotifyErrAuth は認証拒否。サイクル内ではリトライせず、オペレータに警告する。
	NotifyErrAuth
	// NotifyErrRecipientRejected は宛先拒否。この記事についてはリトライしない。
	NotifyErrRecipientRejected
	// NotifyErrConfig はプロファイル不正。ネットワーク接続前に検出される。
	NotifyErrConfig
)

// String はメトリクスラベル用の短い名前を返す。
func (k NotifyErrorKind) String() string {
	switch k {
	case NotifyErrTransient:
		return "transient"
	case NotifyErrAuth:
		return "auth"
	case NotifyErrRecipientRejected:
		return "recipient_rejected"
	case NotifyErrConfig:
		return "config"
	default:
		return "unknown"
	}
}

// NotifyError はメール通知の失敗を表す。
type NotifyError struct {
	Kind NotifyErrorKind
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *NotifyError) Error() string {
	return fmt.Sprintf("通知失敗 (%s): %v", e.Kind, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *NotifyError) Unwrap() error {
	return e.Err
}

// Retryable は同一サイクル内でリトライしてよい失敗かを返す。
func (e *NotifyError) Retryable() bool {
	return e.Kind == NotifyErrTransient
}

// Terminal はサイクル全体の通知を打ち切るべき失敗かを返す。
// 認証拒否とプロファイル不正は同じプロファイルを使う後続記事でも必ず失敗する。
func (e *NotifyError) Terminal() bool {
	return e.Kind == NotifyErrAuth || e.Kind == NotifyErrConfig
}
