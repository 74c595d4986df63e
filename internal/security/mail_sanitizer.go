package security

import "github.com/microcosm-cc/bluemonday"

// MailSanitizerService は通知メールに埋め込むHTMLのサニタイズ機能を定義する。
// フィードのサマリーは信頼できない入力であり、メール本文に載せる前に
// 許可リストベースのポリシーで浄化する。
type MailSanitizerService interface {
	// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
	// 空文字列の入力には空文字列を返し、同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// mailSanitizer はMailSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type mailSanitizer struct {
	policy *bluemonday.Policy
}

// NewMailSanitizer はメール本文向けのサニタイザーを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em
//   - script, style, iframe, imgおよびon*イベント属性は除去
//     （メールクライアントでのリモート画像読み込みを避けるためimgも落とす）
//   - aタグはhref属性のみ許可、相対URLは不許可
func NewMailSanitizer() *mailSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(false)

	return &mailSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
func (s *mailSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// compile-time interface check
var _ MailSanitizerService = (*mailSanitizer)(nil)
