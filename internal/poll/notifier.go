package poll

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/textproto"
	"time"

	mail "github.com/wneessen/go-mail"

	"github.com/hitoshi/rssnotify/internal/model"
	"github.com/hitoshi/rssnotify/internal/security"
)

// Notifier は新着記事1件につき1通のメールを送信する。
// 呼び出しごとにSMTP接続を1回だけ試行し、リトライはスケジューラの責務とする。
type Notifier struct {
	sanitizer security.MailSanitizerService
	logger    *slog.Logger
	timeout   time.Duration
}

// NewNotifier はNotifierの新しいインスタンスを生成する。
func NewNotifier(sanitizer security.MailSanitizerService, logger *slog.Logger, timeout time.Duration) *Notifier {
	return &Notifier{
		sanitizer: sanitizer,
		logger:    logger,
		timeout:   timeout,
	}
}

// Send は記事の通知メールを1通送信する。
// プロファイル不正はネットワーク接続前にNotifyErrConfigとして返し、
// その場合メールは一切送信されない。失敗はNotifyErrorとして分類して返す。
func (n *Notifier) Send(ctx context.Context, profile *model.SmtpProfile, feed *model.Feed, entry model.Entry) error {
	if err := profile.Validate(); err != nil {
		return &NotifyError{Kind: NotifyErrConfig, Err: err}
	}

	msg, err := n.buildMessage(profile, feed, entry)
	if err != nil {
		return &NotifyError{Kind: NotifyErrConfig, Err: err}
	}

	client, err := n.newClient(profile)
	if err != nil {
		return &NotifyError{Kind: NotifyErrConfig, Err: fmt.Errorf("SMTPクライアントの生成に失敗: %w", err)}
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return classifySendError(err)
	}

	return nil
}

// buildMessage は通知メールを組み立てる。
// フィード名・記事タイトル・リンク・公開日時を含み、
// サマリーはサニタイズしてHTMLパートに埋め込む。
func (n *Notifier) buildMessage(profile *model.SmtpProfile, feed *model.Feed, entry model.Entry) (*mail.Msg, error) {
	msg := mail.NewMsg()

	// 送信者表示名は「RSS <フィード名>」
	if err := msg.FromFormat(fmt.Sprintf("RSS %s", feed.Name), profile.FromEmail); err != nil {
		return nil, fmt.Errorf("送信元アドレスの設定に失敗: %w", err)
	}
	if err := msg.To(profile.ToEmail); err != nil {
		return nil, fmt.Errorf("宛先アドレスの設定に失敗: %w", err)
	}

	subject := entry.Title
	if subject == "" {
		subject = fmt.Sprintf("%s の新着記事", feed.Name)
	}
	msg.Subject(subject)

	published := ""
	if entry.PublishedAt != nil {
		published = entry.PublishedAt.Format(time.RFC1123)
	}

	textBody := fmt.Sprintf("Original Post: %s - %s\r\n", entry.Title, entry.Link)
	if published != "" {
		textBody += fmt.Sprintf("Published: %s\r\n", published)
	}

	htmlBody := fmt.Sprintf(
		`<p>Original Post: <a href="%s">%s</a></p>`,
		html.EscapeString(entry.Link), html.EscapeString(entry.Title),
	)
	if published != "" {
		htmlBody += fmt.Sprintf("<p>Published: %s</p>", html.EscapeString(published))
	}
	if entry.Summary != "" {
		htmlBody += n.sanitizer.Sanitize(entry.Summary)
	}

	msg.SetBodyString(mail.TypeTextPlain, textBody)
	msg.AddAlternativeString(mail.TypeTextHTML, htmlBody)

	return msg, nil
}

// newClient はプロファイルからSMTPクライアントを生成する。
// タイムアウトは接続と送信の両方に適用される。
func (n *Notifier) newClient(profile *model.SmtpProfile) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(profile.Port),
		mail.WithTimeout(n.timeout),
	}

	if profile.StartTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if profile.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(profile.Username),
			mail.WithPassword(profile.Password),
		)
	}

	return mail.NewClient(profile.Host, opts...)
}

// classifySendError はSMTP送信エラーをNotifyErrorに分類する。
//
//   - 530/534/535: 認証拒否
//   - 550〜553: 宛先拒否
//   - 4xx・ネットワークエラー・その他: 一時的エラー（リトライ対象）
func classifySendError(err error) *NotifyError {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code == 530 || tpErr.Code == 534 || tpErr.Code == 535:
			return &NotifyError{Kind: NotifyErrAuth, Err: err}
		case tpErr.Code >= 550 && tpErr.Code <= 553:
			return &NotifyError{Kind: NotifyErrRecipientRejected, Err: err}
		}
		return &NotifyError{Kind: NotifyErrTransient, Err: err}
	}

	var sendErr *mail.SendError
	if errors.As(err, &sendErr) && !sendErr.IsTemp() {
		// go-mailが恒久的と判定した送信エラーは宛先起因として扱う
		return &NotifyError{Kind: NotifyErrRecipientRejected, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &NotifyError{Kind: NotifyErrTransient, Err: err}
	}

	return &NotifyError{Kind: NotifyErrTransient, Err: err}
}
