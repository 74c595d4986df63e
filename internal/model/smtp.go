// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/mail"
	"time"
)

// SmtpProfile はメール送信に使用するSMTP設定を表す。
// ポーリングサイクルごとに設定ストアから再読み込みされ、
// サイクル内ではイミュータブルなスナップショットとして扱う。
type SmtpProfile struct {
	ID        string
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	ToEmail   string
	StartTLS  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate はプロファイルの妥当性を検証する。
// 送信前の事前チェックとして使用し、不正な場合はネットワーク接続を行わない。
func (p *SmtpProfile) Validate() error {
	if p == nil {
		return fmt.Errorf("SMTPプロファイルがnilです")
	}
	if p.Host == "" {
		return fmt.Errorf("SMTPホストが未設定です")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("SMTPポートが不正です: %d", p.Port)
	}
	if _, err := mail.ParseAddress(p.FromEmail); err != nil {
		return fmt.Errorf("送信元アドレスが不正です: %w", err)
	}
	if _, err := mail.ParseAddress(p.ToEmail); err != nil {
		return fmt.Errorf("宛先アドレスが不正です: %w", err)
	}
	return nil
}
