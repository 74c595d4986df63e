// Package security はフィード取得まわりのセキュリティ機能を提供する。
package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrBlocked はSSRFポリシーによりブロックされたURLを示す。
// 単なる形式不正と区別するため、呼び出し側はerrors.Isで判定できる。
var ErrBlocked = errors.New("SSRFポリシーによりブロックされました")

// SSRFGuardService はSSRF防止機能のインターフェースを定義する。
// フィード登録時の事前検証とポーリング時のフェッチの両方で使用される。
type SSRFGuardService interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// safeurlがnet.DialerのControlフックでDNS解決後のIPアドレスを検証するため、
	// DNS再バインディング攻撃にも対応している。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はフィードURLの安全性を事前に検証する。
	// 絶対URL・スキーム・ホストの静的検証を行い、危険なURLの場合はエラーを返す。
	ValidateURL(rawURL string) error
}

// allowedSchemes はフィードURLで許可されるスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedCIDRs はフェッチを拒否するネットワーク範囲。
// プライベート(RFC 1918)、ループバック、リンクローカル（クラウドメタデータIP
// 169.254.169.254 を含む）、およびIPv6の対応範囲。
var blockedCIDRs = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
}

var blockedNetworks []*net.IPNet

func init() {
	for _, cidr := range blockedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedCIDRs: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, network)
	}
}

// ssrfGuard はSSRFGuardServiceの実装。
type ssrfGuard struct{}

// NewSSRFGuard はSSRFGuardServiceの新しいインスタンスを生成する。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はフィードURLの安全性を事前に検証する。
// DNS解決を伴わない静的な検証であり、DNS再バインディング攻撃は
// NewSafeClientが生成するクライアント側のDialer検証で防止される。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URLが空です")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("URLの解析に失敗しました: %w", err)
	}
	if !parsed.IsAbs() {
		return fmt.Errorf("絶対URLではありません: %s", rawURL)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("許可されていないスキームです: %s", scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("ホストが空です: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("ブロック対象のホストです %s: %w", host, ErrBlocked)
	}

	if ip := net.ParseIP(host); ip != nil && isBlockedIP(ip) {
		return fmt.Errorf("ブロック対象のIPアドレスです %s: %w", ip.String(), ErrBlocked)
	}

	return nil
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// compile-time interface check
var _ SSRFGuardService = (*ssrfGuard)(nil)
