// Package model はドメインモデルを定義する。
package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Entry はフィードドキュメント内の1記事を表す。
// フェッチャーが生成する一時データであり、永続化されない。
type Entry struct {
	ID          string // フィード自身のGUID、なければタイトル+公開日時の合成ID
	Title       string
	Link        string
	Summary     string // 未サニタイズ。通知時にサニタイズする
	PublishedAt *time.Time
}

// FallbackEntryID はGUIDを持たない記事の合成識別子を生成する。
// タイトルと公開日時のSHA-256ハッシュを使用する。
func FallbackEntryID(title string, publishedAt *time.Time) string {
	pubStr := ""
	if publishedAt != nil {
		pubStr = publishedAt.UTC().Format(time.RFC3339)
	}
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|%s", title, pubStr)))
	return fmt.Sprintf("%x", hash)
}

// PollStatus はフィードごとのポーリング結果の種別を表す。
type PollStatus string

const (
	// PollStatusSuccess はサイクル完了（通知・コミットまで成功）。
	PollStatusSuccess PollStatus = "success"
	// PollStatusFailure はフェッチ・通知・コミットいずれかの失敗。
	PollStatusFailure PollStatus = "failure"
	// PollStatusSkipped は実行中サイクルとの重複によるスキップ。
	PollStatusSkipped PollStatus = "skipped"
)

// PollOutcome はフィードごと・サイクルごとのポーリング結果を表す。
// 可観測性（ログ・メトリクス）のためだけに使い、永続化しない。
type PollOutcome struct {
	FeedID     string
	Status     PollStatus
	NewEntries int
	Sent       int
	Err        error
	Duration   time.Duration
}
