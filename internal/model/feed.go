// Package model はドメインモデルを定義する。
package model

import "time"

// Feed はメール通知対象のRSS/Atomフィード購読を表す。
// Markerフィールドのみポーリングエンジンが更新し、
// それ以外の属性はCRUD APIが管理する。
type Feed struct {
	ID        string
	Name      string
	FeedURL   string
	Marker    Marker
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Marker は「通知済みの最新記事」を表すフィードごとのウォーターマーク。
// 公開日時を第一キーとし、日付を持たないフィードのために
// 記事識別子を併せて保持する。ゼロ値は未ポーリングを意味する。
// 不変条件: フィードごとに単調非減少であること。
type Marker struct {
	LastPublishedAt *time.Time
	LastEntryID     string
}

// IsZero はマーカーが未設定（ベースライン未確立）かを返す。
func (m Marker) IsZero() bool {
	return m.LastPublishedAt == nil && m.LastEntryID == ""
}

// Newer はtが現在のマーカーより厳密に新しいかを返す。
// マーカーが日時を持たない場合はfalse（日時比較では判定不能）。
func (m Marker) Newer(t time.Time) bool {
	if m.LastPublishedAt == nil {
		return false
	}
	return t.After(*m.LastPublishedAt)
}
