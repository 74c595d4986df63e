// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/rssnotify/internal/model"
)

// ErrNotFound は更新対象の行が存在しない場合に返される。
var ErrNotFound = errors.New("record not found")

// FeedRepository はフィード購読データの永続化インターフェース。
// ポーリングエンジンはList/UpdateMarkerのみを使用し、
// それ以外はCRUD APIが使用する。
type FeedRepository interface {
	// List は登録済みの全フィードをID昇順で返す。
	List(ctx context.Context) ([]*model.Feed, error)

	// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Feed, error)

	// Create はフィードを作成する。
	Create(ctx context.Context, feed *model.Feed) error

	// Update はフィードの名前とURLを更新する。マーカーには触れない。
	// 対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, feed *model.Feed) error

	// Delete は指定IDのフィードを削除する。
	Delete(ctx context.Context, id string) error

	// UpdateMarker はフィードのマーカー列のみを更新する。
	// ID単位のlast-write-winsであり、他のフィールドとのマージは行わない。
	// 対象が存在しない場合（ポーリング中に削除された場合）はErrNotFoundを返す。
	UpdateMarker(ctx context.Context, id string, marker model.Marker) error
}

// SettingsRepository はSMTP設定の永続化インターフェース。
type SettingsRepository interface {
	// GetActiveProfile はアクティブなSMTPプロファイルを取得する。
	// 未登録の場合はnilを返す（エラーではない）。
	GetActiveProfile(ctx context.Context) (*model.SmtpProfile, error)

	// Upsert はアクティブなSMTPプロファイルを登録または上書きする。
	Upsert(ctx context.Context, profile *model.SmtpProfile) error
}
