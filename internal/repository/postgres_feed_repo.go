package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/rssnotify/internal/model"
)

// PostgresFeedRepo はPostgreSQLを使用したフィードリポジトリ。
type PostgresFeedRepo struct {
	db *sql.DB
}

// NewPostgresFeedRepo はPostgresFeedRepoを生成する。
func NewPostgresFeedRepo(db *sql.DB) *PostgresFeedRepo {
	return &PostgresFeedRepo{db: db}
}

// List は登録済みの全フィードをID昇順で返す。
func (r *PostgresFeedRepo) List(ctx context.Context) ([]*model.Feed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, feed_url, last_published_at, last_entry_id, created_at, updated_at
		 FROM feeds
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("フィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("フィード一覧の読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フィード一覧の走査に失敗しました: %w", err)
	}

	return feeds, nil
}

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, feed_url, last_published_at, last_entry_id, created_at, updated_at
		 FROM feeds WHERE id = $1`,
		id,
	)

	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}

	return feed, nil
}

// Create はフィードを作成する。
func (r *PostgresFeedRepo) Create(ctx context.Context, feed *model.Feed) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feeds (id, name, feed_url, last_published_at, last_entry_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		feed.ID, feed.Name, feed.FeedURL,
		nullTime(feed.Marker.LastPublishedAt), nullString(feed.Marker.LastEntryID),
		feed.CreatedAt, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("フィードの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はフィードの名前とURLを更新する。マーカーには触れない。
func (r *PostgresFeedRepo) Update(ctx context.Context, feed *model.Feed) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET name = $2, feed_url = $3, updated_at = now() WHERE id = $1`,
		feed.ID, feed.Name, feed.FeedURL,
	)
	if err != nil {
		return fmt.Errorf("フィードの更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete は指定IDのフィードを削除する。
func (r *PostgresFeedRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM feeds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("フィードの削除に失敗しました: %w", err)
	}
	return nil
}

// UpdateMarker はフィードのマーカー列のみを更新する。
// ID単位のlast-write-winsであり、他のフィールドとのマージは行わない。
func (r *PostgresFeedRepo) UpdateMarker(ctx context.Context, id string, marker model.Marker) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET last_published_at = $2, last_entry_id = $3, updated_at = now() WHERE id = $1`,
		id, nullTime(marker.LastPublishedAt), nullString(marker.LastEntryID),
	)
	if err != nil {
		return fmt.Errorf("マーカーの更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner はsql.Rowとsql.Rowsの共通スキャンインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFeed は1行をmodel.Feedに読み取る。
func scanFeed(row rowScanner) (*model.Feed, error) {
	feed := &model.Feed{}
	var lastPublishedAt sql.NullTime
	var lastEntryID sql.NullString

	if err := row.Scan(
		&feed.ID, &feed.Name, &feed.FeedURL,
		&lastPublishedAt, &lastEntryID,
		&feed.CreatedAt, &feed.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if lastPublishedAt.Valid {
		t := lastPublishedAt.Time
		feed.Marker.LastPublishedAt = &t
	}
	feed.Marker.LastEntryID = nullStringValue(lastEntryID)

	return feed, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullTime は*time.Timeをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// compile-time interface check
var _ FeedRepository = (*PostgresFeedRepo)(nil)
