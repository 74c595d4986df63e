package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rssnotify/internal/model"
)

// PostgresSettingsRepo はPostgreSQLを使用したSMTP設定リポジトリ。
type PostgresSettingsRepo struct {
	db *sql.DB
}

// NewPostgresSettingsRepo はPostgresSettingsRepoを生成する。
func NewPostgresSettingsRepo(db *sql.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

// GetActiveProfile はアクティブなSMTPプロファイルを取得する。
// 未登録の場合はnilを返す（エラーではない）。
func (r *PostgresSettingsRepo) GetActiveProfile(ctx context.Context) (*model.SmtpProfile, error) {
	profile := &model.SmtpProfile{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, host, port, username, password, from_email, to_email, starttls, created_at, updated_at
		 FROM smtp_settings
		 WHERE is_active
		 ORDER BY updated_at DESC
		 LIMIT 1`,
	).Scan(
		&profile.ID, &profile.Host, &profile.Port,
		&profile.Username, &profile.Password,
		&profile.FromEmail, &profile.ToEmail, &profile.StartTLS,
		&profile.CreatedAt, &profile.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("SMTP設定の取得に失敗しました: %w", err)
	}

	return profile, nil
}

// Upsert はアクティブなSMTPプロファイルを登録または上書きする。
// 既存のアクティブ設定を非アクティブ化してから新しい設定を挿入する。
func (r *PostgresSettingsRepo) Upsert(ctx context.Context, profile *model.SmtpProfile) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE smtp_settings SET is_active = false, updated_at = now() WHERE is_active`,
	); err != nil {
		return fmt.Errorf("既存SMTP設定の非アクティブ化に失敗しました: %w", err)
	}

	now := time.Now()
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO smtp_settings (id, host, port, username, password, from_email, to_email, starttls, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, $9, $9)`,
		profile.ID, profile.Host, profile.Port,
		profile.Username, profile.Password,
		profile.FromEmail, profile.ToEmail, profile.StartTLS,
		now,
	); err != nil {
		return fmt.Errorf("SMTP設定の登録に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return nil
}

// compile-time interface check
var _ SettingsRepository = (*PostgresSettingsRepo)(nil)
