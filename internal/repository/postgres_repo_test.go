package repository

import (
	"database/sql"
	"testing"
	"time"
)

// PostgresFeedRepoはFeedRepositoryインターフェースを満たすことを検証
func TestPostgresFeedRepo_ImplementsInterface(t *testing.T) {
	var _ FeedRepository = (*PostgresFeedRepo)(nil)
}

// PostgresSettingsRepoはSettingsRepositoryインターフェースを満たすことを検証
func TestPostgresSettingsRepo_ImplementsInterface(t *testing.T) {
	var _ SettingsRepository = (*PostgresSettingsRepo)(nil)
}

// NewPostgresFeedRepoが正しく初期化されることを検証
func TestNewPostgresFeedRepo_Initializes(t *testing.T) {
	repo := NewPostgresFeedRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresSettingsRepoが正しく初期化されることを検証
func TestNewPostgresSettingsRepo_Initializes(t *testing.T) {
	repo := NewPostgresSettingsRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

func TestNullString(t *testing.T) {
	if ns := nullString(""); ns.Valid {
		t.Error("空文字列はNULLとして扱うべき")
	}
	if ns := nullString("e1"); !ns.Valid || ns.String != "e1" {
		t.Errorf("nullString(e1) = %+v", ns)
	}
}

func TestNullStringValue(t *testing.T) {
	if v := nullStringValue(sql.NullString{}); v != "" {
		t.Errorf("NULLは空文字列になるべき: %q", v)
	}
	if v := nullStringValue(sql.NullString{String: "e1", Valid: true}); v != "e1" {
		t.Errorf("nullStringValue = %q", v)
	}
}

func TestNullTime(t *testing.T) {
	if nt := nullTime(nil); nt.Valid {
		t.Error("nilはNULLとして扱うべき")
	}

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if nt := nullTime(&ts); !nt.Valid || !nt.Time.Equal(ts) {
		t.Errorf("nullTime = %+v", nt)
	}
}
