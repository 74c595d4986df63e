package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSetup_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&buf)

	log.Info("テストメッセージ", "feed_id", "feed-1")

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("ログ出力がJSONではない: %v: %s", err, buf.String())
	}
	if entry["msg"] != "テストメッセージ" {
		t.Errorf("msg = %v, want テストメッセージ", entry["msg"])
	}
	if entry["feed_id"] != "feed-1" {
		t.Errorf("feed_id = %v, want feed-1", entry["feed_id"])
	}
}

func TestSetup_DefaultLevelSuppressesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&buf)

	log.Debug("デバッグメッセージ")

	if buf.Len() != 0 {
		t.Errorf("デフォルトレベルではDEBUGは出力されないべき: %s", buf.String())
	}
}

func TestSetup_LevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	var buf bytes.Buffer
	log := Setup(&buf)

	log.Debug("デバッグメッセージ")

	if buf.Len() == 0 {
		t.Error("LOG_LEVEL=debug のときDEBUGログが出力されるべき")
	}
}
