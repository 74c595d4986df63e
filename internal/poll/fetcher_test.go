package poll

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/rssnotify/internal/model"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>テストフィード</title>
  <link>https://example.com/</link>
  <item>
    <title>2番目の記事</title>
    <link>https://example.com/posts/2</link>
    <guid>https://example.com/posts/2</guid>
    <description>&lt;p&gt;本文2&lt;/p&gt;</description>
    <pubDate>Sat, 02 Aug 2026 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>1番目の記事</title>
    <link>https://example.com/posts/1</link>
    <guid>https://example.com/posts/1</guid>
    <description>&lt;p&gt;本文1&lt;/p&gt;</description>
    <pubDate>Fri, 01 Aug 2026 10:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

func newTestFetcher(client *http.Client, maxBodySize int64) *Fetcher {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewFetcher(client, logger, maxBodySize)
}

func TestFetcher_ParsesFeedInDocumentOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		io.WriteString(w, testRSS)
	}))
	defer server.Close()

	f := newTestFetcher(server.Client(), 1<<20)
	entries, err := f.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("フェッチに失敗: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("記事は2件のはず: %d件", len(entries))
	}
	// ドキュメント順（新しい順）のまま返る。並べ替えは判定側の責務
	if entries[0].ID != "https://example.com/posts/2" {
		t.Errorf("ドキュメント順が保持されていない: %s", entries[0].ID)
	}
	if entries[0].PublishedAt == nil {
		t.Error("pubDateがパースされるべき")
	}
	if entries[1].Title != "1番目の記事" {
		t.Errorf("タイトルが不正: %s", entries[1].Title)
	}
	if !strings.Contains(entries[0].Summary, "本文2") {
		t.Errorf("サマリーが不正: %s", entries[0].Summary)
	}
}

func TestFetcher_SendsUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		io.WriteString(w, testRSS)
	}))
	defer server.Close()

	f := newTestFetcher(server.Client(), 1<<20)
	if _, err := f.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("フェッチに失敗: %v", err)
	}

	if !strings.HasPrefix(gotUA, "RSSNotify/") {
		t.Errorf("User-Agentが設定されるべき: %q", gotUA)
	}
}

func TestFetcher_HTTPErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantRetryable bool
	}{
		{"404は非リトライ", http.StatusNotFound, false},
		{"410は非リトライ", http.StatusGone, false},
		{"429はリトライ可能", http.StatusTooManyRequests, true},
		{"500はリトライ可能", http.StatusInternalServerError, true},
		{"503はリトライ可能", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			f := newTestFetcher(server.Client(), 1<<20)
			_, err := f.Fetch(context.Background(), server.URL)

			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("FetchErrorが返るべき: %v", err)
			}
			if fe.Kind != FetchErrHTTP {
				t.Errorf("Kind = %s, want http", fe.Kind)
			}
			if fe.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", fe.StatusCode, tt.status)
			}
			if fe.Retryable() != tt.wantRetryable {
				t.Errorf("Retryable() = %v, want %v", fe.Retryable(), tt.wantRetryable)
			}
		})
	}
}

func TestFetcher_NetworkErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close() // 接続拒否を再現する

	f := newTestFetcher(http.DefaultClient, 1<<20)
	_, err := f.Fetch(context.Background(), url)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("FetchErrorが返るべき: %v", err)
	}
	if fe.Kind != FetchErrNetwork {
		t.Errorf("Kind = %s, want network", fe.Kind)
	}
	if !fe.Retryable() {
		t.Error("ネットワークエラーはリトライ可能なはず")
	}
}

func TestFetcher_MalformedDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><body>not a feed</body></html>")
	}))
	defer server.Close()

	f := newTestFetcher(server.Client(), 1<<20)
	_, err := f.Fetch(context.Background(), server.URL)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("FetchErrorが返るべき: %v", err)
	}
	if fe.Kind != FetchErrParse {
		t.Errorf("Kind = %s, want parse", fe.Kind)
	}
	if fe.Retryable() {
		t.Error("パース失敗はリトライ不可のはず")
	}
}

func TestFetcher_BodySizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, testRSS)
	}))
	defer server.Close()

	f := newTestFetcher(server.Client(), 64) // フィードより小さい上限
	_, err := f.Fetch(context.Background(), server.URL)

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("FetchErrorが返るべき: %v", err)
	}
	if fe.Kind != FetchErrParse {
		t.Errorf("Kind = %s, want parse", fe.Kind)
	}
}

func TestConvertGofeedItems_FallbackID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>GUIDなしフィード</title>
  <item>
    <title>GUIDのない記事</title>
    <link>https://example.com/posts/3</link>
    <pubDate>Sun, 03 Aug 2026 10:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`)
	}))
	defer server.Close()

	f := newTestFetcher(server.Client(), 1<<20)
	entries, err := f.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("フェッチに失敗: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("記事は1件のはず: %d件", len(entries))
	}

	want := model.FallbackEntryID("GUIDのない記事", entries[0].PublishedAt)
	if entries[0].ID != want {
		t.Errorf("合成IDが期待値と一致しない: %s", entries[0].ID)
	}
	// 同一入力からは常に同じIDが生成される
	if entries[0].ID != model.FallbackEntryID("GUIDのない記事", entries[0].PublishedAt) {
		t.Error("合成IDは決定的であるべき")
	}
}
