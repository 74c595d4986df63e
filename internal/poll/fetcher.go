// Package poll はフィードのポーリングとメール通知のエンジンを提供する。
// スケジューラ、フェッチャー、新着判定、ノーティファイアを含む。
package poll

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"

	"github.com/hitoshi/rssnotify/internal/model"
)

// Fetcher は個別フィードのHTTPフェッチとパースを行う。
// URLを受け取り記事列を返すだけの純粋な処理であり、永続化への副作用を持たない。
type Fetcher struct {
	client      *http.Client
	logger      *slog.Logger
	maxBodySize int64
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// clientにはSSRF防止機能付きのクライアントを渡すことを想定している
// （テストでは素のクライアントを注入できる）。
func NewFetcher(client *http.Client, logger *slog.Logger, maxBodySize int64) *Fetcher {
	return &Fetcher{
		client:      client,
		logger:      logger,
		maxBodySize: maxBodySize,
	}
}

// Fetch はフィードをフェッチしてパースし、ドキュメント内の出現順で記事を返す。
// 順序について「現在公開中の記事の完全な集合」以上の保証はない
// （新しい順とは限らない）。失敗はFetchErrorとして分類して返す。
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]model.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchErrNetwork, Err: fmt.Errorf("リクエスト作成に失敗: %w", err)}
	}

	req.Header.Set("User-Agent", "RSSNotify/1.0 Feed Watcher")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: FetchErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Kind:       FetchErrHTTP,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTPステータス %d", resp.StatusCode),
		}
	}

	// サイズ上限付きで読み込む。上限+1バイト読めた場合は超過とみなす
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, &FetchError{Kind: FetchErrNetwork, Err: fmt.Errorf("レスポンス読み取りに失敗: %w", err)}
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, &FetchError{
			Kind: FetchErrParse,
			Err:  fmt.Errorf("レスポンスサイズが上限 %d バイトを超過", f.maxBodySize),
		}
	}

	// Content-Typeの文字エンコーディングをUTF-8に正規化してからパースする
	reader, err := charset.NewReader(bytes.NewReader(body), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &FetchError{Kind: FetchErrParse, Err: fmt.Errorf("文字エンコーディングの判定に失敗: %w", err)}
	}

	parsed, err := gofeed.NewParser().Parse(reader)
	if err != nil {
		return nil, &FetchError{Kind: FetchErrParse, Err: fmt.Errorf("フィードのパースに失敗: %w", err)}
	}

	return convertGofeedItems(parsed.Items), nil
}

// convertGofeedItems はgofeedの記事をmodel.Entryに変換する。
// ドキュメント内の出現順を保持する。
func convertGofeedItems(items []*gofeed.Item) []model.Entry {
	entries := make([]model.Entry, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		entry := model.Entry{
			Title:   item.Title,
			Link:    item.Link,
			Summary: item.Description,
		}

		// 公開日時: published優先、なければupdatedで代用
		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			entry.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			entry.PublishedAt = &t
		}

		// 記事識別子: フィード自身のGUIDを最優先し、
		// なければタイトル+公開日時の合成IDにフォールバック
		if item.GUID != "" {
			entry.ID = item.GUID
		} else {
			entry.ID = model.FallbackEntryID(item.Title, entry.PublishedAt)
		}

		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
		if entry.Link == "" &&
			(strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
			entry.Link = item.GUID
		}

		entries = append(entries, entry)
	}

	return entries
}
