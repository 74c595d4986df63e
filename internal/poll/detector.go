package poll

import (
	"sort"
	"sync"

	"github.com/hitoshi/rssnotify/internal/model"
)

// seenCacheCap はフィードごとの既知記事IDキャッシュの上限。
// 超過時は古いものから削除する。
const seenCacheCap = 512

// DetectResult は新着判定の結果を表す。
type DetectResult struct {
	// New は新着と判定された記事。公開日時の古い順に並ぶ。
	New []model.Entry
	// NewMarker は今回のフェッチ全体（新着か否かを問わない）から計算した
	// マーカー候補。現在のマーカーより後退することはない。
	NewMarker model.Marker
	// Baseline は初回ポーリング（マーカー未設定）だったかを示す。
	// この場合Newは常に空になる（登録時に過去記事を一斉通知しないための仕様）。
	Baseline bool
}

// feedSeen はフィードごとの既知記事IDの集合。
// 公開日時を持たない記事のフォールバック判定にのみ使用する。
type feedSeen struct {
	ids   map[string]bool
	order []string // 挿入順。上限超過時の削除用
}

// Detector はマーカーと既知IDキャッシュに基づいて新着記事を判定する。
// 判定自体は純粋なメモリ内計算であり、ブロッキング操作を含まない。
// キャッシュはプロセス内のみで保持され、永続化されない。
type Detector struct {
	mu   sync.Mutex
	seen map[string]*feedSeen
}

// NewDetector はDetectorの新しいインスタンスを生成する。
func NewDetector() *Detector {
	return &Detector{seen: make(map[string]*feedSeen)}
}

// Detect はマーカーとフェッチ結果から新着記事とマーカー候補を計算する。
//
// 判定規則:
//   - 公開日時を持つ記事はマーカーの日時と比較し、厳密に新しいものを新着とする。
//   - 公開日時を持たない記事（またはマーカーが日時を持たない場合）は
//     既知IDキャッシュとの差分で判定する。キャッシュ未初期化
//     （プロセス起動後の初回）の場合は新着とせず、キャッシュを初期化する。
//   - マーカーがゼロ値の場合はベースライン確立: 新着ゼロ件でマーカー候補のみ返す。
//   - フェッチ結果がゼロ件の場合は何もしない（マーカー不変、エラーでもない）。
//
// 新着記事の通知可否にかかわらず、マーカー候補はフェッチ全体の最大公開日時
// から計算する。フィードが一時的に順序の乱れたコンテンツを返しても
// マーカーが後退しないための措置。
func (d *Detector) Detect(feedID string, marker model.Marker, entries []model.Entry) DetectResult {
	if len(entries) == 0 {
		return DetectResult{NewMarker: marker}
	}

	candidate := candidateMarker(marker, entries)

	d.mu.Lock()
	cache, seeded := d.seen[feedID]
	d.mu.Unlock()

	if marker.IsZero() {
		// ベースライン確立。過去記事の一斉通知を避けるため新着ゼロ件とする
		d.seedCache(feedID, entries)
		return DetectResult{NewMarker: candidate, Baseline: true}
	}

	var dated, dateless []model.Entry
	for _, e := range entries {
		if e.PublishedAt != nil && marker.LastPublishedAt != nil {
			if marker.Newer(*e.PublishedAt) {
				dated = append(dated, e)
			}
			continue
		}

		// 日付なし記事（または日付なしマーカー）はIDキャッシュで判定する
		if !seeded {
			continue // キャッシュ未初期化の間は判定不能。下で初期化する
		}
		if !cache.ids[e.ID] {
			dateless = append(dateless, e)
		}
	}

	if !seeded {
		d.seedCache(feedID, entries)
	}

	// 通知は購読者の時系列順を保つため古い順。日付なし記事はドキュメント順で後置
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].PublishedAt.Before(*dated[j].PublishedAt)
	})

	return DetectResult{
		New:       append(dated, dateless...),
		NewMarker: candidate,
	}
}

// MarkSeen は記事IDを既知IDキャッシュに追加する。
// 日付なし記事の通知成功後にスケジューラから呼ばれる。
// 通知に失敗した記事は追加されず、次サイクルで再び新着と判定される。
func (d *Detector) MarkSeen(feedID string, ids ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cache := d.seen[feedID]
	if cache == nil {
		cache = &feedSeen{ids: make(map[string]bool)}
		d.seen[feedID] = cache
	}

	for _, id := range ids {
		if cache.ids[id] {
			continue
		}
		cache.ids[id] = true
		cache.order = append(cache.order, id)
	}

	// 上限超過時は古いものから削除する
	for len(cache.order) > seenCacheCap {
		delete(cache.ids, cache.order[0])
		cache.order = cache.order[1:]
	}
}

// Forget はフィードのキャッシュを破棄する。フィード削除時に呼ばれる。
func (d *Detector) Forget(feedID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, feedID)
}

// seedCache はフェッチ結果の全記事IDでキャッシュを初期化する。
func (d *Detector) seedCache(feedID string, entries []model.Entry) {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	d.MarkSeen(feedID, ids...)
}

// candidateMarker はフェッチ全体からマーカー候補を計算する。
// 最大公開日時が現在のマーカーより古い場合は現在のマーカーを維持する（単調性）。
func candidateMarker(marker model.Marker, entries []model.Entry) model.Marker {
	candidate := marker

	for _, e := range entries {
		if e.PublishedAt == nil {
			continue
		}
		if candidate.LastPublishedAt == nil || e.PublishedAt.After(*candidate.LastPublishedAt) {
			t := *e.PublishedAt
			candidate.LastPublishedAt = &t
			candidate.LastEntryID = e.ID
		}
	}

	// 全記事が日付なしの場合はドキュメント順の先頭を識別子として記録する
	if candidate.LastPublishedAt == nil && candidate.LastEntryID == "" {
		candidate.LastEntryID = entries[0].ID
	}

	return candidate
}
