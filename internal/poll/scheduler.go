package poll

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hitoshi/rssnotify/internal/model"
	"github.com/hitoshi/rssnotify/internal/repository"
)

// errNoProfile はSMTPプロファイル未登録時の強制送信失敗を表す。
var errNoProfile = errors.New("SMTPプロファイルが未登録")

// FeedRegistry はスケジューラが必要とするフィード永続化操作。
type FeedRegistry interface {
	List(ctx context.Context) ([]*model.Feed, error)
	FindByID(ctx context.Context, id string) (*model.Feed, error)
	UpdateMarker(ctx context.Context, id string, marker model.Marker) error
}

// ProfileSource はアクティブなSMTPプロファイルの取得操作。
type ProfileSource interface {
	GetActiveProfile(ctx context.Context) (*model.SmtpProfile, error)
}

// EntryFetcher はフィードのフェッチとパース操作。
type EntryFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]model.Entry, error)
}

// EntryNotifier は記事1件の通知メール送信操作。
type EntryNotifier interface {
	Send(ctx context.Context, profile *model.SmtpProfile, feed *model.Feed, entry model.Entry) error
}

// MetricsRecorder はポーリング結果のメトリクス記録操作。
type MetricsRecorder interface {
	ObservePoll(outcome model.PollOutcome)
	IncFetchError(kind string)
	IncNotifyError(kind string)
	SetCycleTimestamp(t time.Time)
}

// SchedulerConfig はスケジューラの動作パラメータ。
type SchedulerConfig struct {
	// Interval はポーリングサイクルの間隔。
	Interval time.Duration
	// MaxConcurrent は同時にポーリングするフィード数の上限。
	MaxConcurrent int
	// MaxRetries は記事1件の通知の最大試行回数（初回を含む）。
	MaxRetries int
	// NotifyTimeout は通知1回あたりのタイムアウト。
	NotifyTimeout time.Duration
}

// Scheduler は固定間隔でフィードのポーリングサイクルを駆動する。
//
// 並行性モデル:
//   - サイクルは固定間隔で起動し、前サイクルの完了を待たない。
//   - 同一フィードの処理はサイクルをまたいで常に直列化される
//     （実行中のフィードは後続サイクルでスキップされる）。
//   - 同時実行フィード数はMaxConcurrentで制限される。
//   - フィード処理の途中でプロセス停止要求が来ても、そのフィードの
//     通知とマーカー更新は中断しない（重複通知を避けるため完走させる）。
type Scheduler struct {
	feeds    FeedRegistry
	settings ProfileSource
	fetcher  EntryFetcher
	detector *Detector
	notifier EntryNotifier
	metrics  MetricsRecorder
	logger   *slog.Logger
	cfg      SchedulerConfig

	sem chan struct{}

	mu       sync.Mutex
	inflight map[string]bool
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(
	feeds FeedRegistry,
	settings ProfileSource,
	fetcher EntryFetcher,
	detector *Detector,
	notifier EntryNotifier,
	metrics MetricsRecorder,
	logger *slog.Logger,
	cfg SchedulerConfig,
) *Scheduler {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}

	return &Scheduler{
		feeds:    feeds,
		settings: settings,
		fetcher:  fetcher,
		detector: detector,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		inflight: make(map[string]bool),
	}
}

// Start はポーリングループを開始し、ctxのキャンセルまでブロックする。
// 起動直後に1回サイクルを実行し、以後は固定間隔で繰り返す。
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("ポーリングスケジューラを起動",
		"interval", s.cfg.Interval.String(),
		"max_concurrent", s.cfg.MaxConcurrent,
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ポーリングスケジューラを停止")
			return
		case <-ticker.C:
			// サイクルの実行時間が間隔を超えても次サイクルの起動を遅らせない。
			// フィード単位の排他はpollFeed側で保証される
			go s.RunOnce(ctx)
		}
	}
}

// RunOnce は1サイクル分のポーリングを実行し、全フィードの完了まで待つ。
//
// SMTPプロファイルが未登録または不正の場合はフェッチを行わずに
// サイクル全体をスキップする（通知できない新着を検出してもマーカーを
// 進められず、次回の重複通知リスクだけが残るため）。
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.metrics.SetCycleTimestamp(time.Now())

	profile, err := s.settings.GetActiveProfile(ctx)
	if err != nil {
		s.logger.Error("SMTPプロファイルの取得に失敗", "error", err)
		return
	}
	if profile == nil {
		s.logger.Warn("SMTPプロファイル未登録のためサイクルをスキップ")
		return
	}
	if err := profile.Validate(); err != nil {
		s.logger.Warn("SMTPプロファイルが不正のためサイクルをスキップ", "error", err)
		return
	}

	feedList, err := s.feeds.List(ctx)
	if err != nil {
		s.logger.Error("フィード一覧の取得に失敗", "error", err)
		return
	}
	if len(feedList) == 0 {
		return
	}

	s.logger.Info("ポーリングサイクルを開始", "feeds", len(feedList))

	var wg sync.WaitGroup
	for _, feed := range feedList {
		if !s.tryAcquire(feed.ID) {
			outcome := model.PollOutcome{FeedID: feed.ID, Status: model.PollStatusSkipped}
			s.metrics.ObservePoll(outcome)
			s.logger.Info("前サイクル実行中のためスキップ", "feed_id", feed.ID)
			continue
		}

		wg.Add(1)
		go func(feed *model.Feed) {
			defer wg.Done()
			defer s.release(feed.ID)

			s.sem <- struct{}{}
			defer func() { <-s.sem }()

			// 停止要求後もこのフィードの通知とマーカー更新は完走させる
			outcome := s.pollFeed(context.WithoutCancel(ctx), profile, feed)
			s.metrics.ObservePoll(outcome)
		}(feed)
	}

	wg.Wait()
}

// PollOne は指定フィードを即時に1回ポーリングする。強制送信APIから呼ばれる。
// 対象フィードが実行中の場合はスキップ結果を返す。
func (s *Scheduler) PollOne(ctx context.Context, feedID string) model.PollOutcome {
	profile, err := s.settings.GetActiveProfile(ctx)
	if err != nil {
		return model.PollOutcome{FeedID: feedID, Status: model.PollStatusFailure, Err: err}
	}
	if profile == nil {
		return model.PollOutcome{
			FeedID: feedID,
			Status: model.PollStatusFailure,
			Err:    &NotifyError{Kind: NotifyErrConfig, Err: errNoProfile},
		}
	}

	feed, err := s.feeds.FindByID(ctx, feedID)
	if err != nil {
		return model.PollOutcome{FeedID: feedID, Status: model.PollStatusFailure, Err: err}
	}
	if feed == nil {
		return model.PollOutcome{FeedID: feedID, Status: model.PollStatusFailure, Err: repository.ErrNotFound}
	}

	if !s.tryAcquire(feedID) {
		return model.PollOutcome{FeedID: feedID, Status: model.PollStatusSkipped}
	}
	defer s.release(feedID)

	outcome := s.pollFeed(context.WithoutCancel(ctx), profile, feed)
	s.metrics.ObservePoll(outcome)
	return outcome
}

// pollFeed は1フィード分のフェッチ・新着判定・通知・マーカー更新を行う。
//
// マーカー更新の規則:
//   - 全新着の通知に成功: フェッチ全体から計算したマーカー候補をコミットする。
//   - 一部失敗: 通知に成功した最新記事までマーカーを進める。失敗記事より
//     新しい記事の通知に成功した場合、失敗記事はマーカーに追い越され
//     再試行されない（永続的に失敗する記事が後続の新着を止めないようにする）。
//   - フェッチ失敗: マーカーは変更しない。
func (s *Scheduler) pollFeed(ctx context.Context, profile *model.SmtpProfile, feed *model.Feed) model.PollOutcome {
	start := time.Now()
	log := s.logger.With("feed_id", feed.ID, "feed_url", feed.FeedURL)

	entries, err := s.fetcher.Fetch(ctx, feed.FeedURL)
	if err != nil {
		if fe, ok := err.(*FetchError); ok {
			s.metrics.IncFetchError(fe.Kind.String())
		}
		log.Error("フィードのフェッチに失敗", "error", err)
		return model.PollOutcome{
			FeedID:   feed.ID,
			Status:   model.PollStatusFailure,
			Err:      err,
			Duration: time.Since(start),
		}
	}

	result := s.detector.Detect(feed.ID, feed.Marker, entries)

	if result.Baseline {
		log.Info("ベースラインを確立", "entries", len(entries))
		return s.commitMarker(ctx, feed, result.NewMarker, model.PollOutcome{
			FeedID:   feed.ID,
			Status:   model.PollStatusSuccess,
			Duration: time.Since(start),
		})
	}

	if len(result.New) == 0 {
		return s.commitMarker(ctx, feed, result.NewMarker, model.PollOutcome{
			FeedID:   feed.ID,
			Status:   model.PollStatusSuccess,
			Duration: time.Since(start),
		})
	}

	log.Info("新着記事を検出", "count", len(result.New))

	// 古い順に通知する。記事単位の失敗では打ち切らず後続の記事を試行し、
	// 成功済みの最新記事までマーカーを進める。認証失敗・プロファイル不正は
	// 後続も必ず失敗するためサイクルを打ち切る
	commit := feed.Marker
	sent := 0
	var notifyErr error

	for _, entry := range result.New {
		if err := s.notifyWithRetry(ctx, profile, feed, entry); err != nil {
			if notifyErr == nil {
				notifyErr = err
			}
			if ne, ok := err.(*NotifyError); ok {
				s.metrics.IncNotifyError(ne.Kind.String())
				if ne.Terminal() {
					log.Error("恒久的な通知失敗のためサイクルを打ち切り",
						"entry_id", entry.ID, "error", err)
					break
				}
			}
			log.Error("通知に失敗", "entry_id", entry.ID, "error", err)
			continue
		}

		sent++
		log.Info("通知を送信", "entry_id", entry.ID, "title", entry.Title)

		if entry.PublishedAt != nil {
			if commit.LastPublishedAt == nil || entry.PublishedAt.After(*commit.LastPublishedAt) {
				t := *entry.PublishedAt
				commit.LastPublishedAt = &t
				commit.LastEntryID = entry.ID
			}
		} else {
			// 日付なし記事は既知IDキャッシュへの登録が「通知済み」の記録になる
			s.detector.MarkSeen(feed.ID, entry.ID)
		}
	}

	status := model.PollStatusSuccess
	if notifyErr == nil {
		// 全件成功。フェッチ全体から計算した候補までマーカーを進める
		commit = result.NewMarker
	} else {
		status = model.PollStatusFailure
	}

	return s.commitMarker(ctx, feed, commit, model.PollOutcome{
		FeedID:     feed.ID,
		Status:     status,
		NewEntries: len(result.New),
		Sent:       sent,
		Err:        notifyErr,
		Duration:   time.Since(start),
	})
}

// notifyWithRetry は記事1件の通知を指数バックオフ付きでリトライする。
// リトライ対象は一時的エラーのみで、認証拒否・宛先拒否・プロファイル不正は
// 即座に失敗を返す。
func (s *Scheduler) notifyWithRetry(ctx context.Context, profile *model.SmtpProfile, feed *model.Feed, entry model.Entry) error {
	operation := func() error {
		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
		defer cancel()

		err := s.notifier.Send(sendCtx, profile, feed, entry)
		if err == nil {
			return nil
		}
		if ne, ok := err.(*NotifyError); ok && !ne.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.cfg.MaxRetries-1)),
		ctx,
	)
	return backoff.Retry(operation, b)
}

// commitMarker はマーカーが変化した場合のみ永続化する。
// ポーリング中にフィードが削除されていた場合は結果を破棄してキャッシュも捨てる。
func (s *Scheduler) commitMarker(ctx context.Context, feed *model.Feed, marker model.Marker, outcome model.PollOutcome) model.PollOutcome {
	if markerEqual(feed.Marker, marker) {
		return outcome
	}

	if err := s.feeds.UpdateMarker(ctx, feed.ID, marker); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("ポーリング中にフィードが削除された", "feed_id", feed.ID)
			s.detector.Forget(feed.ID)
			return outcome
		}
		s.logger.Error("マーカーの更新に失敗", "feed_id", feed.ID, "error", err)
		outcome.Status = model.PollStatusFailure
		if outcome.Err == nil {
			outcome.Err = err
		}
		return outcome
	}

	return outcome
}

// tryAcquire はフィードの実行権を取得する。既に実行中の場合はfalseを返す。
func (s *Scheduler) tryAcquire(feedID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[feedID] {
		return false
	}
	s.inflight[feedID] = true
	return true
}

// release はフィードの実行権を解放する。
func (s *Scheduler) release(feedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, feedID)
}

// markerEqual は2つのマーカーの等価性を判定する。
func markerEqual(a, b model.Marker) bool {
	if a.LastEntryID != b.LastEntryID {
		return false
	}
	if (a.LastPublishedAt == nil) != (b.LastPublishedAt == nil) {
		return false
	}
	if a.LastPublishedAt == nil {
		return true
	}
	return a.LastPublishedAt.Equal(*b.LastPublishedAt)
}
