// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/rssnotify/internal/model"
)

// Collector はポーリングエンジンのPrometheusメトリクスを収集する。
// poll.MetricsRecorderを実装する。
type Collector struct {
	pollTotal         *prometheus.CounterVec
	pollDuration      prometheus.Histogram
	newEntries        prometheus.Counter
	notificationsSent prometheus.Counter
	fetchErrors       *prometheus.CounterVec
	notifyErrors      *prometheus.CounterVec
	lastCycleStart    prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rssnotify_poll_total",
			Help: "フィードごとのポーリング結果の合計数（status: success/failure/skipped）",
		}, []string{"status"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rssnotify_poll_duration_seconds",
			Help:    "フィード1件のポーリング所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		newEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rssnotify_new_entries_total",
			Help: "新着と判定された記事の合計数",
		}),
		notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rssnotify_notifications_sent_total",
			Help: "送信に成功した通知メールの合計数",
		}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rssnotify_fetch_errors_total",
			Help: "フェッチ失敗の合計数（kind: network/http/parse）",
		}, []string{"kind"}),
		notifyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rssnotify_notify_errors_total",
			Help: "通知失敗の合計数（kind: transient/auth/recipient_rejected/config）",
		}, []string{"kind"}),
		lastCycleStart: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rssnotify_last_cycle_start_timestamp_seconds",
			Help: "最後にポーリングサイクルが開始されたUNIX時刻",
		}),
	}

	reg.MustRegister(
		c.pollTotal,
		c.pollDuration,
		c.newEntries,
		c.notificationsSent,
		c.fetchErrors,
		c.notifyErrors,
		c.lastCycleStart,
	)

	return c
}

// ObservePoll はフィード1件分のポーリング結果を記録する。
func (c *Collector) ObservePoll(outcome model.PollOutcome) {
	c.pollTotal.WithLabelValues(string(outcome.Status)).Inc()
	if outcome.Status != model.PollStatusSkipped {
		c.pollDuration.Observe(outcome.Duration.Seconds())
	}
	c.newEntries.Add(float64(outcome.NewEntries))
	c.notificationsSent.Add(float64(outcome.Sent))
}

// IncFetchError はフェッチ失敗を分類別に記録する。
func (c *Collector) IncFetchError(kind string) {
	c.fetchErrors.WithLabelValues(kind).Inc()
}

// IncNotifyError は通知失敗を分類別に記録する。
func (c *Collector) IncNotifyError(kind string) {
	c.notifyErrors.WithLabelValues(kind).Inc()
}

// SetCycleTimestamp はサイクル開始時刻を記録する。
func (c *Collector) SetCycleTimestamp(t time.Time) {
	c.lastCycleStart.Set(float64(t.Unix()))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
