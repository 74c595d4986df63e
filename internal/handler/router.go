package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rssnotify/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter

	// フィード管理
	FeedStore    FeedStore
	URLValidator URLValidator
	ForceSender  ForceSender
	Forgetter    CacheForgetter

	// SMTP設定
	SettingsStore SettingsStore

	// Prometheusスクレイプ用ハンドラー
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → RateLimitMiddleware
//
// /healthz と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	feedHandler := NewFeedHandler(deps.FeedStore, deps.URLValidator, deps.ForceSender, deps.Forgetter)
	settingsHandler := NewSettingsHandler(deps.SettingsStore)

	// --- 運用ルート（レート制限なし） ---

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- APIルート ---

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())

		// フィード管理
		r.Route("/api/feeds", func(r chi.Router) {
			r.Get("/", feedHandler.ListFeeds)
			r.Post("/", feedHandler.CreateFeed)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", feedHandler.GetFeed)
				r.Patch("/", feedHandler.UpdateFeed)
				r.Delete("/", feedHandler.DeleteFeed)

				// POST /api/feeds/{id}/forcesend - 即時ポーリングと通知
				r.Post("/forcesend", feedHandler.ForceSend)
			})
		})

		// SMTP設定管理
		r.Route("/api/settings/smtp", func(r chi.Router) {
			r.Get("/", settingsHandler.GetSettings)
			r.Put("/", settingsHandler.PutSettings)
		})
	})

	return r
}
