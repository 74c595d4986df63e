// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/rssnotify/internal/model"
	"github.com/hitoshi/rssnotify/internal/repository"
	"github.com/hitoshi/rssnotify/internal/security"
)

// FeedStore はフィードハンドラーが必要とする永続化インターフェース。
type FeedStore interface {
	List(ctx context.Context) ([]*model.Feed, error)
	FindByID(ctx context.Context, id string) (*model.Feed, error)
	Create(ctx context.Context, feed *model.Feed) error
	Update(ctx context.Context, feed *model.Feed) error
	Delete(ctx context.Context, id string) error
}

// URLValidator はフィードURLの事前検証インターフェース。
// SSRF防止のため、登録・更新時にURLを検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// ForceSender は強制送信のためのインターフェース。
// スケジューラを直接参照せず、最小限のインターフェースとして定義する。
type ForceSender interface {
	// PollOne は指定フィードを即時に1回ポーリングする。
	PollOne(ctx context.Context, feedID string) model.PollOutcome
}

// CacheForgetter はフィード削除時にポーリング側の状態を破棄するインターフェース。
type CacheForgetter interface {
	Forget(feedID string)
}

// FeedHandler はフィード管理のHTTPハンドラー。
type FeedHandler struct {
	store     FeedStore
	validator URLValidator
	sender    ForceSender
	forgetter CacheForgetter
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(store FeedStore, validator URLValidator, sender ForceSender, forgetter CacheForgetter) *FeedHandler {
	return &FeedHandler{
		store:     store,
		validator: validator,
		sender:    sender,
		forgetter: forgetter,
	}
}

// feedRequest はフィード登録・更新リクエストのボディ。
type feedRequest struct {
	Name    string `json:"name"`
	FeedURL string `json:"feed_url"`
}

// feedResponse はフィード情報のAPIレスポンス。
type feedResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	FeedURL         string  `json:"feed_url"`
	LastPublishedAt *string `json:"last_published_at"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// forceSendResponse は強制送信のAPIレスポンス。
type forceSendResponse struct {
	Status     string `json:"status"`
	NewEntries int    `json:"new_entries"`
	Sent       int    `json:"sent"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ListFeeds は登録済みフィードの一覧を返す。
// GET /api/feeds
func (h *FeedHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.store.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]feedResponse, 0, len(feeds))
	for _, feed := range feeds {
		resp = append(resp, toFeedResponse(feed))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// CreateFeed はフィードを登録する。
// POST /api/feeds
func (h *FeedHandler) CreateFeed(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	if req.Name == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "フィード名が空です。",
			Category: "validation",
			Action:   "フィード名を入力してください。",
		})
		return
	}
	if err := h.validateFeedURL(w, req.FeedURL); err != nil {
		return
	}

	now := time.Now().UTC()
	feed := &model.Feed{
		ID:        uuid.New().String(),
		Name:      req.Name,
		FeedURL:   req.FeedURL,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.Create(r.Context(), feed); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toFeedResponse(feed))
}

// GetFeed はフィード詳細を取得する。
// GET /api/feeds/:id
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "id")

	feed, err := h.store.FindByID(r.Context(), feedID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if feed == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewFeedNotFoundError(feedID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toFeedResponse(feed))
}

// UpdateFeed はフィードの名前とURLを更新する。マーカーには触れない。
// PATCH /api/feeds/:id
func (h *FeedHandler) UpdateFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "id")

	var req feedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	feed, err := h.store.FindByID(r.Context(), feedID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if feed == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewFeedNotFoundError(feedID))
		return
	}

	if req.Name != "" {
		feed.Name = req.Name
	}
	if req.FeedURL != "" && req.FeedURL != feed.FeedURL {
		if err := h.validateFeedURL(w, req.FeedURL); err != nil {
			return
		}
		feed.FeedURL = req.FeedURL
	}

	if err := h.store.Update(r.Context(), feed); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toFeedResponse(feed))
}

// DeleteFeed はフィードを削除する。
// DELETE /api/feeds/:id
func (h *FeedHandler) DeleteFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "id")

	if err := h.store.Delete(r.Context(), feedID); err != nil {
		handleServiceError(w, err)
		return
	}

	// ポーリング側の既知IDキャッシュも破棄する
	h.forgetter.Forget(feedID)

	w.WriteHeader(http.StatusNoContent)
}

// ForceSend は指定フィードを即時にポーリングして通知する。
// 通常サイクルと同じ新着判定を通るため、通知済みの記事が再送されることはない。
// POST /api/feeds/:id/forcesend
func (h *FeedHandler) ForceSend(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "id")

	outcome := h.sender.PollOne(r.Context(), feedID)

	if outcome.Status == model.PollStatusFailure {
		if errors.Is(outcome.Err, repository.ErrNotFound) {
			writeAPIErrorResponse(w, http.StatusNotFound, model.NewFeedNotFoundError(feedID))
			return
		}
		slog.Error("強制送信に失敗", "feed_id", feedID, "error", outcome.Err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(forceSendResponse{
		Status:     string(outcome.Status),
		NewEntries: outcome.NewEntries,
		Sent:       outcome.Sent,
	})
}

// validateFeedURL はフィードURLを検証し、不正な場合はエラーレスポンスを書き込む。
func (h *FeedHandler) validateFeedURL(w http.ResponseWriter, rawURL string) error {
	if rawURL == "" {
		err := model.NewInvalidURLError("URLが空です")
		writeAPIErrorResponse(w, http.StatusBadRequest, err)
		return err
	}
	if err := h.validator.ValidateURL(rawURL); err != nil {
		var apiErr *model.APIError
		switch {
		case errors.Is(err, security.ErrBlocked):
			writeAPIErrorResponse(w, http.StatusForbidden, model.NewSSRFBlockedError())
		case errors.As(err, &apiErr):
			writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		default:
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError(err.Error()))
		}
		return err
	}
	return nil
}

// --- ヘルパー関数 ---

// toFeedResponse はmodel.FeedからAPIレスポンスに変換する。
func toFeedResponse(feed *model.Feed) feedResponse {
	var lastPublishedAt *string
	if feed.Marker.LastPublishedAt != nil {
		s := feed.Marker.LastPublishedAt.UTC().Format(time.RFC3339)
		lastPublishedAt = &s
	}

	return feedResponse{
		ID:              feed.ID,
		Name:            feed.Name,
		FeedURL:         feed.FeedURL,
		LastPublishedAt: lastPublishedAt,
		CreatedAt:       feed.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       feed.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はリポジトリやサービスから返されたエラーをHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidURL, model.ErrCodeInvalidRequest, model.ErrCodeInvalidSmtp:
		return http.StatusBadRequest
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeFeedNotFound:
		return http.StatusNotFound
	case model.ErrCodeSmtpNotConfigured:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
