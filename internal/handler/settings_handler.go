package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/rssnotify/internal/model"
)

// SettingsStore は設定ハンドラーが必要とする永続化インターフェース。
type SettingsStore interface {
	GetActiveProfile(ctx context.Context) (*model.SmtpProfile, error)
	Upsert(ctx context.Context, profile *model.SmtpProfile) error
}

// SettingsHandler はSMTP設定管理のHTTPハンドラー。
type SettingsHandler struct {
	store SettingsStore
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(store SettingsStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// smtpSettingsRequest はSMTP設定登録リクエストのボディ。
type smtpSettingsRequest struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FromEmail string `json:"from_email"`
	ToEmail   string `json:"to_email"`
	StartTLS  bool   `json:"starttls"`
}

// smtpSettingsResponse はSMTP設定のAPIレスポンス。
// パスワードは常にマスクして返す。
type smtpSettingsResponse struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FromEmail string `json:"from_email"`
	ToEmail   string `json:"to_email"`
	StartTLS  bool   `json:"starttls"`
}

// maskedPassword はレスポンスに載せるパスワードの代替文字列。
const maskedPassword = "********"

// GetSettings はアクティブなSMTP設定を返す。
// GET /api/settings/smtp
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	profile, err := h.store.GetActiveProfile(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if profile == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewSmtpNotConfiguredError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSettingsResponse(profile))
}

// PutSettings はSMTP設定を登録または上書きする。
// PUT /api/settings/smtp
func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req smtpSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	profile := &model.SmtpProfile{
		Host:      req.Host,
		Port:      req.Port,
		Username:  req.Username,
		Password:  req.Password,
		FromEmail: req.FromEmail,
		ToEmail:   req.ToEmail,
		StartTLS:  req.StartTLS,
	}

	if err := profile.Validate(); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidSmtpError(err.Error()))
		return
	}

	if err := h.store.Upsert(r.Context(), profile); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSettingsResponse(profile))
}

// toSettingsResponse はSmtpProfileからAPIレスポンスに変換する。パスワードはマスクする。
func toSettingsResponse(profile *model.SmtpProfile) smtpSettingsResponse {
	password := ""
	if profile.Password != "" {
		password = maskedPassword
	}

	return smtpSettingsResponse{
		Host:      profile.Host,
		Port:      profile.Port,
		Username:  profile.Username,
		Password:  password,
		FromEmail: profile.FromEmail,
		ToEmail:   profile.ToEmail,
		StartTLS:  profile.StartTLS,
	}
}
