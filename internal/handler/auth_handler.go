// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/murmur/internal/middleware"
	"github.com/hitoshi/murmur/internal/model"
)

const sessionCookieName = "session_id"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Initiate(ctx context.Context, session *model.Session, providerID, returnURL string) (string, error)
	Complete(ctx context.Context, session *model.Session, providerID, state, code string) (string, error)
	Logout(ctx context.Context, sessionID string) error
}

// HandshakeFailureRecorder は認証フロー失敗の記録に必要なインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type HandshakeFailureRecorder interface {
	RecordHandshakeFailure(providerID string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	metrics HandshakeFailureRecorder
}

// NewAuthHandler はAuthHandlerを生成する。metricsはnilでもよい。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, metrics HandshakeFailureRecorder) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
		metrics: metrics,
	}
}

// Login はOAuthフローを開始し、IdPの認可エンドポイントへリダイレクトする。
// GET /auth/{provider}/login?return_url=/rooms/xxx
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		slog.Error("session missing in login", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	providerID := chi.URLParam(r, "provider")
	returnURL := r.URL.Query().Get("return_url")

	authURL, err := h.service.Initiate(r.Context(), session, providerID, returnURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理し、ログイン開始時の画面へリダイレクトする。
// GET /auth/{provider}/callback?state=xxx&code=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		slog.Error("session missing in callback", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	providerID := chi.URLParam(r, "provider")
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")

	returnURL, err := h.service.Complete(r.Context(), session, providerID, state, code)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordHandshakeFailure(providerID)
		}
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, h.config.BaseURL+returnURL, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。
// GET|POST /auth/logout?return_url=/
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	// セッションCookieの取得
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		// セッションをDBから削除
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	// セッションCookieをクリア
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.config.BaseURL+localPath(r.URL.Query().Get("return_url")), http.StatusTemporaryRedirect)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil || !session.IsAuthenticated() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"user_id":      session.Data.UserID,
		"display_name": session.Data.DisplayName,
	})
}

// localPath はリダイレクト先をローカルの絶対パスに制限する。
func localPath(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return "/"
	}
	return raw
}
