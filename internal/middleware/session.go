// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/murmur/internal/model"
)

const sessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionStore はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionStore interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// SessionIssuer は匿名セッションの発行に必要なインターフェース。
// auth.Serviceが実装する。
type SessionIssuer interface {
	NewAnonymousSession(ctx context.Context) (*model.Session, error)
}

// SessionConfig はセッションCookieの設定。
type SessionConfig struct {
	CookieDomain string
	CookieSecure bool
	CookieMaxAge int // 秒
}

// NewSessionMiddleware は全リクエストにセッションを保証するミドルウェアを返す。
// Cookieのセッションが有効ならそれを読み込み、無い場合や期限切れの場合は
// 匿名セッションを新規発行してCookieを差し替える。
// 読み込んだセッションをリクエストコンテキストに注入する。
func NewSessionMiddleware(store SessionStore, issuer SessionIssuer, config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var session *model.Session

			// 1. Cookieの既存セッションを読み込む（取得時に有効期限が延長される）
			if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
				session, err = store.FindByID(r.Context(), cookie.Value)
				if err != nil {
					slog.Error("failed to find session",
						slog.String("error", err.Error()),
					)
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
			}

			// 2. 無効な場合は匿名セッションを新規発行する
			if session == nil {
				newSession, err := issuer.NewAnonymousSession(r.Context())
				if err != nil {
					slog.Error("failed to issue session",
						slog.String("error", err.Error()),
					)
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				session = newSession

				http.SetCookie(w, &http.Cookie{
					Name:     sessionCookieName,
					Value:    session.ID,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   config.CookieMaxAge,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			// 3. セッションをコンテキストに注入
			ctx := context.WithValue(r.Context(), sessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRequireAuthMiddleware はログイン済みセッションを必須とするミドルウェアを返す。
// 未ログインのリクエストには401 Unauthorizedを返す。
// NewSessionMiddlewareの後に配置すること。
func NewRequireAuthMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := SessionFromContext(r.Context())
			if err != nil || !session.IsAuthenticated() {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionFromContext(ctx context.Context) (*model.Session, error) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	if !ok || session == nil {
		return nil, fmt.Errorf("session not found in context")
	}
	return session, nil
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	session, err := SessionFromContext(ctx)
	if err != nil {
		return "", err
	}
	if !session.IsAuthenticated() {
		return "", fmt.Errorf("user ID not found in context")
	}
	return session.Data.UserID, nil
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
