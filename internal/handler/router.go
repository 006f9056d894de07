package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/murmur/internal/hub"
	"github.com/hitoshi/murmur/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// インフラ依存
	HealthChecker HealthChecker

	// ミドルウェア依存
	SessionStore      middleware.SessionStore
	SessionIssuer     middleware.SessionIssuer
	SessionConfig     middleware.SessionConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// メトリクス（いずれもnil可）
	HTTPStatusRecorder middleware.HTTPStatusRecorder
	HandshakeMetrics   HandshakeFailureRecorder
	StreamMetrics      StreamMetrics
	MetricsHandler     http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ルーム・メッセージ・プロフィール
	RoomService    RoomServiceInterface
	MessageService MessageServiceInterface
	ProfileService ProfileServiceInterface

	// ライブ配信
	Hub *hub.Hub
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → Metrics → Session → (CSRF → RateLimit)
//
// /health と /metrics はセッション不要のためセッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.HTTPStatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPStatusRecorder))
	}

	// --- セッション不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.HealthChecker.PingContext(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.HandshakeMetrics)
	roomHandler := NewRoomHandler(deps.RoomService, deps.MessageService, deps.ProfileService)
	streamHandler := NewStreamHandler(deps.RoomService, deps.MessageService, deps.Hub, deps.StreamMetrics)

	sessionMw := middleware.NewSessionMiddleware(deps.SessionStore, deps.SessionIssuer, deps.SessionConfig)
	requireAuth := middleware.NewRequireAuthMiddleware()

	// --- 認証ルート（OAuthフロー） ---

	r.Group(func(r chi.Router) {
		r.Use(sessionMw)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/{provider}/login", authHandler.Login)
			r.Get("/{provider}/callback", authHandler.Callback)
			r.Get("/logout", authHandler.Logout)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})
	})

	// --- APIルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)

	r.Group(func(r chi.Router) {
		r.Use(sessionMw)
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		r.Route("/api/rooms", func(r chi.Router) {
			r.With(requireAuth).Post("/", roomHandler.CreateRoom)
			r.With(requireAuth).Get("/", roomHandler.ListRooms)

			r.Route("/{id}", func(r chi.Router) {
				// 公開ルームは未ログインでも閲覧・購読できる
				r.Get("/", roomHandler.GetRoom)
				r.Get("/ws", streamHandler.Stream)

				// POST /api/rooms/{id}/messages - メッセージ投稿（投稿専用レート制限を追加）
				r.With(requireAuth, deps.RateLimiter.MessagePostMiddleware()).Post("/messages", roomHandler.PostMessage)
				r.With(requireAuth).Post("/members", roomHandler.AdmitMember)
			})
		})

		r.With(requireAuth).Get("/api/profiles/{id}", roomHandler.GetProfile)
	})

	return r
}
