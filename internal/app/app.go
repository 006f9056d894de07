package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/murmur/internal/auth"
	"github.com/hitoshi/murmur/internal/config"
	"github.com/hitoshi/murmur/internal/database"
	"github.com/hitoshi/murmur/internal/handler"
	"github.com/hitoshi/murmur/internal/hub"
	"github.com/hitoshi/murmur/internal/logger"
	"github.com/hitoshi/murmur/internal/message"
	"github.com/hitoshi/murmur/internal/metrics"
	"github.com/hitoshi/murmur/internal/middleware"
	"github.com/hitoshi/murmur/internal/profile"
	"github.com/hitoshi/murmur/internal/repository"
	"github.com/hitoshi/murmur/internal/room"
	"github.com/hitoshi/murmur/internal/security"
	"github.com/hitoshi/murmur/internal/worker/cleanup"
	"golang.org/x/time/rate"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ライブ配信ハブがプロセス内に状態を持つため、セッションクリーンアップも
// 別プロセスにせず同一プロセスのバックグラウンドで実行する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db, cfg.SessionIdleTimeout)
	roomRepo := repository.NewPostgresRoomRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	messageRepo := repository.NewPostgresMessageRepo(db)

	// 4. ドメインサービスの初期化
	providerConfigs := map[string]auth.ProviderConfig{
		"google": {
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
		},
	}
	// GitHubログインは資格情報が設定されている場合のみ登録する
	if cfg.GitHubClientID != "" {
		providerConfigs["github"] = auth.ProviderConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
		}
	}
	providerRegistry := auth.NewRegistry(cfg.BaseURL, providerConfigs)
	broker := auth.NewHTTPBroker(
		&http.Client{Timeout: 10 * time.Second},
		cfg.BrokerURL, cfg.BrokerAPIKey,
	)
	authService := auth.NewService(
		providerRegistry, broker, sessionRepo,
		auth.ServiceConfig{IdleTimeout: cfg.SessionIdleTimeout},
	)

	sanitizer := security.NewTextSanitizer()
	profileService := profile.NewService(profileRepo, profile.NewWordAliasGenerator(), sanitizer)
	roomService := room.NewService(roomRepo, profileRepo, profileService)

	eventHub := hub.New(cfg.HubBufferSize, collector)
	messageService := message.NewService(messageRepo, roomService, profileService, eventHub, collector)

	// 5. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.MessageRate = rate.Limit(float64(cfg.RateLimitMessage) / 60.0)
	rateLimiterCfg.MessageBurst = cfg.RateLimitMessage
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		HealthChecker: db,

		SessionStore:  sessionRepo,
		SessionIssuer: authService,
		SessionConfig: middleware.SessionConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
			CookieMaxAge: int(cfg.SessionIdleTimeout.Seconds()),
		},
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		HTTPStatusRecorder: collector,
		HandshakeMetrics:   collector,
		StreamMetrics:      collector,
		MetricsHandler:     metrics.Handler(registry),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:      cfg.BaseURL,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		RoomService:    roomService,
		MessageService: messageService,
		ProfileService: profileService,

		Hub: eventHub,
	}

	router := handler.NewRouter(deps)

	// 6. 期限切れセッションのクリーンアップをバックグラウンドで起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	go cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeoutはWebSocketの長寿命接続を切断してしまうため設定しない
		IdleTimeout: 60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
