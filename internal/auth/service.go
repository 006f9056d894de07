// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/murmur/internal/model"
	"github.com/hitoshi/murmur/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	IdleTimeout time.Duration // セッションのアイドルタイムアウト
}

// Service は認証に関するビジネスロジックを提供する。
// 認可コード+PKCEフローの開始・完了と、セッションのライフサイクルを管理する。
type Service struct {
	registry    *Registry
	broker      IdentityBroker
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	registry *Registry,
	broker IdentityBroker,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		registry:    registry,
		broker:      broker,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// NewAnonymousSession は匿名セッションを作成し永続化する。
// 全てのリクエストはログイン前でもセッションを持つ。
func (s *Service) NewAnonymousSession(ctx context.Context) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		ExpiresAt: time.Now().Add(s.config.IdleTimeout),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// Initiate は認証フローを開始し、IdPの認可エンドポイントへのリダイレクトURLを返す。
// CSRF対策のstateとPKCEのverifierを生成してセッションに保存する。
// 既に進行中のフローがある場合は新しいフローで上書きする。
func (s *Service) Initiate(ctx context.Context, session *model.Session, providerID, returnURL string) (string, error) {
	provider, err := s.registry.Lookup(providerID)
	if err != nil {
		return "", err
	}

	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	session.Data.Pending = &model.PendingAuth{
		Provider:     providerID,
		CSRFState:    state,
		PKCEVerifier: verifier,
		ReturnURL:    sanitizeReturnURL(returnURL),
	}
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return "", fmt.Errorf("failed to save pending auth: %w", err)
	}

	return provider.OAuth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// Complete はOAuthコールバックを検証し、ログインを完了する。
// 検証順序: プロバイダー → state/codeの存在 → 進行中フローの有無 → CSRF照合。
// 全て通過した場合のみコード交換とBroker照会を行い、セッションにユーザーIDを書き込む。
// 失敗した場合、セッションのユーザーIDが書き換わることはない。
// 戻り値はログイン開始時に指定されたリダイレクト先。
func (s *Service) Complete(ctx context.Context, session *model.Session, providerID, state, code string) (string, error) {
	provider, err := s.registry.Lookup(providerID)
	if err != nil {
		return "", err
	}

	if state == "" {
		return "", model.NewMissingStateError()
	}
	if code == "" {
		return "", model.NewMissingCodeError()
	}

	pending := session.Data.Pending
	if pending == nil || pending.Provider != providerID {
		return "", model.NewNoPendingHandshakeError()
	}

	if subtle.ConstantTimeCompare([]byte(state), []byte(pending.CSRFState)) != 1 {
		slog.Warn("oauth state mismatch",
			slog.String("provider", providerID),
			slog.String("session_id", session.ID),
		)
		return "", model.NewCSRFMismatchError()
	}

	token, err := provider.OAuth.Exchange(ctx, code, oauth2.VerifierOption(pending.PKCEVerifier))
	if err != nil {
		slog.Error("oauth code exchange failed",
			slog.String("provider", providerID),
			slog.String("error", err.Error()),
		)
		return "", model.NewUpstreamError("認可コードの交換に失敗しました")
	}

	identity, err := s.broker.SignIn(ctx, provider.BrokerID, token.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to resolve identity: %w", err)
	}

	// ログイン完了: 進行中フローの情報ごとセッションデータを置き換える
	session.Data = model.SessionData{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
	}
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return "", fmt.Errorf("failed to save authenticated session: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", identity.UserID),
		slog.String("provider", providerID),
	)

	returnURL := pending.ReturnURL
	if returnURL == "" {
		returnURL = "/"
	}
	return returnURL, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// sanitizeReturnURL はオープンリダイレクト防止のため、
// ローカルの絶対パスのみを許可する。それ以外は"/"に置き換える。
func sanitizeReturnURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return "/"
	}
	return raw
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
