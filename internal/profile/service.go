// Package profile はルームごとのプロフィールの取得・作成を提供する。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/murmur/internal/model"
	"github.com/hitoshi/murmur/internal/repository"
	"github.com/hitoshi/murmur/internal/security"
)

// Service はプロフィールに関するビジネスロジックを提供する。
type Service struct {
	profileRepo repository.ProfileRepository
	alias       AliasGenerator
	sanitizer   security.TextSanitizerService
}

// NewService はServiceを生成する。
func NewService(
	profileRepo repository.ProfileRepository,
	alias AliasGenerator,
	sanitizer security.TextSanitizerService,
) *Service {
	return &Service{
		profileRepo: profileRepo,
		alias:       alias,
		sanitizer:   sanitizer,
	}
}

// GetOrCreate はユーザーのルーム内プロフィールを取得し、存在しなければ作成する。
// 別名はIdPの表示名をサニタイズして使用し、空になる場合は自動生成する。
// 同時作成の競合（一意制約違反）が発生した場合は勝者の行を再取得して返す。
func (s *Service) GetOrCreate(ctx context.Context, userID, roomID, displayName string) (*model.Profile, error) {
	existing, err := s.profileRepo.FindByUserAndRoom(ctx, userID, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	alias := s.sanitizer.Sanitize(displayName)
	if alias == "" {
		alias = s.alias.Generate()
	}

	// UUIDv7で採番し、ID順が作成順と一致するようにする
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate profile ID: %w", err)
	}

	profile := &model.Profile{
		ID:        id.String(),
		UserID:    userID,
		RoomID:    roomID,
		Handle:    handleFor(id),
		Alias:     alias,
		CreatedAt: time.Now(),
	}

	if err := s.profileRepo.Create(ctx, profile); err != nil {
		if repository.IsUniqueViolation(err) {
			// 同一ユーザーの並行リクエストが先に作成した場合は勝者の行を返す
			winner, findErr := s.profileRepo.FindByUserAndRoom(ctx, userID, roomID)
			if findErr != nil {
				return nil, fmt.Errorf("failed to refetch profile after conflict: %w", findErr)
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	slog.Info("profile created",
		slog.String("profile_id", profile.ID),
		slog.String("room_id", roomID),
	)

	return profile, nil
}

// GetForViewer は指定IDのプロフィールを返す。
// 閲覧者が同じルームにプロフィールを持たない場合、存在有無を漏らさないため
// 見つからない場合と同一のエラーを返す。
func (s *Service) GetForViewer(ctx context.Context, profileID, viewerUserID string) (*model.Profile, error) {
	profile, err := s.profileRepo.FindByID(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError(profileID)
	}

	viewer, err := s.profileRepo.FindByUserAndRoom(ctx, viewerUserID, profile.RoomID)
	if err != nil {
		return nil, fmt.Errorf("failed to find viewer profile: %w", err)
	}
	if viewer == nil {
		return nil, model.NewProfileNotFoundError(profileID)
	}

	return profile, nil
}

// handleFor はプロフィールIDから機械的なハンドルを導出する。
// IDと1対1に対応するため、同一ルーム内で衝突しない。
func handleFor(id uuid.UUID) string {
	return "user" + strings.ReplaceAll(id.String(), "-", "")
}
