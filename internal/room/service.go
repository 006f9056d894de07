// Package room はルームの作成とアクセス制御を提供する。
package room

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/murmur/internal/model"
	"github.com/hitoshi/murmur/internal/repository"
)

// maxRoomNameLength はルーム名の最大文字数。
const maxRoomNameLength = 64

// ProfileProvider はプロフィールの取得・作成に必要なインターフェース。
// profile.Serviceの部分集合として定義する。
type ProfileProvider interface {
	GetOrCreate(ctx context.Context, userID, roomID, displayName string) (*model.Profile, error)
}

// Service はルームに関するビジネスロジックを提供する。
//
// アクセス制御の方針:
//   - 公開ルームは誰でも閲覧でき、認証済みユーザーは書き込みでプロフィールが自動作成される
//   - 非公開ルームは既存プロフィールを持つメンバーのみ閲覧・書き込みできる
//   - ルームが存在しない場合とアクセス権が無い場合は同一のエラーを返し、
//     ルームの存在有無を外部に漏らさない
type Service struct {
	roomRepo    repository.RoomRepository
	profileRepo repository.ProfileRepository
	profiles    ProfileProvider
}

// NewService はServiceを生成する。
func NewService(
	roomRepo repository.RoomRepository,
	profileRepo repository.ProfileRepository,
	profiles ProfileProvider,
) *Service {
	return &Service{
		roomRepo:    roomRepo,
		profileRepo: profileRepo,
		profiles:    profiles,
	}
}

// Create はルームを作成し、作成者のプロフィールを同時に作成する。
func (s *Service) Create(ctx context.Context, userID, displayName, name string, isPublic bool) (*model.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewInvalidRoomNameError("ルーム名が空です")
	}
	if utf8.RuneCountInString(name) > maxRoomNameLength {
		return nil, model.NewInvalidRoomNameError("ルーム名が長すぎます")
	}

	// UUIDv7で採番し、ID順が作成順と一致するようにする
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate room ID: %w", err)
	}

	room := &model.Room{
		ID:        id.String(),
		Name:      name,
		IsPublic:  isPublic,
		CreatedAt: time.Now(),
	}

	if err := s.roomRepo.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	// プロフィール作成に失敗した場合、作成者のいないルーム行が残るが許容する。
	// 公開ルームは以降の投稿で利用でき、非公開ルームはどの一覧にも現れない。
	if _, err := s.profiles.GetOrCreate(ctx, userID, room.ID, displayName); err != nil {
		return nil, fmt.Errorf("failed to create creator profile: %w", err)
	}

	slog.Info("room created",
		slog.String("room_id", room.ID),
		slog.Bool("is_public", isPublic),
	)

	return room, nil
}

// CanRead は閲覧可否を判定し、許可される場合はルームを返す。
// 公開ルームは未認証でも閲覧できる。userIDは未認証の場合空文字列を渡す。
func (s *Service) CanRead(ctx context.Context, roomID, userID string) (*model.Room, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	if room == nil {
		return nil, model.NewRoomUnavailableError()
	}

	if room.IsPublic {
		return room, nil
	}

	if userID == "" {
		return nil, model.NewRoomUnavailableError()
	}
	member, err := s.profileRepo.FindByUserAndRoom(ctx, userID, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to find member profile: %w", err)
	}
	if member == nil {
		return nil, model.NewRoomUnavailableError()
	}

	return room, nil
}

// CanWrite は書き込み可否を判定し、許可される場合はルームと判定結果を返す。
// 公開ルームにプロフィールを持たないユーザーはWriteAsNewProfileとなり、
// 投稿時にプロフィールの自動作成を伴う。
func (s *Service) CanWrite(ctx context.Context, roomID, userID string) (*model.Room, model.WriteDecision, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, model.WriteDenied, fmt.Errorf("failed to find room: %w", err)
	}
	if room == nil {
		return nil, model.WriteDenied, model.NewRoomUnavailableError()
	}

	member, err := s.profileRepo.FindByUserAndRoom(ctx, userID, roomID)
	if err != nil {
		return nil, model.WriteDenied, fmt.Errorf("failed to find member profile: %w", err)
	}
	if member != nil {
		return room, model.WriteAsExisting, nil
	}
	if room.IsPublic {
		return room, model.WriteAsNewProfile, nil
	}

	return nil, model.WriteDenied, model.NewRoomUnavailableError()
}

// ListForUser はユーザーがプロフィールを持つルームの一覧を返す。
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*model.Room, error) {
	rooms, err := s.roomRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// Admit は既存メンバーが別のユーザーをルームに追加する。
// 追加されるユーザーのプロフィールは自動作成される（別名は自動生成）。
// 操作者がメンバーでない場合はルームの存在有無を漏らさないエラーを返す。
func (s *Service) Admit(ctx context.Context, roomID, actorUserID, targetUserID string) (*model.Profile, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	if room == nil {
		return nil, model.NewRoomUnavailableError()
	}

	actor, err := s.profileRepo.FindByUserAndRoom(ctx, actorUserID, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to find actor profile: %w", err)
	}
	if actor == nil {
		return nil, model.NewRoomUnavailableError()
	}

	admitted, err := s.profiles.GetOrCreate(ctx, targetUserID, roomID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to admit user: %w", err)
	}

	slog.Info("user admitted to room",
		slog.String("room_id", roomID),
		slog.String("profile_id", admitted.ID),
	)

	return admitted, nil
}
