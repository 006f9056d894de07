// Package message はメッセージの投稿・一覧取得とライブ配信への受け渡しを提供する。
package message

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/murmur/internal/model"
	"github.com/hitoshi/murmur/internal/repository"
)

const (
	// MaxContentLength はメッセージ本文の最大文字数。
	MaxContentLength = 4000

	// previewLength は返信プレビューの最大文字数。
	previewLength = 20
)

// RoomGuard はルームアクセス判定に必要なインターフェース。
// room.Serviceの部分集合として定義する。
type RoomGuard interface {
	CanRead(ctx context.Context, roomID, userID string) (*model.Room, error)
	CanWrite(ctx context.Context, roomID, userID string) (*model.Room, model.WriteDecision, error)
}

// ProfileProvider はプロフィールの取得・作成に必要なインターフェース。
type ProfileProvider interface {
	GetOrCreate(ctx context.Context, userID, roomID, displayName string) (*model.Profile, error)
}

// Publisher はライブ配信のインターフェース。hub.Hubの部分集合。
type Publisher interface {
	Publish(roomID string, ev model.MessageView)
}

// AppendRecorder は投稿数の記録に必要なインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type AppendRecorder interface {
	RecordMessageAppended()
}

// Service はメッセージに関するビジネスロジックを提供する。
type Service struct {
	messageRepo repository.MessageRepository
	rooms       RoomGuard
	profiles    ProfileProvider
	publisher   Publisher
	metrics     AppendRecorder
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	messageRepo repository.MessageRepository,
	rooms RoomGuard,
	profiles ProfileProvider,
	publisher Publisher,
	metrics AppendRecorder,
) *Service {
	return &Service{
		messageRepo: messageRepo,
		rooms:       rooms,
		profiles:    profiles,
		publisher:   publisher,
		metrics:     metrics,
	}
}

// Post はメッセージを投稿する。
// アクセス制御 → 本文検証 → 返信先検証 → 永続化 → ライブ配信の順に処理し、
// 永続化が完了するまで配信は行わない。配信はブロックせず、失敗もしない。
// 公開ルームへの初回投稿ではプロフィールが自動作成される。
func (s *Service) Post(ctx context.Context, roomID, userID, displayName, replyToID, content string) (*model.MessageView, error) {
	if _, _, err := s.rooms.CanWrite(ctx, roomID, userID); err != nil {
		return nil, err
	}

	if strings.TrimSpace(content) == "" {
		return nil, model.NewEmptyMessageError()
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, model.NewMessageTooLongError(MaxContentLength)
	}

	profile, err := s.profiles.GetOrCreate(ctx, userID, roomID, displayName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile: %w", err)
	}

	var replyTo *string
	var replyContent *string
	if replyToID != "" {
		replyMsg, err := s.messageRepo.FindByIDInRoom(ctx, roomID, replyToID)
		if err != nil {
			return nil, fmt.Errorf("failed to find reply target: %w", err)
		}
		if replyMsg == nil {
			return nil, model.NewInvalidReplyError(replyToID)
		}
		replyTo = &replyMsg.ID
		replyContent = &replyMsg.Content
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message ID: %w", err)
	}

	msg := &model.Message{
		ID:        id.String(),
		RoomID:    roomID,
		ProfileID: profile.ID,
		ReplyToID: replyTo,
		Content:   content,
		CreatedAt: time.Now(),
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	view := toView(msg, profile.Handle, profile.Alias, replyContent)
	s.publisher.Publish(roomID, view)

	if s.metrics != nil {
		s.metrics.RecordMessageAppended()
	}

	return &view, nil
}

// List はルームの全メッセージを投稿順で返す。
// ライブ配信が取りこぼした場合の復旧経路でもあるため、件数の上限は設けない。
// 閲覧権限が無い場合はルームの存在有無を漏らさないエラーを返す。
func (s *Service) List(ctx context.Context, roomID, userID string) ([]model.MessageView, error) {
	if _, err := s.rooms.CanRead(ctx, roomID, userID); err != nil {
		return nil, err
	}

	rows, err := s.messageRepo.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	views := make([]model.MessageView, 0, len(rows))
	for _, row := range rows {
		views = append(views, toView(&row.Message, row.Handle, row.Alias, row.ReplyContent))
	}

	return views, nil
}

// toView は永続化済みメッセージを表示用の形に変換する。
func toView(msg *model.Message, handle, alias string, replyContent *string) model.MessageView {
	view := model.MessageView{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		ProfileID: msg.ProfileID,
		Handle:    handle,
		Alias:     alias,
		ReplyToID: msg.ReplyToID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	if replyContent != nil {
		view.ReplyPreview = replyPreview(*replyContent)
	}
	return view
}

// replyPreview は返信先本文の先頭部分を切り出す。
// マルチバイト文字の途中で切れないよう文字数単位で切り詰める。
func replyPreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}
