// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, room, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnknownProvider    = "UNKNOWN_PROVIDER"
	ErrCodeMissingState       = "MISSING_STATE"
	ErrCodeMissingCode        = "MISSING_CODE"
	ErrCodeNoPendingHandshake = "NO_PENDING_HANDSHAKE"
	ErrCodeCSRFMismatch       = "CSRF_MISMATCH"
	ErrCodeUpstreamError      = "UPSTREAM_ERROR"
	ErrCodeRoomUnavailable    = "ROOM_UNAVAILABLE"
	ErrCodeInvalidRoomName    = "INVALID_ROOM_NAME"
	ErrCodeEmptyMessage       = "EMPTY_MESSAGE"
	ErrCodeMessageTooLong     = "MESSAGE_TOO_LONG"
	ErrCodeInvalidReply       = "INVALID_REPLY"
	ErrCodeProfileNotFound    = "PROFILE_NOT_FOUND"
)

// NewUnknownProviderError は未登録のIdPが指定された場合のエラーを生成する。
func NewUnknownProviderError(providerID string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProvider,
		Message:  fmt.Sprintf("指定された認証プロバイダーは登録されていません: %s", providerID),
		Category: "auth",
		Action:   "対応しているプロバイダー（google, github）を指定してください。",
	}
}

// NewMissingStateError はコールバックにstateパラメータが無い場合のエラーを生成する。
func NewMissingStateError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingState,
		Message:  "認証コールバックにstateパラメータが含まれていません。",
		Category: "auth",
		Action:   "ログインを最初からやり直してください。",
	}
}

// NewMissingCodeError はコールバックに認可コードが無い場合のエラーを生成する。
func NewMissingCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingCode,
		Message:  "認証コールバックに認可コードが含まれていません。",
		Category: "auth",
		Action:   "ログインを最初からやり直してください。",
	}
}

// NewNoPendingHandshakeError はセッションに進行中の認証フローが無い場合のエラーを生成する。
func NewNoPendingHandshakeError() *APIError {
	return &APIError{
		Code:     ErrCodeNoPendingHandshake,
		Message:  "このセッションには進行中の認証フローがありません。",
		Category: "auth",
		Action:   "ログインを最初からやり直してください。",
	}
}

// NewCSRFMismatchError はstateがセッションに保存した値と一致しない場合のエラーを生成する。
func NewCSRFMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFMismatch,
		Message:  "stateパラメータがセッションに保存された値と一致しません。",
		Category: "auth",
		Action:   "ログインを最初からやり直してください。",
	}
}

// NewUpstreamError はIdPまたはIdentity Brokerとの通信に失敗した場合のエラーを生成する。
func NewUpstreamError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamError,
		Message:  fmt.Sprintf("外部認証サービスとの通信に失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度ログインをお試しください。",
	}
}

// NewRoomUnavailableError はルームが存在しないかアクセス権が無い場合のエラーを生成する。
// ルームの存在有無を漏らさないため、両方のケースで同一のレスポンスを返す。
func NewRoomUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeRoomUnavailable,
		Message:  "指定されたルームは存在しないか、アクセスする権限がありません。",
		Category: "room",
		Action:   "ルームIDを確認するか、ルームのメンバーに招待を依頼してください。",
	}
}

// NewInvalidRoomNameError はルーム名が不正な場合のエラーを生成する。
func NewInvalidRoomNameError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRoomName,
		Message:  fmt.Sprintf("無効なルーム名です: %s", reason),
		Category: "validation",
		Action:   "1〜64文字のルーム名を指定してください。",
	}
}

// NewEmptyMessageError は空のメッセージを投稿しようとした場合のエラーを生成する。
func NewEmptyMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyMessage,
		Message:  "メッセージ本文が空です。",
		Category: "validation",
		Action:   "本文を入力してから投稿してください。",
	}
}

// NewMessageTooLongError はメッセージが上限を超過した場合のエラーを生成する。
func NewMessageTooLongError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeMessageTooLong,
		Message:  fmt.Sprintf("メッセージが上限（%d文字）を超えています。", limit),
		Category: "validation",
		Action:   "本文を短くしてから再度投稿してください。",
	}
}

// NewInvalidReplyError は返信先が同一ルームに存在しない場合のエラーを生成する。
func NewInvalidReplyError(replyToID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidReply,
		Message:  fmt.Sprintf("返信先のメッセージがこのルームに見つかりません: %s", replyToID),
		Category: "validation",
		Action:   "返信先のメッセージIDを確認してください。",
	}
}

// NewProfileNotFoundError はプロフィールが見つからない場合のエラーを生成する。
func NewProfileNotFoundError(profileID string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("指定されたプロフィールが見つかりません: %s", profileID),
		Category: "room",
		Action:   "プロフィールIDを確認してください。",
	}
}
