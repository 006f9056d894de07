package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/murmur/internal/middleware"
	"github.com/hitoshi/murmur/internal/model"
)

// RoomServiceInterface はルームハンドラーが必要とするサービスインターフェース。
type RoomServiceInterface interface {
	Create(ctx context.Context, userID, displayName, name string, isPublic bool) (*model.Room, error)
	CanRead(ctx context.Context, roomID, userID string) (*model.Room, error)
	ListForUser(ctx context.Context, userID string) ([]*model.Room, error)
	Admit(ctx context.Context, roomID, actorUserID, targetUserID string) (*model.Profile, error)
}

// MessageServiceInterface はメッセージ操作に必要なサービスインターフェース。
type MessageServiceInterface interface {
	Post(ctx context.Context, roomID, userID, displayName, replyToID, content string) (*model.MessageView, error)
	List(ctx context.Context, roomID, userID string) ([]model.MessageView, error)
}

// ProfileServiceInterface はプロフィール取得に必要なサービスインターフェース。
type ProfileServiceInterface interface {
	GetForViewer(ctx context.Context, profileID, viewerUserID string) (*model.Profile, error)
}

// RoomHandler はルーム・メッセージ・プロフィールのHTTPハンドラー。
type RoomHandler struct {
	rooms    RoomServiceInterface
	messages MessageServiceInterface
	profiles ProfileServiceInterface
}

// NewRoomHandler はRoomHandlerを生成する。
func NewRoomHandler(rooms RoomServiceInterface, messages MessageServiceInterface, profiles ProfileServiceInterface) *RoomHandler {
	return &RoomHandler{
		rooms:    rooms,
		messages: messages,
		profiles: profiles,
	}
}

// createRoomRequest はルーム作成リクエストのボディ。
type createRoomRequest struct {
	Name     string `json:"name"`
	IsPublic bool   `json:"is_public"`
}

// postMessageRequest はメッセージ投稿リクエストのボディ。
type postMessageRequest struct {
	ReplyToID string `json:"reply_to_id,omitempty"`
	Content   string `json:"content"`
}

// admitMemberRequest はメンバー追加リクエストのボディ。
type admitMemberRequest struct {
	UserID string `json:"user_id"`
}

// roomResponse はルーム情報のAPIレスポンス。
type roomResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
}

// roomSnapshotResponse はルームとメッセージ一覧を結合したレスポンス。
type roomSnapshotResponse struct {
	Room     roomResponse        `json:"room"`
	Messages []model.MessageView `json:"messages"`
}

// profileResponse はプロフィール情報のAPIレスポンス。
// ユーザーIDはルームをまたいだ同一性を漏らさないため含めない。
type profileResponse struct {
	ID     string `json:"id"`
	RoomID string `json:"room_id"`
	Handle string `json:"handle"`
	Alias  string `json:"alias"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// CreateRoom はルーム作成を処理する。
// POST /api/rooms
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil || !session.IsAuthenticated() {
		writeUnauthorizedResponse(w)
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}

	room, err := h.rooms.Create(r.Context(), session.Data.UserID, session.Data.DisplayName, req.Name, req.IsPublic)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toRoomResponse(room))
}

// ListRooms はログインユーザーが参加しているルーム一覧を返す。
// GET /api/rooms
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil || !session.IsAuthenticated() {
		writeUnauthorizedResponse(w)
		return
	}

	rooms, err := h.rooms.ListForUser(r.Context(), session.Data.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]roomResponse, 0, len(rooms))
	for _, room := range rooms {
		resp = append(resp, toRoomResponse(room))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetRoom はルームのスナップショット（ルーム情報と投稿順のメッセージ一覧）を返す。
// 公開ルームは未ログインでも閲覧できる。
// GET /api/rooms/{id}
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}
	roomID := chi.URLParam(r, "id")

	room, err := h.rooms.CanRead(r.Context(), roomID, session.Data.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	messages, err := h.messages.List(r.Context(), roomID, session.Data.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if messages == nil {
		messages = []model.MessageView{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(roomSnapshotResponse{
		Room:     toRoomResponse(room),
		Messages: messages,
	})
}

// PostMessage はメッセージ投稿を処理する。
// POST /api/rooms/{id}/messages
func (h *RoomHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil || !session.IsAuthenticated() {
		writeUnauthorizedResponse(w)
		return
	}
	roomID := chi.URLParam(r, "id")

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}

	view, err := h.messages.Post(r.Context(), roomID, session.Data.UserID, session.Data.DisplayName, req.ReplyToID, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(view)
}

// AdmitMember は既存メンバーによる別ユーザーのルームへの追加を処理する。
// POST /api/rooms/{id}/members
func (h *RoomHandler) AdmitMember(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil || !session.IsAuthenticated() {
		writeUnauthorizedResponse(w)
		return
	}
	roomID := chi.URLParam(r, "id")

	var req admitMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}
	if req.UserID == "" {
		writeInvalidRequestResponse(w)
		return
	}

	admitted, err := h.rooms.Admit(r.Context(), roomID, session.Data.UserID, req.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toProfileResponse(admitted))
}

// GetProfile はルーム内のプロフィールを返す。
// 閲覧者が同じルームのメンバーである場合のみ取得できる。
// GET /api/profiles/{id}
func (h *RoomHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil || !session.IsAuthenticated() {
		writeUnauthorizedResponse(w)
		return
	}
	profileID := chi.URLParam(r, "id")

	profile, err := h.profiles.GetForViewer(r.Context(), profileID, session.Data.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProfileResponse(profile))
}

// --- ヘルパー関数 ---

// toRoomResponse はmodel.RoomからAPIレスポンスに変換する。
func toRoomResponse(room *model.Room) roomResponse {
	return roomResponse{
		ID:        room.ID,
		Name:      room.Name,
		IsPublic:  room.IsPublic,
		CreatedAt: room.CreatedAt,
	}
}

// toProfileResponse はmodel.ProfileからAPIレスポンスに変換する。
func toProfileResponse(profile *model.Profile) profileResponse {
	return profileResponse{
		ID:     profile.ID,
		RoomID: profile.RoomID,
		Handle: profile.Handle,
		Alias:  profile.Alias,
	}
}

// writeUnauthorizedResponse は401の統一エラーレスポンスを書き込む。
func writeUnauthorizedResponse(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	})
}

// writeInvalidRequestResponse はボディ解析失敗時の統一エラーレスポンスを書き込む。
func writeInvalidRequestResponse(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnknownProvider:
		return http.StatusNotFound
	case model.ErrCodeMissingState, model.ErrCodeMissingCode,
		model.ErrCodeNoPendingHandshake, model.ErrCodeCSRFMismatch:
		return http.StatusBadRequest
	case model.ErrCodeUpstreamError:
		return http.StatusBadGateway
	case model.ErrCodeRoomUnavailable:
		return http.StatusNotFound
	case model.ErrCodeInvalidRoomName, model.ErrCodeEmptyMessage:
		return http.StatusBadRequest
	case model.ErrCodeMessageTooLong, model.ErrCodeInvalidReply:
		return http.StatusUnprocessableEntity
	case model.ErrCodeProfileNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
