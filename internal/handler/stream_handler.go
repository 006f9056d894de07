package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/hitoshi/murmur/internal/hub"
	"github.com/hitoshi/murmur/internal/middleware"
	"github.com/hitoshi/murmur/internal/model"
)

// StreamMetrics はWebSocket接続の記録に必要なインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type StreamMetrics interface {
	IncLiveConnections()
	DecLiveConnections()
	RecordResyncSent()
}

// inboundFrame はクライアントから受信するフレーム。
type inboundFrame struct {
	Type      string `json:"type"` // "message"
	ReplyToID string `json:"reply_to_id,omitempty"`
	Content   string `json:"content"`
}

// outboundFrame はクライアントへ送信するフレーム。
// Typeが"resync"の場合、クライアントは一覧の再取得で取りこぼしを回復する必要がある。
type outboundFrame struct {
	Type    string             `json:"type"` // "message" | "resync" | "error"
	Message *model.MessageView `json:"message,omitempty"`
	Error   *apiErrorResponse  `json:"error,omitempty"`
}

// StreamHandler はWebSocketによるルームのライブ配信ハンドラー。
//
// 1つの接続は2つの責務を持つ:
//   - 受信ループ: クライアントのフレームを検証しメッセージとして投稿する
//   - 送信ループ: ハブから受け取ったイベントをクライアントに配信する
//
// どちらかが終了すると接続全体を閉じ、ハブの購読も即座に解除する。
type StreamHandler struct {
	rooms    RoomServiceInterface
	messages MessageServiceInterface
	hub      *hub.Hub
	metrics  StreamMetrics
}

// NewStreamHandler はStreamHandlerを生成する。metricsはnilでもよい。
func NewStreamHandler(rooms RoomServiceInterface, messages MessageServiceInterface, h *hub.Hub, metrics StreamMetrics) *StreamHandler {
	return &StreamHandler{
		rooms:    rooms,
		messages: messages,
		hub:      h,
		metrics:  metrics,
	}
}

// Stream はWebSocket接続を受け付ける。
// アップグレード前に閲覧権限を検証し、権限が無い場合は
// ルームの存在有無を漏らさないエラーを返す。
// GET /api/rooms/{id}/ws
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}
	roomID := chi.URLParam(r, "id")

	if _, err := h.rooms.CanRead(r.Context(), roomID, session.Data.UserID); err != nil {
		handleServiceError(w, err)
		return
	}

	websocket.Handler(func(conn *websocket.Conn) {
		h.serve(conn, session, roomID)
	}).ServeHTTP(w, r)
}

// serve は1つのWebSocket接続を処理する。
func (h *StreamHandler) serve(conn *websocket.Conn, session *model.Session, roomID string) {
	ctx, cancel := context.WithCancel(conn.Request().Context())
	defer cancel()
	defer conn.Close()

	sub := h.hub.Subscribe(roomID)
	defer sub.Close()

	if h.metrics != nil {
		h.metrics.IncLiveConnections()
		defer h.metrics.DecLiveConnections()
	}

	slog.Info("stream opened",
		slog.String("room_id", roomID),
		slog.String("session_id", session.ID),
	)

	// 送信ループ
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-sub.Events():
				// ドロップが発生していたらresyncを先に通知する
				if sub.TakeLagged() {
					if err := websocket.JSON.Send(conn, outboundFrame{Type: "resync"}); err != nil {
						conn.Close()
						return
					}
					if h.metrics != nil {
						h.metrics.RecordResyncSent()
					}
				}
				if err := websocket.JSON.Send(conn, outboundFrame{Type: "message", Message: &ev}); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	// 受信ループ
	for {
		var frame inboundFrame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			// クライアント切断またはコンテキストキャンセル
			return
		}
		if frame.Type != "message" {
			continue
		}

		if !session.IsAuthenticated() {
			h.sendError(conn, &model.APIError{
				Code:     "UNAUTHORIZED",
				Message:  "認証が必要です。",
				Category: "auth",
				Action:   "ログインしてください。",
			})
			continue
		}

		_, err := h.messages.Post(ctx, roomID, session.Data.UserID, session.Data.DisplayName, frame.ReplyToID, frame.Content)
		if err != nil {
			var apiErr *model.APIError
			if errors.As(err, &apiErr) {
				h.sendError(conn, apiErr)
				continue
			}
			slog.Error("failed to post message from stream",
				slog.String("room_id", roomID),
				slog.String("error", err.Error()),
			)
			h.sendError(conn, &model.APIError{
				Code:     "INTERNAL_ERROR",
				Message:  "内部エラーが発生しました。",
				Category: "system",
				Action:   "しばらく待ってから再度お試しください。",
			})
		}
		// 投稿されたメッセージはハブ経由で送信ループから配信される
	}
}

// sendError はエラーフレームを送信する。送信失敗は切断として扱い無視する。
func (h *StreamHandler) sendError(conn *websocket.Conn, apiErr *model.APIError) {
	_ = websocket.JSON.Send(conn, outboundFrame{
		Type: "error",
		Error: &apiErrorResponse{
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Category: apiErr.Category,
			Action:   apiErr.Action,
		},
	})
}
