package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/hitoshi/murmur/internal/hub"
	"github.com/hitoshi/murmur/internal/middleware"
	"github.com/hitoshi/murmur/internal/model"
)

// newStreamServer はセッションを注入したルーター上でStreamHandlerを起動する。
func newStreamServer(t *testing.T, h *StreamHandler, session *model.Session) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.ContextWithSession(req.Context(), session)))
		})
	})
	r.Get("/api/rooms/{id}/ws", h.Stream)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func dialStream(t *testing.T, server *httptest.Server, roomID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/rooms/" + roomID + "/ws"
	conn, err := websocket.Dial(wsURL, "", server.URL)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func receiveFrame(t *testing.T, conn *websocket.Conn) outboundFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame outboundFrame
	if err := websocket.JSON.Receive(conn, &frame); err != nil {
		t.Fatalf("failed to receive frame: %v", err)
	}
	return frame
}

func TestStream_DeliversPublishedMessages(t *testing.T) {
	eventHub := hub.New(8, nil)
	h := NewStreamHandler(&mockRoomService{}, &mockMessageService{}, eventHub, nil)
	server := newStreamServer(t, h, authenticatedSession())

	conn := dialStream(t, server, "room-1")

	// 購読が確立するまで待つ
	waitForSubscribers(t, eventHub, "room-1", 1)

	eventHub.Publish("room-1", model.MessageView{ID: "msg-1", RoomID: "room-1", Content: "こんにちは"})

	frame := receiveFrame(t, conn)
	if frame.Type != "message" {
		t.Fatalf("frame type = %q, want %q", frame.Type, "message")
	}
	if frame.Message == nil || frame.Message.ID != "msg-1" {
		t.Errorf("frame message = %+v, want msg-1", frame.Message)
	}
}

func TestStream_DeniedRoom_DoesNotUpgrade(t *testing.T) {
	rooms := &mockRoomService{
		canReadFn: func(ctx context.Context, roomID, userID string) (*model.Room, error) {
			return nil, model.NewRoomUnavailableError()
		},
	}
	h := NewStreamHandler(rooms, &mockMessageService{}, hub.New(8, nil), nil)
	server := newStreamServer(t, h, authenticatedSession())

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/rooms/secret/ws"
	if _, err := websocket.Dial(wsURL, "", server.URL); err == nil {
		t.Fatal("expected websocket upgrade to fail for unavailable room")
	}
}

func TestStream_InboundMessageFrame_PostsMessage(t *testing.T) {
	eventHub := hub.New(8, nil)
	posted := make(chan string, 1)
	messages := &mockMessageService{
		postFn: func(ctx context.Context, roomID, userID, displayName, replyToID, content string) (*model.MessageView, error) {
			posted <- content
			return &model.MessageView{ID: "msg-1", RoomID: roomID, Content: content}, nil
		},
	}
	h := NewStreamHandler(&mockRoomService{}, messages, eventHub, nil)
	server := newStreamServer(t, h, authenticatedSession())

	conn := dialStream(t, server, "room-1")

	if err := websocket.JSON.Send(conn, map[string]string{"type": "message", "content": "接続から投稿"}); err != nil {
		t.Fatalf("failed to send frame: %v", err)
	}

	select {
	case content := <-posted:
		if content != "接続から投稿" {
			t.Errorf("posted content = %q, want %q", content, "接続から投稿")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("inbound frame was not posted")
	}
}

func TestStream_AnonymousPost_ReturnsErrorFrame(t *testing.T) {
	eventHub := hub.New(8, nil)
	h := NewStreamHandler(&mockRoomService{}, &mockMessageService{}, eventHub, nil)
	server := newStreamServer(t, h, anonymousSession())

	conn := dialStream(t, server, "room-1")

	if err := websocket.JSON.Send(conn, map[string]string{"type": "message", "content": "匿名投稿"}); err != nil {
		t.Fatalf("failed to send frame: %v", err)
	}

	frame := receiveFrame(t, conn)
	if frame.Type != "error" {
		t.Fatalf("frame type = %q, want %q", frame.Type, "error")
	}
	if frame.Error == nil || frame.Error.Code != "UNAUTHORIZED" {
		t.Errorf("error frame = %+v, want UNAUTHORIZED", frame.Error)
	}
}

func TestStream_PostFailure_ReturnsErrorFrame(t *testing.T) {
	eventHub := hub.New(8, nil)
	messages := &mockMessageService{
		postFn: func(ctx context.Context, roomID, userID, displayName, replyToID, content string) (*model.MessageView, error) {
			return nil, model.NewEmptyMessageError()
		},
	}
	h := NewStreamHandler(&mockRoomService{}, messages, eventHub, nil)
	server := newStreamServer(t, h, authenticatedSession())

	conn := dialStream(t, server, "room-1")

	if err := websocket.JSON.Send(conn, map[string]string{"type": "message", "content": ""}); err != nil {
		t.Fatalf("failed to send frame: %v", err)
	}

	frame := receiveFrame(t, conn)
	if frame.Type != "error" {
		t.Fatalf("frame type = %q, want %q", frame.Type, "error")
	}
	if frame.Error == nil || frame.Error.Code != "EMPTY_MESSAGE" {
		t.Errorf("error frame = %+v, want EMPTY_MESSAGE", frame.Error)
	}
}

func TestStream_Disconnect_UnsubscribesPromptly(t *testing.T) {
	eventHub := hub.New(8, nil)
	h := NewStreamHandler(&mockRoomService{}, &mockMessageService{}, eventHub, nil)
	server := newStreamServer(t, h, authenticatedSession())

	conn := dialStream(t, server, "room-1")
	waitForSubscribers(t, eventHub, "room-1", 1)

	conn.Close()

	waitForSubscribers(t, eventHub, "room-1", 0)
}

// waitForSubscribers は購読者数が期待値になるまで待つ。
func waitForSubscribers(t *testing.T, h *hub.Hub, roomID string, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h.SubscriberCount(roomID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("SubscriberCount(%q) = %d, want %d", roomID, h.SubscriberCount(roomID), want)
}
