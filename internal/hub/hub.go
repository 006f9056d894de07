// Package hub はルーム単位のメッセージ配信を提供する。
// 投稿されたメッセージを同一ルームの全購読者にインプロセスで配信する。
// 他ルームの購読者にイベントが届くことはない。
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/hitoshi/murmur/internal/model"
)

// DropRecorder は配信ドロップの記録に必要なインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type DropRecorder interface {
	RecordBroadcastDrop(roomID string)
}

// Subscription はルームへの購読を表す。
// Eventsチャネルからメッセージを受信し、不要になったらCloseで購読を解除する。
type Subscription struct {
	hub    *Hub
	roomID string
	ch     chan model.MessageView
	lagged atomic.Bool
	once   sync.Once
}

// Events はメッセージ受信用のチャネルを返す。
func (s *Subscription) Events() <-chan model.MessageView {
	return s.ch
}

// TakeLagged はバッファ溢れによるドロップが発生したかどうかを返し、フラグをクリアする。
// trueが返った場合、購読者は一覧の再取得で取りこぼしを回復する必要がある。
func (s *Subscription) TakeLagged() bool {
	return s.lagged.Swap(false)
}

// Close は購読を解除する。複数回呼んでも安全。
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s.roomID, s)
	})
}

// Hub はルームごとの購読者を管理し、メッセージを配信する。
// ルームのトピックは最初の購読者が現れたときに作成され、
// 最後の購読者が離脱したときに破棄される。
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[*Subscription]struct{}
	buffer int
	drops  DropRecorder
}

// New はHubを生成する。
// bufferは購読者ごとの送信バッファサイズを指定する。
// recorderはnilでもよい。
func New(buffer int, recorder DropRecorder) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		rooms:  make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		drops:  recorder,
	}
}

// Subscribe は指定ルームへの購読を開始する。
func (h *Hub) Subscribe(roomID string) *Subscription {
	sub := &Subscription{
		hub:    h,
		roomID: roomID,
		ch:     make(chan model.MessageView, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.rooms[roomID] = subs
	}
	subs[sub] = struct{}{}

	return sub
}

// unsubscribe は購読を解除し、最後の購読者だった場合はルームのトピックを破棄する。
func (h *Hub) unsubscribe(roomID string, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.rooms, roomID)
	}
}

// Publish はメッセージを指定ルームの全購読者に配信する。
// 購読者のバッファが満杯の場合は最も古いイベントを破棄して新しいイベントを入れ、
// 購読者の遅延フラグを立てる。配信がブロックすることはない。
func (h *Hub) Publish(roomID string, ev model.MessageView) {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.rooms[roomID]))
	for sub := range h.rooms[roomID] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
			continue
		default:
		}

		// バッファ満杯: 最古のイベントを1件捨ててから再送を試みる
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- ev:
		default:
		}

		sub.lagged.Store(true)
		if h.drops != nil {
			h.drops.RecordBroadcastDrop(roomID)
		}
	}
}

// SubscriberCount は指定ルームの現在の購読者数を返す。
// テストおよびメトリクス用。
func (h *Hub) SubscriberCount(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}
