package dashboard

import (
	"sync"
)

// EventType は画面の再描画イベントの種類
type EventType string

const (
	EventState  EventType = "state"  // 状態が変わった。Snapshotを持つ
	EventNotice EventType = "notice" // ブロッキングな通知を表示する
	EventClock  EventType = "clock"  // 時計の更新
)

// Event は購読者に届く再描画イベント
type Event struct {
	Type     EventType `json:"type"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Notice   *Notice   `json:"notice,omitempty"`
	Clock    string    `json:"clock,omitempty"`
}

const subscriptionBuffer = 16

// Subscription は再描画イベントの購読
type Subscription struct {
	hub    *hub
	ch     chan Event
	closed bool
}

// C はイベントを受け取るチャンネル。Close後にクローズされる
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close は購読をやめる
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// hub は購読者へのイベント配信。遅い購読者のイベントは捨てて画面側を止めない
type hub struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*Subscription]struct{})}
}

func (h *hub) add() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := &Subscription{hub: h, ch: make(chan Event, subscriptionBuffer)}
	h.subs[s] = struct{}{}
	return s
}

func (h *hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	delete(h.subs, s)
	close(s.ch)
}

func (h *hub) publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.ch <- e:
		default:
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
