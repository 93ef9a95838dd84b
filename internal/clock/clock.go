// Package clock はヘッダーに表示する時計を一定間隔で更新する
package clock

import (
	"context"
	"sync"
	"time"
)

// Placeholder は開始前に表示する文字列
const Placeholder = "--:--:--"

// Format は表示形式
const Format = "3:04:05 PM"

// Display は画面がマウントされている間だけ動く時計
type Display struct {
	interval time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	text     string
	handlers []func(string)
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewDisplay は新しいDisplayを作成する
func NewDisplay(interval time.Duration) *Display {
	if interval <= 0 {
		interval = time.Second
	}
	return &Display{
		interval: interval,
		now:      time.Now,
		text:     Placeholder,
	}
}

// OnTick は更新のたびに呼ばれる関数を登録する
func (d *Display) OnTick(fn func(string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, fn)
}

// Now は現在表示中の文字列を返す
func (d *Display) Now() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// Running は時計が動いているかを返す
func (d *Display) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cancel != nil
}

// Start は即座に1回更新し、以降interval毎に更新する。二重に開始しない
func (d *Display) Start(ctx context.Context) {
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	done := d.done
	d.mu.Unlock()

	d.tick()

	go func() {
		defer close(done)

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.tick()
			}
		}
	}()
}

// Stop は更新を止め、ゴルーチンの終了を待つ
func (d *Display) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *Display) tick() {
	text := d.now().Format(Format)

	d.mu.Lock()
	d.text = text
	handlers := append([]func(string){}, d.handlers...)
	d.mu.Unlock()

	for _, fn := range handlers {
		fn(text)
	}
}
