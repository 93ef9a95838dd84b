// Package alert は画面に表示する最近のアラートを保持する
package alert

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Capacity は保持するアラートの最大件数
const Capacity = 5

// TimeFormat はアラートのタイムスタンプ表示形式
const TimeFormat = "3:04:05 PM"

// Severity はアラートの重要度
type Severity string

// SeverityWarning は現在唯一の重要度
const SeverityWarning Severity = "warning"

// Alert は画面に表示する1件のイベント
type Alert struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// Log は新しい順に最大Capacity件のアラートを保持する
type Log struct {
	mu     sync.RWMutex
	alerts []Alert
	now    func() time.Time
}

// NewLog は空のLogを作成する
func NewLog() *Log {
	return &Log{
		alerts: make([]Alert, 0, Capacity),
		now:    time.Now,
	}
}

// Append はメッセージを先頭に追加し、古いものを切り捨てる
func (l *Log) Append(message string) Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	a := Alert{
		ID:        newID(),
		Message:   message,
		Timestamp: now.Format(TimeFormat),
		Severity:  SeverityWarning,
		CreatedAt: now,
	}

	keep := len(l.alerts)
	if keep > Capacity-1 {
		keep = Capacity - 1
	}

	next := make([]Alert, 0, Capacity)
	next = append(next, a)
	next = append(next, l.alerts[:keep]...)
	l.alerts = next

	return a
}

// List は新しい順のコピーを返す
func (l *Log) List() []Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Alert, len(l.alerts))
	copy(out, l.alerts)
	return out
}

// Len は現在の件数を返す
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.alerts)
}

// Reset は全件を消す。新しいセッションの開始時に使う
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.alerts = make([]Alert, 0, Capacity)
}

// newID は時刻順に並ぶ一意なIDを返す
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
