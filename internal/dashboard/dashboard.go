// Package dashboard はカメラ監視画面の状態とカメラセッションの制御を担う
//
// # 責務
//   - セッション状態 (カメラの開閉・録画フラグ・検知モード・システム状態) の保持
//   - カメラストリームの取得と解放 (Camera Session Controller)
//   - 最近のアラートと時計の管理
//   - 再描画イベントの配信
//
// # 仕様
//   - 取得中 (acquiring) と表示中 (online) を区別し、取得中の二重要求は拒否する
//   - 取得中にカメラを閉じた場合、後から届いたストリームは直ちに解放する
//   - 取得の失敗は分類した通知とアラートにして返し、再試行はしない
//   - 検知モード・感度・通知の設定は画面上の状態のみで、何も動かさない
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kanshi/internal/alert"
	"kanshi/internal/camera"
	"kanshi/internal/clock"
	"kanshi/internal/surface"
)

// Options は画面の設定
type Options struct {
	Title         string
	Constraints   camera.Constraints
	SurfaceWait   time.Duration // 表示面のマウントを待つ上限
	ClockInterval time.Duration
}

// DefaultOptions は既定の設定を返す
func DefaultOptions() Options {
	return Options{
		Title:         "Intruder Detection System",
		Constraints:   camera.DefaultConstraints(),
		SurfaceWait:   600 * time.Millisecond,
		ClockInterval: time.Second,
	}
}

// Stats はシステム状態パネルの表示値
type Stats struct {
	Uptime          string `json:"uptime"`
	DetectionsToday int    `json:"detections_today"`
}

// Snapshot は描画に必要な画面全体の状態
type Snapshot struct {
	Title      string        `json:"title"`
	State      SessionState  `json:"state"`
	Settings   Settings      `json:"settings"`
	Alerts     []alert.Alert `json:"alerts"`
	Clock      string        `json:"clock"`
	Resolution string        `json:"resolution,omitempty"`
	Surface    surface.State `json:"surface"`
	Stats      Stats         `json:"stats"`
	Mounted    bool          `json:"mounted"`
}

// Dashboard は監視画面1つ分の状態を持つ
type Dashboard struct {
	log     zerolog.Logger
	opts    Options
	devices camera.MediaDevices
	surface *surface.Surface
	alerts  *alert.Log
	clock   *clock.Display
	events  *hub

	mu        sync.Mutex
	mounted   bool
	mountedAt time.Time
	state     SessionState
	settings  Settings

	// stream はコントローラーだけが触る
	stream        camera.Stream
	acquireGen    uint64
	acquireCancel context.CancelFunc
}

// New は新しいDashboardを作成する
func New(devices camera.MediaDevices, opts Options, log zerolog.Logger) *Dashboard {
	if opts.ClockInterval <= 0 {
		opts.ClockInterval = time.Second
	}
	if opts.Title == "" {
		opts.Title = DefaultOptions().Title
	}

	d := &Dashboard{
		log:      log.With().Str("component", "dashboard").Logger(),
		opts:     opts,
		devices:  devices,
		surface:  surface.New(log),
		alerts:   alert.NewLog(),
		clock:    clock.NewDisplay(opts.ClockInterval),
		events:   newHub(),
		state:    InitialState(),
		settings: DefaultSettings(),
	}

	d.surface.OnMetadataReady(func(md surface.Metadata) {
		d.log.Debug().Int("width", md.Width).Int("height", md.Height).Msg("映像のメタデータを取得しました")
		d.publishState()
	})
	d.surface.OnCanPlay(func() {
		d.log.Debug().Msg("映像を再生できます")
	})
	d.surface.OnError(func(err error) {
		d.log.Error().Err(err).Msg("映像の再生エラー")
		d.addAlert("Video playback error")
	})
	d.clock.OnTick(func(text string) {
		d.events.publish(Event{Type: EventClock, Clock: text})
	})

	return d
}

// Surface は表示面を返す
func (d *Dashboard) Surface() *surface.Surface {
	return d.surface
}

// Mount は画面を表示可能にし、時計を開始する
func (d *Dashboard) Mount(ctx context.Context) {
	d.mu.Lock()
	if d.mounted {
		d.mu.Unlock()
		return
	}
	d.mounted = true
	d.mountedAt = time.Now()
	d.state = InitialState()
	d.settings = DefaultSettings()
	d.mu.Unlock()

	d.alerts.Reset()
	d.surface.Mount()
	d.clock.Start(ctx)

	d.log.Info().Msg("画面をマウントしました")
	d.publishState()
}

// Unmount は時計を止め、取得中の要求を中断し、ストリームを解放する
func (d *Dashboard) Unmount() {
	d.mu.Lock()
	if !d.mounted {
		d.mu.Unlock()
		return
	}
	d.mounted = false
	stream, cancel := d.takeStreamLocked()
	d.state = InitialState()
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		stream.StopAllTracks()
	}
	d.surface.Unmount()
	d.clock.Stop()

	d.log.Info().Msg("画面をアンマウントしました")
	d.publishState()
}

// Mounted は画面がマウントされているかを返す
func (d *Dashboard) Mounted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mounted
}

// State は現在のセッション状態を返す
func (d *Dashboard) State() SessionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Alerts は最近のアラートを新しい順に返す
func (d *Dashboard) Alerts() []alert.Alert {
	return d.alerts.List()
}

// Snapshot は描画用の画面全体の状態を返す
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.Lock()
	snap := Snapshot{
		Title:    d.opts.Title,
		State:    d.state,
		Settings: d.settings,
		Mounted:  d.mounted,
	}
	if d.mounted {
		snap.Stats.Uptime = formatUptime(time.Since(d.mountedAt))
	}
	if d.state.CameraOpen {
		snap.Resolution = fmt.Sprintf("%dx%d", d.opts.Constraints.Width, d.opts.Constraints.Height)
	}
	d.mu.Unlock()

	snap.Alerts = d.alerts.List()
	snap.Clock = d.clock.Now()
	snap.Surface = d.surface.State()
	return snap
}

// Subscribe は再描画イベントの購読を始める
func (d *Dashboard) Subscribe() *Subscription {
	return d.events.add()
}

// Subscribers は購読者数を返す
func (d *Dashboard) Subscribers() int {
	return d.events.count()
}

// ManualScan は手動スキャンの記録だけを残す
func (d *Dashboard) ManualScan() alert.Alert {
	return d.addAlert("Manual scan initiated")
}

// SetDetectionMode は検知モードの表示値を変える
func (d *Dashboard) SetDetectionMode(mode DetectionMode) error {
	if _, err := ParseDetectionMode(string(mode)); err != nil {
		return err
	}

	d.mu.Lock()
	d.state.DetectionMode = mode
	d.mu.Unlock()

	d.publishState()
	return nil
}

// SetSensitivity は感度の表示値を変える
func (d *Dashboard) SetSensitivity(level int) error {
	if level < MinSensitivity || level > MaxSensitivity {
		return fmt.Errorf("感度は%dから%dの範囲で指定してください: %d", MinSensitivity, MaxSensitivity, level)
	}

	d.mu.Lock()
	d.settings.Sensitivity = level
	d.mu.Unlock()

	d.publishState()
	return nil
}

// SetNotifications は通知の表示値を変える
func (d *Dashboard) SetNotifications(enabled bool) {
	d.mu.Lock()
	d.settings.Notifications = enabled
	d.mu.Unlock()

	d.publishState()
}

// addAlert はアラートを追加して再描画を通知する
func (d *Dashboard) addAlert(message string) alert.Alert {
	a := d.alerts.Append(message)
	d.publishState()
	return a
}

// publishState は現在のSnapshotを配信する。d.muを保持したまま呼ばないこと
func (d *Dashboard) publishState() {
	snap := d.Snapshot()
	d.events.publish(Event{Type: EventState, Snapshot: &snap})
}

func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}
