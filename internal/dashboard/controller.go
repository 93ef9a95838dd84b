package dashboard

import (
	"context"
	"errors"
	"time"

	"kanshi/internal/camera"
	"kanshi/internal/surface"
)

// OpenCamera はカメラストリームを要求し、表示面に結び付けて再生する
//
// 取得中に再度呼ばれた場合はErrAcquisitionInProgressを返す。表示中なら何もしない。
// 失敗した場合は通知とアラートを出して*OpenErrorを返し、状態はofflineに戻る。
func (d *Dashboard) OpenCamera(ctx context.Context) error {
	d.mu.Lock()
	switch d.state.Phase {
	case PhaseAcquiring:
		d.mu.Unlock()
		return ErrAcquisitionInProgress
	case PhaseOnline:
		d.mu.Unlock()
		return nil
	}

	d.acquireGen++
	gen := d.acquireGen
	acqCtx, cancel := context.WithCancel(ctx)
	d.acquireCancel = cancel
	d.state.Phase = PhaseAcquiring
	d.mu.Unlock()
	defer cancel()

	d.log.Info().Msg("カメラを開いています")
	d.publishState()

	stream, err := d.acquire(acqCtx)
	if !d.stillAcquiring(gen) {
		return d.abandon(stream)
	}
	if err != nil {
		return d.fail(gen, err)
	}

	// 表示面への結び付けはロックの外で行う。通知ハンドラが画面の状態を読むため
	if err := d.surface.Bind(stream); err != nil {
		stream.StopAllTracks()
		if errors.Is(err, surface.ErrNotMounted) {
			err = &camera.AcquireError{Reason: camera.ReasonSurfaceNotFound, Err: err}
		}
		return d.fail(gen, err)
	}
	if err := d.surface.Play(); err != nil {
		d.log.Warn().Err(err).Msg("再生の開始に失敗しました")
	}

	d.mu.Lock()
	if d.acquireGen != gen || d.state.Phase != PhaseAcquiring {
		d.mu.Unlock()
		d.surface.Detach()
		return d.abandon(stream)
	}
	d.stream = stream
	d.acquireCancel = nil
	d.state.CameraOpen = true
	d.state.SystemStatus = StatusOnline
	d.state.Phase = PhaseOnline
	d.mu.Unlock()

	d.log.Info().Str("stream", stream.ID()).Msg("カメラを開きました")
	d.addAlert("Camera activated successfully")
	return nil
}

// acquire は対応確認・表示面の待機・ストリーム要求を順に行う
func (d *Dashboard) acquire(ctx context.Context) (camera.Stream, error) {
	if d.devices == nil || !d.devices.Supported() {
		return nil, &camera.AcquireError{Reason: camera.ReasonCapabilityUnsupported, Err: camera.ErrUnsupported}
	}

	if err := d.surface.WaitMounted(ctx, d.opts.SurfaceWait); err != nil {
		if errors.Is(err, surface.ErrNotMounted) {
			return nil, &camera.AcquireError{Reason: camera.ReasonSurfaceNotFound, Err: err}
		}
		return nil, &camera.AcquireError{Reason: camera.ReasonUnclassified, Err: err}
	}

	return d.devices.RequestVideoStream(ctx, d.opts.Constraints)
}

// stillAcquiring はgenの取得がまだ有効かを返す
func (d *Dashboard) stillAcquiring(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquireGen == gen && d.state.Phase == PhaseAcquiring
}

// abandon は閉じられた後に届いたストリームを解放する
func (d *Dashboard) abandon(stream camera.Stream) error {
	if stream != nil {
		stream.StopAllTracks()
		d.log.Info().Str("stream", stream.ID()).Msg("取得中に閉じられたためストリームを解放しました")
	}
	return ErrAcquisitionAborted
}

// fail は失敗を分類し、通知とアラートを出してofflineに戻す
// 既に閉じられた取得の失敗は通知せずErrAcquisitionAbortedを返す
func (d *Dashboard) fail(gen uint64, err error) error {
	d.mu.Lock()
	if d.acquireGen != gen {
		d.mu.Unlock()
		d.log.Debug().Err(err).Msg("閉じられた取得の失敗を破棄しました")
		return ErrAcquisitionAborted
	}
	d.acquireCancel = nil
	d.state = d.state.offline()
	d.mu.Unlock()

	reason := camera.ReasonOf(err)
	notice := Notice{
		Message: noticeMessage(reason, err),
		Reason:  reason,
		At:      time.Now(),
	}

	d.log.Error().Err(err).Str("reason", string(reason)).Msg("カメラにアクセスできません")

	d.events.publish(Event{Type: EventNotice, Notice: &notice})
	d.addAlert(alertMessage(reason))

	return &OpenError{Notice: notice, Err: err}
}

// CloseCamera はストリームを停止して表示面から外す
//
// ストリームがなければ状態を戻すだけで何度呼んでもよい。
// 取得中に呼ばれた場合は取得を中断し、後から届いたストリームは解放される。
func (d *Dashboard) CloseCamera() {
	d.mu.Lock()
	stream, cancel := d.takeStreamLocked()
	d.state = d.state.offline()
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		d.log.Info().Msg("カメラの取得を中断しました")
	}

	if stream != nil {
		stream.StopAllTracks()
	}
	d.surface.Detach()

	if stream == nil {
		d.publishState()
		return
	}

	d.log.Info().Str("stream", stream.ID()).Msg("カメラを閉じました")
	d.addAlert("Camera deactivated")
}

// takeStreamLocked はストリームと取得中のキャンセルを取り出す。d.muを保持して呼ぶ
func (d *Dashboard) takeStreamLocked() (camera.Stream, context.CancelFunc) {
	stream := d.stream
	d.stream = nil

	var cancel context.CancelFunc
	if d.state.Phase == PhaseAcquiring {
		d.acquireGen++
		cancel = d.acquireCancel
	}
	d.acquireCancel = nil

	return stream, cancel
}

// ToggleRecording は録画フラグを反転する。ストリームには何もしない
func (d *Dashboard) ToggleRecording() (bool, error) {
	d.mu.Lock()
	if d.state.Phase != PhaseOnline {
		d.mu.Unlock()
		return false, ErrCameraClosed
	}
	d.state.Recording = !d.state.Recording
	recording := d.state.Recording
	d.mu.Unlock()

	d.log.Info().Bool("recording", recording).Msg("録画フラグを切り替えました")
	d.publishState()
	return recording, nil
}

// ActiveStreamID は表示中のストリームのIDを返す
func (d *Dashboard) ActiveStreamID() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		return "", false
	}
	return d.stream.ID(), true
}
