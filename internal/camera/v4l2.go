package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// V4L2Options はV4L2MediaDevicesの設定
type V4L2Options struct {
	FFmpegPath   string        // ffmpegバイナリ。空なら"ffmpeg"
	Device       string        // 固定デバイス。空なら検出結果から選ぶ
	ProbeTimeout time.Duration // テストキャプチャのタイムアウト
}

// V4L2MediaDevices はffmpegとV4L2でMediaDevicesを実装する
type V4L2MediaDevices struct {
	opts      V4L2Options
	discovery Discovery
	lookPath  func(string) (string, error)
	log       zerolog.Logger
}

// NewV4L2MediaDevices は新しいV4L2MediaDevicesを作成する
func NewV4L2MediaDevices(opts V4L2Options, discovery Discovery, log zerolog.Logger) *V4L2MediaDevices {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	return &V4L2MediaDevices{
		opts:      opts,
		discovery: discovery,
		lookPath:  exec.LookPath,
		log:       log.With().Str("component", "v4l2").Logger(),
	}
}

// Supported はffmpegが実行可能かを返す
func (m *V4L2MediaDevices) Supported() bool {
	_, err := m.lookPath(m.opts.FFmpegPath)
	return err == nil
}

// RequestVideoStream はデバイスを選び、テストキャプチャで開けることを確認してからストリームを開始する
func (m *V4L2MediaDevices) RequestVideoStream(ctx context.Context, constraints Constraints) (Stream, error) {
	if !m.Supported() {
		return nil, &AcquireError{Reason: ReasonCapabilityUnsupported, Err: ErrUnsupported}
	}

	device, err := m.selectDevice(ctx, constraints)
	if err != nil {
		return nil, NewAcquireError(device, err)
	}

	if err := checkDeviceAccess(device); err != nil {
		return nil, NewAcquireError(device, err)
	}

	capturer := NewV4L2Capturer(m.opts.FFmpegPath, device, constraints.Width, constraints.Height, constraints.FrameRate, m.log)

	m.log.Debug().Str("device", device).Int("width", constraints.Width).Int("height", constraints.Height).Msg("テストキャプチャを実行します")
	if err := capturer.Probe(ctx, m.opts.ProbeTimeout); err != nil {
		if ctx.Err() != nil {
			return nil, &AcquireError{Reason: ReasonUnclassified, Device: device, Err: ctx.Err()}
		}
		return nil, NewAcquireError(device, err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	frames := make(chan []byte, trackBuffer)
	errs := make(chan error, 1)

	done, err := capturer.StartStream(streamCtx, frames, errs)
	if err != nil {
		cancel()
		return nil, NewAcquireError(device, err)
	}

	label := device
	if info, err := m.discovery.GetDeviceInfo(ctx, device); err == nil {
		label = info.Name
	}

	m.log.Info().Str("device", device).Str("label", label).Msg("カメラストリームを開始しました")

	return newMediaStream(newTrack(label, frames, errs, cancel, done)), nil
}

// selectDevice は条件に合うデバイスを選ぶ
// V4L2には向きの情報がないため、userは最初に見つかったカメラ、environmentは最後のカメラとみなす
func (m *V4L2MediaDevices) selectDevice(ctx context.Context, constraints Constraints) (string, error) {
	if constraints.Device != "" {
		return constraints.Device, nil
	}
	if m.opts.Device != "" {
		return m.opts.Device, nil
	}

	devices, err := m.discovery.ScanDevices(ctx)
	if err != nil {
		var accessErr *DeviceAccessError
		if errors.As(err, &accessErr) {
			return accessErr.Device, accessErr
		}
		return "", fmt.Errorf("デバイスの検出に失敗: %w", err)
	}
	if len(devices) == 0 {
		return "", ErrNoDevice
	}

	if constraints.FacingMode == FacingEnvironment {
		return devices[len(devices)-1], nil
	}
	return devices[0], nil
}

// checkDeviceAccess はデバイスファイルを読み書きで開けるか確認する
func checkDeviceAccess(device string) error {
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return pathErr.Err
		}
		return err
	}
	return f.Close()
}
