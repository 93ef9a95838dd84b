package camera

import (
	"context"
)

// FacingMode は希望するカメラの向き
type FacingMode string

const (
	FacingUser        FacingMode = "user"        // 利用者側を向いたカメラ
	FacingEnvironment FacingMode = "environment" // 外側を向いたカメラ
)

// TrackKind はトラックの種類
type TrackKind string

// KindVideo は映像トラック
const KindVideo TrackKind = "video"

// Constraints は映像ストリームの要求条件
// Width/Heightは希望値で、デバイスが対応しない場合はffmpeg側で近い値になる
type Constraints struct {
	Width      int
	Height     int
	FrameRate  int
	FacingMode FacingMode
	Device     string // 指定があれば検出を行わずこのデバイスを開く
}

// DefaultConstraints は1280x720・利用者向きの既定条件を返す
func DefaultConstraints() Constraints {
	return Constraints{
		Width:      1280,
		Height:     720,
		FrameRate:  15,
		FacingMode: FacingUser,
	}
}

// MediaDevices はカメラストリームを開く機能
type MediaDevices interface {
	// RequestVideoStream は映像のみのストリームを要求する
	// 失敗時は *AcquireError を返す
	RequestVideoStream(ctx context.Context, constraints Constraints) (Stream, error)

	// Supported はこのホストで映像取得が可能かを返す
	Supported() bool
}

// Stream は開いているカメラストリームのハンドル
type Stream interface {
	ID() string
	Tracks() []Track
	// VideoTrack は最初の映像トラックを返す
	VideoTrack() Track
	// StopAllTracks は全トラックを停止してデバイスを解放する。何度呼んでもよい
	StopAllTracks()
}

// Track はストリーム内の個別のメディアチャンネル
type Track interface {
	ID() string
	Kind() TrackKind
	Label() string
	// Frames はJPEGフレームを流す。Stop後にクローズされる
	Frames() <-chan []byte
	// Errors は取得中のエラーを流す
	Errors() <-chan error
	Stop()
	Stopped() bool
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device      string       `json:"device"`      // デバイスパス
	Name        string       `json:"name"`        // デバイス名
	Driver      string       `json:"driver"`      // ドライバー名
	Resolutions []Resolution `json:"resolutions"` // サポートされる解像度
	Formats     []string     `json:"formats"`     // サポートされるフォーマット
}

// Resolution はカメラの解像度を表す
type Resolution struct {
	Width  int `json:"width"`  // 幅
	Height int `json:"height"` // 高さ
}
