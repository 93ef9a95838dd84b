package dashboard

import (
	"fmt"
)

// Phase はカメラセッションの段階
type Phase string

const (
	PhaseOffline   Phase = "offline"   // ストリームなし (初期状態)
	PhaseAcquiring Phase = "acquiring" // ストリームを要求中
	PhaseOnline    Phase = "online"    // ストリームを表示中
)

// DetectionMode は検知モードの選択値。画面上の状態のみで動作には影響しない
type DetectionMode string

const (
	ModeAuto      DetectionMode = "auto"
	ModeManual    DetectionMode = "manual"
	ModeScheduled DetectionMode = "scheduled"
)

// ParseDetectionMode は文字列を検知モードに変換する
func ParseDetectionMode(s string) (DetectionMode, error) {
	switch m := DetectionMode(s); m {
	case ModeAuto, ModeManual, ModeScheduled:
		return m, nil
	default:
		return "", fmt.Errorf("不明な検知モード: %q", s)
	}
}

// SystemStatus はヘッダーに表示するシステム状態
type SystemStatus string

const (
	StatusOnline  SystemStatus = "online"
	StatusOffline SystemStatus = "offline"
)

// SessionState は画面が保持するセッションの状態
type SessionState struct {
	CameraOpen    bool          `json:"camera_open"`
	Recording     bool          `json:"recording"`
	DetectionMode DetectionMode `json:"detection_mode"`
	SystemStatus  SystemStatus  `json:"system_status"`
	Phase         Phase         `json:"phase"`
}

// InitialState はマウント直後の状態を返す
func InitialState() SessionState {
	return SessionState{
		CameraOpen:    false,
		Recording:     false,
		DetectionMode: ModeAuto,
		SystemStatus:  StatusOffline,
		Phase:         PhaseOffline,
	}
}

// offline はカメラ関連の項目だけを初期値に戻す。検知モードは保持する
func (s SessionState) offline() SessionState {
	s.CameraOpen = false
	s.Recording = false
	s.SystemStatus = StatusOffline
	s.Phase = PhaseOffline
	return s
}

const (
	MinSensitivity     = 1
	MaxSensitivity     = 10
	DefaultSensitivity = 5
)

// Settings は設定パネルの値。いずれも画面上の状態のみ
type Settings struct {
	Sensitivity   int  `json:"sensitivity"`
	Notifications bool `json:"notifications"`
}

// DefaultSettings は設定パネルの初期値を返す
func DefaultSettings() Settings {
	return Settings{
		Sensitivity:   DefaultSensitivity,
		Notifications: true,
	}
}
