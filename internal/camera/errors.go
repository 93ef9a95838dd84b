package camera

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"syscall"
)

// Reason はカメラ取得失敗の分類
type Reason string

const (
	ReasonPermissionDenied      Reason = "PermissionDenied"
	ReasonDeviceNotFound        Reason = "DeviceNotFound"
	ReasonDeviceBusy            Reason = "DeviceBusy"
	ReasonSurfaceNotFound       Reason = "SurfaceNotFound"
	ReasonCapabilityUnsupported Reason = "CapabilityUnsupported"
	ReasonUnclassified          Reason = "Unclassified"
)

// ErrUnsupported はこのホストに映像取得手段がないことを表す
var ErrUnsupported = errors.New("video capture is not supported on this host")

// ErrNoDevice はカメラが1台も見つからないことを表す
var ErrNoDevice = errors.New("no camera device found")

// AcquireError はストリーム取得の失敗とその分類
type AcquireError struct {
	Reason Reason
	Device string
	Err    error
}

func (e *AcquireError) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("%s (%s): %v", e.Reason, e.Device, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// NewAcquireError はerrを分類してAcquireErrorを作る
func NewAcquireError(device string, err error) *AcquireError {
	return &AcquireError{Reason: Classify(err), Device: device, Err: err}
}

// ReasonOf はerrに含まれる分類を返す。AcquireErrorでなければ分類し直す
func ReasonOf(err error) Reason {
	var acqErr *AcquireError
	if errors.As(err, &acqErr) {
		return acqErr.Reason
	}
	return Classify(err)
}

// stderrに出るffmpeg/v4l2のメッセージと分類の対応
var stderrReasons = []struct {
	needle string
	reason Reason
}{
	{"permission denied", ReasonPermissionDenied},
	{"operation not permitted", ReasonPermissionDenied},
	{"device or resource busy", ReasonDeviceBusy},
	{"no such file or directory", ReasonDeviceNotFound},
	{"no such device", ReasonDeviceNotFound},
}

// Classify はOSエラーやffmpegの出力から失敗の分類を判定する
func Classify(err error) Reason {
	if err == nil {
		return ReasonUnclassified
	}

	var acqErr *AcquireError
	if errors.As(err, &acqErr) {
		return acqErr.Reason
	}

	switch {
	case errors.Is(err, ErrUnsupported), errors.Is(err, exec.ErrNotFound):
		return ReasonCapabilityUnsupported
	case errors.Is(err, ErrNoDevice), errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENODEV):
		return ReasonDeviceNotFound
	case errors.Is(err, fs.ErrPermission):
		return ReasonPermissionDenied
	case errors.Is(err, syscall.EBUSY):
		return ReasonDeviceBusy
	}

	msg := strings.ToLower(err.Error())
	for _, sr := range stderrReasons {
		if strings.Contains(msg, sr.needle) {
			return sr.reason
		}
	}

	return ReasonUnclassified
}
