package dashboard

import (
	"errors"
	"fmt"
	"time"

	"kanshi/internal/camera"
)

var (
	// ErrAcquisitionInProgress は既にカメラを開いている途中であることを表す
	ErrAcquisitionInProgress = errors.New("camera acquisition already in progress")
	// ErrAcquisitionAborted は取得中にカメラが閉じられたことを表す
	ErrAcquisitionAborted = errors.New("camera acquisition aborted by close")
	// ErrCameraClosed はカメラが開いていない操作であることを表す
	ErrCameraClosed = errors.New("camera is not open")
)

const noticePrefix = "Could not access camera. "

// Notice はカメラ取得失敗時に利用者へ示すブロッキングな通知
type Notice struct {
	Message string        `json:"message"`
	Reason  camera.Reason `json:"reason"`
	At      time.Time     `json:"at"`
}

// OpenError はカメラ取得の失敗。利用者向けの通知を持つ
type OpenError struct {
	Notice Notice
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("カメラを開けません (%s): %v", e.Notice.Reason, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// noticeMessage は失敗の分類から利用者向けのメッセージを作る
func noticeMessage(reason camera.Reason, err error) string {
	switch reason {
	case camera.ReasonPermissionDenied:
		return noticePrefix + "Please allow camera permissions and try again."
	case camera.ReasonDeviceNotFound:
		return noticePrefix + "No camera device found."
	case camera.ReasonDeviceBusy:
		return noticePrefix + "Camera is already in use by another application."
	case camera.ReasonCapabilityUnsupported:
		return noticePrefix + "Video capture is not supported on this host."
	case camera.ReasonSurfaceNotFound:
		return noticePrefix + "Video display surface not found after retry."
	}

	if err != nil {
		var acqErr *camera.AcquireError
		if errors.As(err, &acqErr) && acqErr.Err != nil {
			err = acqErr.Err
		}
		if msg := err.Error(); msg != "" {
			return noticePrefix + msg
		}
	}
	return noticePrefix + "Unknown error occurred."
}

// alertMessage はアラートログに残す失敗の記録
func alertMessage(reason camera.Reason) string {
	if reason == "" {
		reason = camera.ReasonUnclassified
	}
	return "Camera error: " + string(reason)
}
