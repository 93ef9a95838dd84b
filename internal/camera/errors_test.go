package camera

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"nil", nil, ReasonUnclassified},
		{"ffmpegなし", &exec.Error{Name: "ffmpeg", Err: exec.ErrNotFound}, ReasonCapabilityUnsupported},
		{"非対応", ErrUnsupported, ReasonCapabilityUnsupported},
		{"カメラなし", ErrNoDevice, ReasonDeviceNotFound},
		{"ENOENT", syscall.ENOENT, ReasonDeviceNotFound},
		{"ENODEV", syscall.ENODEV, ReasonDeviceNotFound},
		{"EACCES", syscall.EACCES, ReasonPermissionDenied},
		{"PathError EACCES", &fs.PathError{Op: "open", Path: "/dev/video0", Err: syscall.EACCES}, ReasonPermissionDenied},
		{"EBUSY", syscall.EBUSY, ReasonDeviceBusy},
		{"ffmpeg busy", errors.New("テストキャプチャに失敗: exit status 1 (stderr: /dev/video0: Device or resource busy)"), ReasonDeviceBusy},
		{"ffmpeg permission", errors.New("(stderr: /dev/video0: Permission denied)"), ReasonPermissionDenied},
		{"ffmpeg missing device", errors.New("(stderr: /dev/video7: No such file or directory)"), ReasonDeviceNotFound},
		{"不明", errors.New("Invalid data found when processing input"), ReasonUnclassified},
		{"wrapped AcquireError", fmt.Errorf("wrap: %w", &AcquireError{Reason: ReasonDeviceBusy, Err: errors.New("x")}), ReasonDeviceBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestAcquireError(t *testing.T) {
	err := NewAcquireError("/dev/video0", syscall.EACCES)

	assert.Equal(t, ReasonPermissionDenied, err.Reason)
	assert.Contains(t, err.Error(), "PermissionDenied")
	assert.Contains(t, err.Error(), "/dev/video0")
	assert.ErrorIs(t, err, syscall.EACCES)
	assert.Equal(t, ReasonPermissionDenied, ReasonOf(fmt.Errorf("open: %w", err)))
}
