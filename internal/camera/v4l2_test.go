package camera

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestV4L2(discovery Discovery, opts V4L2Options, ffmpegFound bool) *V4L2MediaDevices {
	m := NewV4L2MediaDevices(opts, discovery, zerolog.Nop())
	m.lookPath = func(name string) (string, error) {
		if ffmpegFound {
			return "/usr/bin/" + name, nil
		}
		return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	return m
}

func requireReason(t *testing.T, err error, want Reason) {
	t.Helper()

	var acqErr *AcquireError
	require.True(t, errors.As(err, &acqErr), "AcquireError expected, got %v", err)
	assert.Equal(t, want, acqErr.Reason)
}

func TestV4L2MediaDevices_Unsupported(t *testing.T) {
	m := newTestV4L2(NewMockDiscovery(nil), V4L2Options{}, false)

	assert.False(t, m.Supported())

	stream, err := m.RequestVideoStream(context.Background(), DefaultConstraints())
	assert.Nil(t, stream)
	requireReason(t, err, ReasonCapabilityUnsupported)
	assert.Contains(t, err.Error(), "not supported")
}

func TestV4L2MediaDevices_NoDevice(t *testing.T) {
	m := newTestV4L2(NewMockDiscovery(nil), V4L2Options{}, true)

	_, err := m.RequestVideoStream(context.Background(), DefaultConstraints())
	requireReason(t, err, ReasonDeviceNotFound)
}

func TestV4L2MediaDevices_MissingFixedDevice(t *testing.T) {
	m := newTestV4L2(NewMockDiscovery(nil), V4L2Options{Device: "/dev/video999"}, true)

	_, err := m.RequestVideoStream(context.Background(), DefaultConstraints())
	requireReason(t, err, ReasonDeviceNotFound)
}

func TestV4L2MediaDevices_SelectDevice(t *testing.T) {
	ctx := context.Background()
	m := newTestV4L2(NewMockDiscovery([]string{"/dev/video0", "/dev/video2"}), V4L2Options{}, true)

	user := DefaultConstraints()
	device, err := m.selectDevice(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "/dev/video0", device)

	env := user
	env.FacingMode = FacingEnvironment
	device, err = m.selectDevice(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, "/dev/video2", device)

	explicit := user
	explicit.Device = "/dev/video5"
	device, err = m.selectDevice(ctx, explicit)
	require.NoError(t, err)
	assert.Equal(t, "/dev/video5", device)
}

func TestV4L2MediaDevices_DeniedNodes(t *testing.T) {
	tests := []struct {
		name   string
		errno  syscall.Errno
		reason Reason
	}{
		{name: "権限がない", errno: syscall.EACCES, reason: ReasonPermissionDenied},
		{name: "使用中", errno: syscall.EBUSY, reason: ReasonDeviceBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes := []string{"/dev/video0", "/dev/video1"}
			m := newTestV4L2(newHookedDiscovery(nodes, denyNodes(tt.errno, nodes...)), V4L2Options{}, true)

			stream, err := m.RequestVideoStream(context.Background(), DefaultConstraints())
			assert.Nil(t, stream)
			requireReason(t, err, tt.reason)

			var acqErr *AcquireError
			require.True(t, errors.As(err, &acqErr))
			assert.Equal(t, "/dev/video0", acqErr.Device)
		})
	}
}

// newScriptedV4L2 は偽のffmpegと一時ファイルのデバイスでV4L2MediaDevicesを作る
func newScriptedV4L2(t *testing.T, body string) (*V4L2MediaDevices, Constraints) {
	t.Helper()

	device := filepath.Join(t.TempDir(), "video0")
	require.NoError(t, os.WriteFile(device, nil, 0o600))

	m := NewV4L2MediaDevices(V4L2Options{
		FFmpegPath:   writeFakeFFmpeg(t, body),
		ProbeTimeout: 2 * time.Second,
	}, NewMockDiscovery(nil), zerolog.Nop())

	constraints := DefaultConstraints()
	constraints.Device = device
	return m, constraints
}

func TestV4L2MediaDevices_RequestVideoStream(t *testing.T) {
	m, constraints := newScriptedV4L2(t, `case "$*" in
*image2pipe*) while :; do `+printFrame+`; sleep 0.02; done ;;
*) `+printFrame+` ;;
esac`)
	require.True(t, m.Supported())

	stream, err := m.RequestVideoStream(context.Background(), constraints)
	require.NoError(t, err)

	track := stream.VideoTrack()
	require.NotNil(t, track)
	assert.Equal(t, constraints.Device, track.Label())
	assert.Equal(t, jpegLike("frame"), receiveFrame(t, track.Frames()))

	stream.StopAllTracks()
	assert.True(t, track.Stopped())

	// 停止後はチャンネルが閉じている
	for range track.Frames() {
	}
	_, ok := <-track.Errors()
	assert.False(t, ok)
}

func TestV4L2MediaDevices_ProbeClassifies(t *testing.T) {
	m, constraints := newScriptedV4L2(t, `echo "Cannot open video device: Permission denied" >&2; exit 1`)

	stream, err := m.RequestVideoStream(context.Background(), constraints)
	assert.Nil(t, stream)
	requireReason(t, err, ReasonPermissionDenied)
}

func TestV4L2MediaDevices_StreamDiesMidway(t *testing.T) {
	m, constraints := newScriptedV4L2(t, `case "$*" in
*image2pipe*) `+printFrame+`; echo "No such device" >&2; exit 1 ;;
*) `+printFrame+` ;;
esac`)

	stream, err := m.RequestVideoStream(context.Background(), constraints)
	require.NoError(t, err)
	defer stream.StopAllTracks()

	select {
	case err := <-stream.VideoTrack().Errors():
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exit status 1")
	case <-time.After(2 * time.Second):
		t.Fatal("キャプチャの終了がエラーとして届きません")
	}
}
