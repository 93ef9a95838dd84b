package surface

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"kanshi/internal/camera"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openMockStream(t *testing.T) camera.Stream {
	t.Helper()

	devices := camera.NewMockMediaDevices()
	devices.SetFrameInterval(5 * time.Millisecond)

	stream, err := devices.RequestVideoStream(context.Background(), camera.DefaultConstraints())
	require.NoError(t, err)
	t.Cleanup(stream.StopAllTracks)
	return stream
}

func TestSurface_WaitMounted(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.WaitMounted(context.Background(), 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotMounted))

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Mount()
	}()
	assert.NoError(t, s.WaitMounted(context.Background(), time.Second))

	// マウント済みなら即座に戻る
	assert.NoError(t, s.WaitMounted(context.Background(), 0))
}

func TestSurface_BindRequiresMount(t *testing.T) {
	s := New(zerolog.Nop())
	stream := openMockStream(t)

	assert.ErrorIs(t, s.Bind(stream), ErrNotMounted)
	assert.False(t, s.Bound())
}

func TestSurface_BindPlayNotifications(t *testing.T) {
	s := New(zerolog.Nop())
	s.Mount()

	metadata := make(chan Metadata, 1)
	var canPlay atomic.Int32
	s.OnMetadataReady(func(md Metadata) { metadata <- md })
	s.OnCanPlay(func() { canPlay.Add(1) })

	stream := openMockStream(t)
	require.NoError(t, s.Bind(stream))
	require.NoError(t, s.Play())

	select {
	case md := <-metadata:
		assert.Equal(t, Metadata{Width: 1280, Height: 720}, md)
	case <-time.After(time.Second):
		t.Fatal("メタデータの通知が届きません")
	}

	assert.Eventually(t, func() bool { return canPlay.Load() == 1 }, time.Second, 5*time.Millisecond)

	st := s.State()
	assert.True(t, st.Bound)
	assert.True(t, st.Playing)
	assert.Equal(t, stream.ID(), st.StreamID)

	_, ok := s.Snapshot()
	assert.True(t, ok)

	// 同じストリームの再結び付けは何もしない
	assert.NoError(t, s.Bind(stream))

	// 別のストリームは拒否する
	other := openMockStream(t)
	assert.ErrorIs(t, s.Bind(other), ErrAlreadyBound)

	s.Detach()
	assert.False(t, s.Bound())
	_, ok = s.Snapshot()
	assert.False(t, ok)

	// 再生可能通知は結び付け毎に1回
	assert.Equal(t, int32(1), canPlay.Load())
}

func TestSurface_Viewer(t *testing.T) {
	s := New(zerolog.Nop())
	s.Mount()

	_, err := s.Subscribe()
	assert.Error(t, err, "ストリームがない間は購読できない")

	stream := openMockStream(t)
	require.NoError(t, s.Bind(stream))
	require.NoError(t, s.Play())

	v, err := s.Subscribe()
	require.NoError(t, err)
	assert.Equal(t, 1, s.State().Viewers)

	select {
	case frame := <-v.C():
		assert.NotEmpty(t, frame)
	case <-time.After(time.Second):
		t.Fatal("フレームが届きません")
	}

	s.Detach()

	// Detachで購読者のチャンネルが閉じる
	for range v.C() {
	}
	v.Close()
	assert.Equal(t, 0, s.State().Viewers)
}

func TestSurface_TrackStopEndsPump(t *testing.T) {
	s := New(zerolog.Nop())
	s.Mount()

	stream := openMockStream(t)
	require.NoError(t, s.Bind(stream))

	stream.StopAllTracks()
	s.Detach()
	s.Unmount()

	assert.False(t, s.State().Mounted)
	assert.ErrorIs(t, s.Bind(openMockStream(t)), ErrNotMounted)
}

func TestSurface_PlayWithoutStream(t *testing.T) {
	s := New(zerolog.Nop())
	s.Mount()
	assert.Error(t, s.Play())
}

func TestSurface_DecodeErrorFiresOnce(t *testing.T) {
	s := New(zerolog.Nop())
	s.Mount()

	var errorsSeen atomic.Int32
	s.OnError(func(error) { errorsSeen.Add(1) })

	tr := newFakeTrack()
	require.NoError(t, s.Bind(&fakeStream{track: tr}))

	tr.frames <- []byte("not a jpeg")
	tr.frames <- []byte("still not a jpeg")

	assert.Eventually(t, func() bool { return errorsSeen.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), errorsSeen.Load())

	s.Detach()
	tr.Stop()
}

type fakeTrack struct {
	frames  chan []byte
	errs    chan error
	stopped atomic.Bool
}

func newFakeTrack() *fakeTrack {
	return &fakeTrack{frames: make(chan []byte, 4), errs: make(chan error, 1)}
}

func (f *fakeTrack) ID() string             { return "fake-track" }
func (f *fakeTrack) Kind() camera.TrackKind { return camera.KindVideo }
func (f *fakeTrack) Label() string          { return "fake" }
func (f *fakeTrack) Frames() <-chan []byte  { return f.frames }
func (f *fakeTrack) Errors() <-chan error   { return f.errs }
func (f *fakeTrack) Stopped() bool          { return f.stopped.Load() }
func (f *fakeTrack) Stop() {
	if f.stopped.CompareAndSwap(false, true) {
		close(f.frames)
		close(f.errs)
	}
}

type fakeStream struct {
	track *fakeTrack
}

func (f *fakeStream) ID() string               { return "fake-stream" }
func (f *fakeStream) Tracks() []camera.Track   { return []camera.Track{f.track} }
func (f *fakeStream) VideoTrack() camera.Track { return f.track }
func (f *fakeStream) StopAllTracks() { f.track.Stop() }
