package camera

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const trackBuffer = 4

// track は1本の映像チャンネル
// producerはdoneをクローズするまでframes/errsに書き込み、それ以降は書き込まない
type track struct {
	id     string
	label  string
	frames chan []byte
	errs   chan error
	cancel context.CancelFunc
	done   <-chan struct{}

	stopOnce sync.Once
	stopped  atomic.Bool
}

func newTrack(label string, frames chan []byte, errs chan error, cancel context.CancelFunc, done <-chan struct{}) *track {
	return &track{
		id:     uuid.NewString(),
		label:  label,
		frames: frames,
		errs:   errs,
		cancel: cancel,
		done:   done,
	}
}

func (t *track) ID() string            { return t.id }
func (t *track) Kind() TrackKind       { return KindVideo }
func (t *track) Label() string         { return t.label }
func (t *track) Frames() <-chan []byte { return t.frames }
func (t *track) Errors() <-chan error  { return t.errs }
func (t *track) Stopped() bool         { return t.stopped.Load() }

// Stop はproducerを止め、終了を待ってからチャンネルを閉じる
func (t *track) Stop() {
	t.stopOnce.Do(func() {
		t.stopped.Store(true)
		t.cancel()
		<-t.done
		close(t.frames)
		close(t.errs)
	})
}

// mediaStream はトラックをまとめたストリーム
type mediaStream struct {
	id     string
	tracks []Track
}

func newMediaStream(tracks ...Track) *mediaStream {
	return &mediaStream{id: uuid.NewString(), tracks: tracks}
}

func (s *mediaStream) ID() string { return s.id }

func (s *mediaStream) Tracks() []Track {
	return append([]Track(nil), s.tracks...)
}

func (s *mediaStream) VideoTrack() Track {
	for _, t := range s.tracks {
		if t.Kind() == KindVideo {
			return t
		}
	}
	return nil
}

func (s *mediaStream) StopAllTracks() {
	for _, t := range s.tracks {
		t.Stop()
	}
}
