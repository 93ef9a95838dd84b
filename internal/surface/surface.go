// Package surface はカメラストリームを画面に描画する表示面を提供する
//
// 表示面は画面のマウント時から常に存在し、ストリームを結び付けると
// JPEGフレームを購読者 (MJPEGクライアント) に配る。
// メタデータ取得・再生可能・エラーの通知を登録できる。
package surface

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kanshi/internal/camera"
)

var (
	// ErrNotMounted は表示面がまだマウントされていないことを表す
	ErrNotMounted = errors.New("display surface not found")
	// ErrAlreadyBound は別のストリームが結び付いていることを表す
	ErrAlreadyBound = errors.New("display surface already has a stream")
)

const viewerBuffer = 2

// Metadata は最初のフレームから得た映像の情報
type Metadata struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// State は表示面の現在の状態
type State struct {
	Mounted  bool      `json:"mounted"`
	Bound    bool      `json:"bound"`
	Playing  bool      `json:"playing"`
	StreamID string    `json:"stream_id,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
	Viewers  int       `json:"viewers"`
}

// Surface はストリームを受け取って描画する表示面
type Surface struct {
	log zerolog.Logger

	mu         sync.Mutex
	mounted    bool
	mountedCh  chan struct{}
	stream     camera.Stream
	playing    bool
	metadata   *Metadata
	canPlay    bool
	errorFired bool
	latest     []byte
	viewers    map[*Viewer]struct{}
	pumpStop   chan struct{}
	pumpDone   chan struct{}

	onMetadata []func(Metadata)
	onCanPlay  []func()
	onError    []func(error)
}

// New は新しいSurfaceを作成する。Mountされるまでストリームは結び付けられない
func New(log zerolog.Logger) *Surface {
	return &Surface{
		log:       log.With().Str("component", "surface").Logger(),
		mountedCh: make(chan struct{}),
		viewers:   make(map[*Viewer]struct{}),
	}
}

// OnMetadataReady は最初のフレームを解釈できたときに呼ばれる
func (s *Surface) OnMetadataReady(fn func(Metadata)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMetadata = append(s.onMetadata, fn)
}

// OnCanPlay は再生中かつメタデータが揃ったときに呼ばれる
func (s *Surface) OnCanPlay(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCanPlay = append(s.onCanPlay, fn)
}

// OnError はトラックのエラーや解釈できないフレームで呼ばれる。結び付け毎に1回まで
func (s *Surface) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = append(s.onError, fn)
}

// Mount は表示面を利用可能にする
func (s *Surface) Mount() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mounted {
		return
	}
	s.mounted = true
	close(s.mountedCh)
}

// Unmount はストリームを外し、表示面を利用不可にする
func (s *Surface) Unmount() {
	s.Detach()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mounted {
		return
	}
	s.mounted = false
	s.mountedCh = make(chan struct{})
}

// WaitMounted はtimeoutまで表示面のマウントを待つ
func (s *Surface) WaitMounted(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	ch := s.mountedCh
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrNotMounted, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Bind はストリームを表示面に結び付け、フレームの取り込みを始める
func (s *Surface) Bind(stream camera.Stream) error {
	track := stream.VideoTrack()
	if track == nil {
		return fmt.Errorf("ストリーム %s に映像トラックがありません", stream.ID())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mounted {
		return ErrNotMounted
	}
	if s.stream != nil {
		if s.stream.ID() == stream.ID() {
			return nil
		}
		return ErrAlreadyBound
	}

	s.stream = stream
	s.metadata = nil
	s.canPlay = false
	s.errorFired = false
	s.latest = nil
	s.pumpStop = make(chan struct{})
	s.pumpDone = make(chan struct{})

	go s.pump(track, s.pumpStop, s.pumpDone)

	s.log.Debug().Str("stream", stream.ID()).Str("track", track.Label()).Msg("ストリームを結び付けました")
	return nil
}

// Play はフレームの配信を始める
func (s *Surface) Play() error {
	s.mu.Lock()
	if s.stream == nil {
		s.mu.Unlock()
		return errors.New("再生するストリームがありません")
	}
	s.playing = true
	fire := s.markCanPlayLocked()
	s.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
	return nil
}

// Detach はストリームを外し、購読者を切断する。ストリーム自体は停止しない
func (s *Surface) Detach() {
	s.mu.Lock()
	stop, done := s.pumpStop, s.pumpDone
	s.stream = nil
	s.playing = false
	s.metadata = nil
	s.canPlay = false
	s.latest = nil
	s.pumpStop, s.pumpDone = nil, nil
	for v := range s.viewers {
		v.closeLocked()
		delete(s.viewers, v)
	}
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Bound はストリームが結び付いているかを返す
func (s *Surface) Bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// State は現在の状態を返す
func (s *Surface) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Mounted: s.mounted,
		Bound:   s.stream != nil,
		Playing: s.playing,
		Viewers: len(s.viewers),
	}
	if s.stream != nil {
		st.StreamID = s.stream.ID()
	}
	if s.metadata != nil {
		md := *s.metadata
		st.Metadata = &md
	}
	return st
}

// Snapshot は最新のフレームを返す
func (s *Surface) Snapshot() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil {
		return nil, false
	}
	return append([]byte(nil), s.latest...), true
}

// Subscribe はフレームを受け取る購読者を登録する
func (s *Surface) Subscribe() (*Viewer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil, errors.New("表示中のストリームがありません")
	}

	v := &Viewer{surface: s, ch: make(chan []byte, viewerBuffer)}
	s.viewers[v] = struct{}{}
	return v, nil
}

// pump はトラックからフレームを取り込み、通知と配信を行う
func (s *Surface) pump(track camera.Track, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	frames := track.Frames()
	errs := track.Errors()

	for {
		select {
		case <-stop:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			s.handleFrame(frame)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.fireError(err)
		}
	}
}

func (s *Surface) handleFrame(frame []byte) {
	var (
		metaFire    []func(Metadata)
		canPlayFire []func()
		metadata    Metadata
		decodeErr   error
	)

	s.mu.Lock()
	if s.stream == nil {
		s.mu.Unlock()
		return
	}

	if s.metadata == nil {
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame))
		if err != nil {
			decodeErr = fmt.Errorf("フレームを解釈できません: %w", err)
		} else {
			metadata = Metadata{Width: cfg.Width, Height: cfg.Height}
			s.metadata = &metadata
			metaFire = append(metaFire, s.onMetadata...)
			canPlayFire = s.markCanPlayLocked()
		}
	}

	if decodeErr == nil {
		s.latest = frame
		if s.playing {
			for v := range s.viewers {
				v.offerLocked(frame)
			}
		}
	}
	s.mu.Unlock()

	if decodeErr != nil {
		s.fireError(decodeErr)
		return
	}
	for _, fn := range metaFire {
		fn(metadata)
	}
	for _, fn := range canPlayFire {
		fn()
	}
}

// markCanPlayLocked は再生可能通知を一度だけ返す
func (s *Surface) markCanPlayLocked() []func() {
	if s.canPlay || !s.playing || s.metadata == nil {
		return nil
	}
	s.canPlay = true
	return append([]func(){}, s.onCanPlay...)
}

func (s *Surface) fireError(err error) {
	s.mu.Lock()
	if s.stream == nil || s.errorFired {
		s.mu.Unlock()
		return
	}
	s.errorFired = true
	fire := append([]func(error){}, s.onError...)
	s.mu.Unlock()

	s.log.Warn().Err(err).Msg("映像の再生でエラーが発生しました")
	for _, fn := range fire {
		fn(err)
	}
}

// Viewer は表示面のフレームを受け取る購読者
type Viewer struct {
	surface *Surface
	ch      chan []byte
	closed  bool
}

// C はフレームを受け取るチャンネル。表示面から外れるとクローズされる
func (v *Viewer) C() <-chan []byte {
	return v.ch
}

// Close は購読をやめる
func (v *Viewer) Close() {
	v.surface.mu.Lock()
	defer v.surface.mu.Unlock()

	v.closeLocked()
	delete(v.surface.viewers, v)
}

func (v *Viewer) closeLocked() {
	if v.closed {
		return
	}
	v.closed = true
	close(v.ch)
}

// offerLocked は遅い購読者の古いフレームを捨てて最新を入れる
func (v *Viewer) offerLocked(frame []byte) {
	if v.closed {
		return
	}
	select {
	case v.ch <- frame:
		return
	default:
	}
	select {
	case <-v.ch:
	default:
	}
	select {
	case v.ch <- frame:
	default:
	}
}
