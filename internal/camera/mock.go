package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"
)

// MockMediaDevices はテスト用のMediaDevices実装
// 合成JPEGを一定間隔で流し、失敗や取得の保留をテストから制御できる
type MockMediaDevices struct {
	mu sync.Mutex

	supported     bool
	failure       *AcquireError
	hold          chan struct{}
	holdStubborn  bool
	frameInterval time.Duration

	requests int
	streams  []Stream
	lastReq  Constraints
}

// NewMockMediaDevices は新しいMockMediaDevicesを作成する
func NewMockMediaDevices() *MockMediaDevices {
	return &MockMediaDevices{
		supported:     true,
		frameInterval: 20 * time.Millisecond,
	}
}

// SetSupported は映像取得機能の有無を設定する
func (m *MockMediaDevices) SetSupported(supported bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supported = supported
}

// SetFailure は次回以降の要求をreasonで失敗させる。空文字で解除
func (m *MockMediaDevices) SetFailure(reason Reason) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if reason == "" {
		m.failure = nil
		return
	}
	m.failure = &AcquireError{Reason: reason, Device: "/dev/video0", Err: fmt.Errorf("モック: %s", reason)}
}

// SetFrameInterval は合成フレームの間隔を設定する
func (m *MockMediaDevices) SetFrameInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frameInterval = d
}

// Hold は以降の要求をreleaseが呼ばれるまで保留させる
func (m *MockMediaDevices) Hold() (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan struct{})
	m.hold = ch

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.hold == ch {
				m.hold = nil
			}
			m.mu.Unlock()
			close(ch)
		})
	}
}

// SetHoldIgnoresCancel はtrueなら保留中のコンテキストキャンセルを無視する
// 閉じた後にストリームが届く場合の再現に使う
func (m *MockMediaDevices) SetHoldIgnoresCancel(ignore bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdStubborn = ignore
}

// Requests は要求された回数を返す
func (m *MockMediaDevices) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// LastConstraints は最後に要求された条件を返す
func (m *MockMediaDevices) LastConstraints() Constraints {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq
}

// Streams はこれまでに渡したストリームを返す
func (m *MockMediaDevices) Streams() []Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Stream(nil), m.streams...)
}

// Supported は映像取得機能の有無を返す
func (m *MockMediaDevices) Supported() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supported
}

// RequestVideoStream は合成フレームを流すストリームを返す
func (m *MockMediaDevices) RequestVideoStream(ctx context.Context, constraints Constraints) (Stream, error) {
	m.mu.Lock()
	m.requests++
	m.lastReq = constraints
	supported := m.supported
	failure := m.failure
	hold := m.hold
	stubborn := m.holdStubborn
	interval := m.frameInterval
	m.mu.Unlock()

	if !supported {
		return nil, &AcquireError{Reason: ReasonCapabilityUnsupported, Err: ErrUnsupported}
	}

	if hold != nil && stubborn {
		<-hold
	} else if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, &AcquireError{Reason: ReasonUnclassified, Err: ctx.Err()}
		}
	}

	if failure != nil {
		return nil, failure
	}

	frame, err := syntheticFrame(constraints.Width, constraints.Height)
	if err != nil {
		return nil, NewAcquireError("", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	frames := make(chan []byte, trackBuffer)
	errs := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-streamCtx.Done():
				return
			case <-ticker.C:
				select {
				case frames <- frame:
				default:
				}
			}
		}
	}()

	stream := newMediaStream(newTrack("Mock Camera", frames, errs, cancel, done))

	m.mu.Lock()
	m.streams = append(m.streams, stream)
	m.mu.Unlock()

	return stream, nil
}

// syntheticFrame は単色のJPEGを作る
func syntheticFrame(width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		width, height = 1280, 720
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 0x40
	}
	img.SetGray(0, 0, color.Gray{Y: 0xff})

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 50}); err != nil {
		return nil, fmt.Errorf("合成フレームの作成に失敗: %w", err)
	}
	return buf.Bytes(), nil
}
