package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// V4L2Capturer はffmpeg経由でV4L2デバイスからMJPEGフレームを取得する
type V4L2Capturer struct {
	ffmpeg     string
	devicePath string
	width      int
	height     int
	fps        int
	log        zerolog.Logger
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(ffmpeg, devicePath string, width, height, fps int, log zerolog.Logger) *V4L2Capturer {
	return &V4L2Capturer{
		ffmpeg:     ffmpeg,
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
		log:        log,
	}
}

func (c *V4L2Capturer) inputArgs() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-framerate", strconv.Itoa(c.fps),
		"-i", c.devicePath,
	}
}

// Probe は1フレームだけ取得してデバイスを開けるか確かめる
// 失敗時のエラーにはffmpegのstderrを含めるので、Classifyで分類できる
func (c *V4L2Capturer) Probe(ctx context.Context, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(c.inputArgs(), "-frames:v", "1", "-f", "image2", "-c:v", "mjpeg", "-")
	cmd := exec.CommandContext(probeCtx, c.ffmpeg, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if probeCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("テストキャプチャがタイムアウトしました (%s): %w", timeout, probeCtx.Err())
		}
		if errors.Is(err, exec.ErrNotFound) {
			return err
		}
		return fmt.Errorf("テストキャプチャに失敗: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	if !bytes.HasPrefix(stdout.Bytes(), jpegSOI) {
		return fmt.Errorf("テストキャプチャの出力がJPEGではありません (%d bytes)", stdout.Len())
	}

	return nil
}

// StartStream は連続キャプチャを開始する
// ctxがキャンセルされるとffmpegを終了し、doneをクローズする。
// ffmpegが自分で終了した場合はdoneの前にerrsへ1件送る
func (c *V4L2Capturer) StartStream(ctx context.Context, frames chan<- []byte, errs chan<- error) (<-chan struct{}, error) {
	args := append(c.inputArgs(), "-f", "image2pipe", "-c:v", "mjpeg", "-q:v", "3", "-")
	cmd := exec.CommandContext(ctx, c.ffmpeg, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderrパイプの作成に失敗: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}

	// stderrは最後の1行だけ覚えておく。終了理由の分類に使う
	var lastLine string
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			lastLine = scanner.Text()
			c.log.Debug().Str("device", c.devicePath).Msg(lastLine)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)

		readErr := readJPEGFrames(ctx, stdout, frames)
		if readErr != nil {
			_ = cmd.Process.Kill()
		}
		// Waitはパイプを閉じるので、stderrを読み切ってから呼ぶ
		<-stderrDone
		waitErr := cmd.Wait()

		// キャンセルによる終了はエラーにしない
		if ctx.Err() != nil {
			return
		}
		err := streamEndError(readErr, waitErr, lastLine)
		c.log.Warn().Err(err).Str("device", c.devicePath).Msg("キャプチャが途中で停止しました")
		select {
		case errs <- err:
		default:
		}
	}()

	return done, nil
}

// streamEndError はffmpegが自分で終了した理由をまとめる
func streamEndError(readErr, waitErr error, lastLine string) error {
	err := readErr
	if err == nil {
		err = waitErr
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	if lastLine != "" {
		return fmt.Errorf("ffmpegが終了しました: %w (stderr: %s)", err, lastLine)
	}
	return fmt.Errorf("ffmpegが終了しました: %w", err)
}

// readJPEGFrames はrからJPEGを切り出してframesに送る
func readJPEGFrames(ctx context.Context, r io.Reader, frames chan<- []byte) error {
	buf := make([]byte, 256*1024)
	var pending bytes.Buffer

	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending.Write(buf[:n])
			for _, frame := range splitJPEGFrames(&pending) {
				select {
				case frames <- frame:
				case <-ctx.Done():
					return nil
				default:
					// 表示が追いつかない場合は古いフレームを捨てる
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("フレーム読み取りエラー: %w", err)
		}
	}
}

// splitJPEGFrames はpendingから完全なJPEGをすべて取り出し、残りをpendingに戻す
func splitJPEGFrames(pending *bytes.Buffer) [][]byte {
	var frames [][]byte
	data := pending.Bytes()

	for {
		start := bytes.Index(data, jpegSOI)
		if start == -1 {
			data = nil
			break
		}

		end := bytes.Index(data[start+2:], jpegEOI)
		if end == -1 {
			data = data[start:]
			break
		}
		end += start + 2 + len(jpegEOI)

		frame := make([]byte, end-start)
		copy(frame, data[start:end])
		frames = append(frames, frame)
		data = data[end:]
	}

	rest := append([]byte(nil), data...)
	pending.Reset()
	pending.Write(rest)

	return frames
}
