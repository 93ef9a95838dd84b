package camera

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

var (
	videoDevicePattern = regexp.MustCompile(`^/dev/video(\d+)$`)
	resolutionPattern  = regexp.MustCompile(`Size: Discrete (\d+)x(\d+)`)
	formatPattern      = regexp.MustCompile(`\[\d+\]: '(\w+)'`)
)

// v4l2Query はv4l2-ctlを実行して標準出力を返す
type v4l2Query func(ctx context.Context, device string, args ...string) (string, error)

func runV4L2Ctl(ctx context.Context, device string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	full := append([]string{"--device", device}, args...)
	out, err := exec.CommandContext(ctx, "v4l2-ctl", full...).Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DeviceAccessError はデバイスノードはあるが開けなかったことを表す
type DeviceAccessError struct {
	Device string
	Err    error
}

func (e *DeviceAccessError) Error() string {
	return fmt.Sprintf("デバイスを開けません %s: %v", e.Device, e.Err)
}

func (e *DeviceAccessError) Unwrap() error {
	return e.Err
}

// LinuxDiscovery はLinux環境でのカメラデバイス検出を実装する
// /dev/video* を列挙し、v4l2-ctlでカラー出力できるメインカメラのみを返す
type LinuxDiscovery struct {
	listNodes func() ([]string, error)
	access    func(device string) error
	query     v4l2Query
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() *LinuxDiscovery {
	return &LinuxDiscovery{
		listNodes: func() ([]string, error) { return filepath.Glob("/dev/video*") },
		access:    openReadOnly,
		query:     runV4L2Ctl,
	}
}

func openReadOnly(device string) error {
	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	return file.Close()
}

// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
// 同じ物理カメラが複数ノードを持つ場合は最小番号のノードだけを返す。
// ノードはあるのに権限不足か使用中で1台も開けなかった場合は*DeviceAccessErrorを返す
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]string, error) {
	matches, err := d.listNodes()
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var devices []string
	var denied *DeviceAccessError
	seenCards := make(map[string]bool)

	for _, match := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if !videoDevicePattern.MatchString(match) {
			continue
		}
		if err := d.access(match); err != nil {
			if denied == nil && (errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EBUSY)) {
				denied = &DeviceAccessError{Device: match, Err: err}
			}
			continue
		}

		formats, err := d.query(ctx, match, "--list-formats-ext")
		if err != nil || !hasColorFormat(formats) {
			continue
		}

		card := d.cardName(ctx, match)
		if card != "" {
			if seenCards[card] {
				continue
			}
			seenCards[card] = true
		}

		devices = append(devices, match)
	}

	if len(devices) == 0 && denied != nil {
		return nil, denied
	}
	return devices, nil
}

// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
func (d *LinuxDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	if !videoDevicePattern.MatchString(device) {
		return false
	}
	return d.access(device) == nil
}

// GetDeviceInfo はデバイスの詳細情報を取得する
func (d *LinuxDiscovery) GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if !d.IsDeviceAvailable(ctx, device) {
		return nil, fmt.Errorf("デバイスが利用できません: %s", device)
	}

	info := &DeviceInfo{
		Device: device,
		Name:   d.cardName(ctx, device),
		Driver: "uvcvideo",
	}
	if info.Name == "" {
		info.Name = fmt.Sprintf("Camera %d", extractDeviceNumber(device))
	}

	if out, err := d.query(ctx, device, "--info"); err == nil {
		if driver := lookupField(out, "Driver name"); driver != "" {
			info.Driver = driver
		}
	}

	if out, err := d.query(ctx, device, "--list-formats-ext"); err == nil {
		info.Formats, info.Resolutions = parseFormats(out)
	}

	return info, nil
}

// cardName はv4l2-ctl --infoの"Card type"を返す
func (d *LinuxDiscovery) cardName(ctx context.Context, device string) string {
	out, err := d.query(ctx, device, "--info")
	if err != nil {
		return ""
	}
	return lookupField(out, "Card type")
}

// lookupField は"Key : value"形式の出力から値を取り出す
func lookupField(output, key string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, key) {
			continue
		}
		if parts := strings.SplitN(line, ":", 2); len(parts) == 2 {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// hasColorFormat はYUYVかMJPGを出力できるか判定する。GREYのみの赤外線カメラは除外
func hasColorFormat(formats string) bool {
	return strings.Contains(formats, "YUYV") || strings.Contains(formats, "MJPG")
}

// parseFormats は--list-formats-extの出力からフォーマットと解像度を抜き出す
func parseFormats(output string) ([]string, []Resolution) {
	var formats []string
	for _, m := range formatPattern.FindAllStringSubmatch(output, -1) {
		formats = append(formats, m[1])
	}

	seen := make(map[Resolution]bool)
	var resolutions []Resolution
	for _, m := range resolutionPattern.FindAllStringSubmatch(output, -1) {
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		r := Resolution{Width: w, Height: h}
		if !seen[r] {
			seen[r] = true
			resolutions = append(resolutions, r)
		}
	}

	return formats, resolutions
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := videoDevicePattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}

	return num
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	mu          sync.RWMutex
	devices     []string
	deviceInfos map[string]*DeviceInfo
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices []string) *MockDiscovery {
	m := &MockDiscovery{deviceInfos: make(map[string]*DeviceInfo)}
	for _, device := range devices {
		m.AddDevice(device)
	}
	return m
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string(nil), m.devices...), nil
}

// IsDeviceAvailable はモックデバイスが利用可能かチェックする
func (m *MockDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.deviceInfos[device]
	return ok
}

// GetDeviceInfo はモックデバイス情報を取得する
func (m *MockDiscovery) GetDeviceInfo(_ context.Context, device string) (*DeviceInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, exists := m.deviceInfos[device]
	if !exists {
		return nil, fmt.Errorf("デバイスが見つかりません: %s", device)
	}

	result := *info
	return &result, nil
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockDiscovery) AddDevice(device string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deviceInfos[device]; ok {
		return
	}

	m.devices = append(m.devices, device)
	m.deviceInfos[device] = &DeviceInfo{
		Device: device,
		Name:   fmt.Sprintf("Test Camera %d", len(m.devices)),
		Driver: "mock",
		Resolutions: []Resolution{
			{Width: 640, Height: 480},
			{Width: 1280, Height: 720},
		},
		Formats: []string{"MJPG"},
	}
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockDiscovery) RemoveDevice(device string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range m.devices {
		if d == device {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			break
		}
	}
	delete(m.deviceInfos, device)
}
