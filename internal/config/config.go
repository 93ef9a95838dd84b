package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"kanshi/internal/logger"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Camera    CameraConfig    `yaml:"camera"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Log       logger.Config   `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // 読み込みタイムアウト
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // 書き込みタイムアウト
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // グレースフルシャットダウンの猶予
}

// CameraConfig はカメラ取得の設定
type CameraConfig struct {
	Device     string `yaml:"device"`      // 空なら自動検出したメインカメラを使う
	FFmpegPath string `yaml:"ffmpeg_path"` // ffmpegバイナリ
	Width      int    `yaml:"width"`       // 希望する画像幅
	Height     int    `yaml:"height"`      // 希望する画像高さ
	FPS        int    `yaml:"fps"`         // フレームレート
	FacingMode string `yaml:"facing_mode"` // user / environment

	// 取得前の表示面待ち (上限付き)
	SurfaceWait time.Duration `yaml:"surface_wait"`
	// ffmpegのテストキャプチャのタイムアウト
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// DashboardConfig は画面表示に関わる設定
type DashboardConfig struct {
	ClockInterval time.Duration `yaml:"clock_interval"` // 時計の更新間隔
	Title         string        `yaml:"title"`          // ヘッダーのタイトル
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    0, // ストリーミング用にタイムアウト無効化
			ShutdownTimeout: 5 * time.Second,
		},
		Camera: CameraConfig{
			FFmpegPath:   "ffmpeg",
			Width:        1280,
			Height:       720,
			FPS:          15,
			FacingMode:   "user",
			SurfaceWait:  600 * time.Millisecond,
			ProbeTimeout: 10 * time.Second,
		},
		Dashboard: DashboardConfig{
			ClockInterval: time.Second,
			Title:         "Intruder Detection System",
		},
		Log: logger.Config{
			Level:   "info",
			Console: true,
		},
	}
}

// Load は設定を読み込む
// pathが空ならデフォルト値と環境変数のみを使う
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// mergeFile はYAMLファイルの内容をデフォルト値の上に重ねる
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("設定ファイルが見つかりません: %s", path)
		}
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗: %w", err)
	}

	return nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.Device = getEnvOrDefault("KANSHI_DEVICE", c.Camera.Device)
	c.Camera.FFmpegPath = getEnvOrDefault("KANSHI_FFMPEG", c.Camera.FFmpegPath)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// カメラ設定の検証
	if c.Camera.Width <= 0 || c.Camera.Width > 4096 {
		return fmt.Errorf("無効な幅: %d", c.Camera.Width)
	}
	if c.Camera.Height <= 0 || c.Camera.Height > 4096 {
		return fmt.Errorf("無効な高さ: %d", c.Camera.Height)
	}
	if c.Camera.FPS <= 0 || c.Camera.FPS > 60 {
		return fmt.Errorf("無効なFPS値: %d", c.Camera.FPS)
	}
	switch c.Camera.FacingMode {
	case "user", "environment":
	default:
		return fmt.Errorf("無効なfacing_mode: %q", c.Camera.FacingMode)
	}
	if c.Camera.SurfaceWait < 0 {
		return fmt.Errorf("surface_waitが負の値です: %s", c.Camera.SurfaceWait)
	}

	if c.Dashboard.ClockInterval <= 0 {
		return fmt.Errorf("無効な時計の更新間隔: %s", c.Dashboard.ClockInterval)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
