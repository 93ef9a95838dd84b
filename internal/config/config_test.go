package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestConfigLoad は設定の読み込みをテストする
func TestConfigLoad(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg == nil {
		t.Fatal("設定がnilです")
	}

	// サーバー設定の検証
	if cfg.Server.Host == "" {
		t.Error("サーバーホストが設定されていません")
	}
	if cfg.Server.ReadTimeout <= 0 {
		t.Error("読み込みタイムアウトが設定されていません")
	}
	// WriteTimeout は 0（無効）でも正常
	if cfg.Server.WriteTimeout < 0 {
		t.Error("書き込みタイムアウトが負の値です")
	}

	// カメラの希望解像度は1280x720
	if cfg.Camera.Width != 1280 || cfg.Camera.Height != 720 {
		t.Errorf("希望解像度が違います: %dx%d", cfg.Camera.Width, cfg.Camera.Height)
	}
	if cfg.Camera.FacingMode != "user" {
		t.Errorf("facing_modeが違います: %s", cfg.Camera.FacingMode)
	}
	if cfg.Dashboard.ClockInterval != time.Second {
		t.Errorf("時計の更新間隔が違います: %s", cfg.Dashboard.ClockInterval)
	}
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name      string
		modify    func(c *Config)
		expectErr bool
	}{
		{
			name:      "正常な設定",
			modify:    func(_ *Config) {},
			expectErr: false,
		},
		{
			name:      "ランダムポート",
			modify:    func(c *Config) { c.Server.Port = 0 },
			expectErr: false,
		},
		{
			name:      "無効なポート番号",
			modify:    func(c *Config) { c.Server.Port = 99999 },
			expectErr: true,
		},
		{
			name:      "幅が0",
			modify:    func(c *Config) { c.Camera.Width = 0 },
			expectErr: true,
		},
		{
			name:      "高すぎるFPS",
			modify:    func(c *Config) { c.Camera.FPS = 120 },
			expectErr: true,
		},
		{
			name:      "不明なfacing_mode",
			modify:    func(c *Config) { c.Camera.FacingMode = "sideways" },
			expectErr: true,
		},
		{
			name:      "負のsurface_wait",
			modify:    func(c *Config) { c.Camera.SurfaceWait = -time.Second },
			expectErr: true,
		},
		{
			name:      "時計の間隔が0",
			modify:    func(c *Config) { c.Dashboard.ClockInterval = 0 },
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)

			err := cfg.Validate()
			if tc.expectErr && err == nil {
				t.Error("エラーが期待されましたが、エラーが発生しませんでした")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("予期しないエラーが発生しました: %v", err)
			}
		})
	}
}

// TestServerAddress はサーバーアドレスの生成をテストする
func TestServerAddress(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "192.168.1.100",
			Port: 9090,
		},
	}

	expected := "192.168.1.100:9090"
	actual := cfg.ServerAddress()

	if actual != expected {
		t.Errorf("サーバーアドレスが一致しません: got %s, want %s", actual, expected)
	}
}

// TestEnvironmentVariables は環境変数の処理をテストする
func TestEnvironmentVariables(t *testing.T) {
	t.Setenv("SERVER_HOST", "test.example.com")
	t.Setenv("PORT", "9999")
	t.Setenv("KANSHI_DEVICE", "/dev/video2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Host != "test.example.com" {
		t.Errorf("環境変数のホストが反映されていません: got %s, want test.example.com", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("環境変数のポートが反映されていません: got %d, want 9999", cfg.Server.Port)
	}
	if cfg.Camera.Device != "/dev/video2" {
		t.Errorf("環境変数のデバイスが反映されていません: got %s", cfg.Camera.Device)
	}
}

// TestLoadFile はYAMLファイルの読み込みをテストする
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kanshi.yaml")
	content := `
server:
  port: 9191
camera:
  device: /dev/video4
  fps: 30
  surface_wait: 250ms
dashboard:
  title: Back Door
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("設定ファイルの作成に失敗しました: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("ポートが反映されていません: %d", cfg.Server.Port)
	}
	if cfg.Camera.Device != "/dev/video4" || cfg.Camera.FPS != 30 {
		t.Errorf("カメラ設定が反映されていません: %+v", cfg.Camera)
	}
	if cfg.Camera.SurfaceWait != 250*time.Millisecond {
		t.Errorf("surface_waitが反映されていません: %s", cfg.Camera.SurfaceWait)
	}
	// ファイルにない値はデフォルトのまま
	if cfg.Camera.Width != 1280 {
		t.Errorf("デフォルトの幅が失われました: %d", cfg.Camera.Width)
	}
	if cfg.Dashboard.Title != "Back Door" {
		t.Errorf("タイトルが反映されていません: %s", cfg.Dashboard.Title)
	}
}

// TestLoadFile_Missing は存在しない設定ファイルのエラーをテストする
func TestLoadFile_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err == nil {
		t.Fatal("存在しないファイルでエラーが期待されました")
	}
}
