package cmd

import (
	"github.com/spf13/cobra"

	"kanshi/internal/camera"
	"kanshi/internal/config"
	"kanshi/internal/dashboard"
	"kanshi/internal/logger"
	"kanshi/internal/server"
)

type serveFlags struct {
	host   string
	port   int
	device string
	mock   bool
}

func serveCommand(global *globalFlags) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "監視画面のWebサーバーを起動する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}

			// コマンドラインオプションで設定を上書き
			if flags.host != "" {
				cfg.Server.Host = flags.host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = flags.port
			}
			if flags.device != "" {
				cfg.Camera.Device = flags.device
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runServer(cmd, cfg, flags.mock)
		},
	}

	cmd.Flags().StringVar(&flags.host, "host", "", "サーバーのホスト (デフォルト: 127.0.0.1)")
	cmd.Flags().IntVarP(&flags.port, "port", "p", 8080, "サーバーのポート")
	cmd.Flags().StringVar(&flags.device, "device", "", "使用するカメラデバイス (例: /dev/video0)")
	cmd.Flags().BoolVar(&flags.mock, "mock", false, "カメラの代わりに合成映像を使う")

	return cmd
}

func runServer(cmd *cobra.Command, cfg *config.Config, mock bool) error {
	log := logger.WithComponent("main")
	discovery := camera.NewLinuxDiscovery()

	var devices camera.MediaDevices
	if mock {
		log.Warn().Msg("合成映像のカメラを使用します")
		devices = camera.NewMockMediaDevices()
	} else {
		devices = camera.NewV4L2MediaDevices(camera.V4L2Options{
			FFmpegPath:   cfg.Camera.FFmpegPath,
			Device:       cfg.Camera.Device,
			ProbeTimeout: cfg.Camera.ProbeTimeout,
		}, discovery, logger.GetLogger())
		if !devices.Supported() {
			log.Warn().Str("ffmpeg", cfg.Camera.FFmpegPath).Msg("ffmpegが見つかりません。カメラは開けません")
		}
	}

	dash := dashboard.New(devices, dashboardOptions(cfg), logger.GetLogger())
	srv := server.New(cfg, dash, discovery, logger.GetLogger())

	log.Info().Str("addr", cfg.ServerAddress()).Msg("kanshi サーバーを起動します")
	return srv.Start(cmd.Context())
}

// dashboardOptions は設定から画面のオプションを作る
func dashboardOptions(cfg *config.Config) dashboard.Options {
	opts := dashboard.DefaultOptions()
	opts.Title = cfg.Dashboard.Title
	opts.ClockInterval = cfg.Dashboard.ClockInterval
	opts.SurfaceWait = cfg.Camera.SurfaceWait
	opts.Constraints = camera.Constraints{
		Width:      cfg.Camera.Width,
		Height:     cfg.Camera.Height,
		FrameRate:  cfg.Camera.FPS,
		FacingMode: camera.FacingMode(cfg.Camera.FacingMode),
		Device:     cfg.Camera.Device,
	}
	return opts
}
