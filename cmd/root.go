// Package cmd はkanshiのコマンドライン (cobra) を定義する
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kanshi/internal/config"
	"kanshi/internal/logger"
)

// globalFlags は全サブコマンド共通のフラグ
type globalFlags struct {
	configPath string
	debug      bool
}

// RootCommand はルートコマンドを作成する
func RootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "kanshi",
		Short:         "カメラ監視ダッシュボード",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "設定ファイル (YAML) のパス")
	rootCmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "デバッグログを出力する")

	rootCmd.AddCommand(
		serveCommand(flags),
		devicesCommand(flags),
	)

	return rootCmd
}

// loadConfig は設定を読み込み、ロガーを初期化する
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}

	if flags.debug {
		cfg.Log.Debug = true
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("ロガーの初期化に失敗しました: %w", err)
	}

	return cfg, nil
}
