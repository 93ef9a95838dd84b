package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kanshi/internal/camera"
)

func devicesCommand(global *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "利用可能なカメラデバイスを一覧表示する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(global); err != nil {
				return err
			}
			return listDevices(cmd, camera.NewLinuxDiscovery(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "JSONで出力する")
	return cmd
}

func listDevices(cmd *cobra.Command, discovery camera.Discovery, asJSON bool) error {
	ctx := cmd.Context()

	paths, err := discovery.ScanDevices(ctx)
	if err != nil {
		return fmt.Errorf("デバイスのスキャンに失敗しました: %w", err)
	}

	infos := make([]camera.DeviceInfo, 0, len(paths))
	for _, path := range paths {
		info, err := discovery.GetDeviceInfo(ctx, path)
		if err != nil {
			info = &camera.DeviceInfo{Device: path}
		}
		infos = append(infos, *info)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	if len(infos) == 0 {
		fmt.Fprintln(out, "カメラデバイスが見つかりません")
		return nil
	}
	for _, info := range infos {
		fmt.Fprintf(out, "%s\t%s\t%s\n", info.Device, info.Name, strings.Join(info.Formats, ","))
	}
	return nil
}
