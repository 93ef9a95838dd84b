package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanshi/internal/camera"
	"kanshi/internal/config"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := RootCommand()

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "devices")

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("debug"))
}

func TestDashboardOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Camera.Width = 640
	cfg.Camera.Height = 480
	cfg.Camera.FPS = 30
	cfg.Camera.FacingMode = "environment"
	cfg.Camera.Device = "/dev/video2"
	cfg.Camera.SurfaceWait = 200 * time.Millisecond
	cfg.Dashboard.Title = "Front Door"

	opts := dashboardOptions(cfg)
	assert.Equal(t, "Front Door", opts.Title)
	assert.Equal(t, 200*time.Millisecond, opts.SurfaceWait)
	assert.Equal(t, time.Second, opts.ClockInterval)
	assert.Equal(t, camera.Constraints{
		Width:      640,
		Height:     480,
		FrameRate:  30,
		FacingMode: camera.FacingEnvironment,
		Device:     "/dev/video2",
	}, opts.Constraints)
}

func newTestCommand(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetContext(context.Background())
	return cmd
}

func TestListDevices(t *testing.T) {
	discovery := camera.NewMockDiscovery([]string{"/dev/video0", "/dev/video2"})

	var out bytes.Buffer
	require.NoError(t, listDevices(newTestCommand(&out), discovery, false))
	assert.Contains(t, out.String(), "/dev/video0\tTest Camera 1\tMJPG")
	assert.Contains(t, out.String(), "/dev/video2\tTest Camera 2\tMJPG")

	out.Reset()
	require.NoError(t, listDevices(newTestCommand(&out), discovery, true))

	var infos []camera.DeviceInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "/dev/video2", infos[1].Device)
}

func TestListDevices_Empty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, listDevices(newTestCommand(&out), camera.NewMockDiscovery(nil), false))
	assert.Contains(t, out.String(), "カメラデバイスが見つかりません")
}
