package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kanshi/internal/alert"
	"kanshi/internal/camera"
	"kanshi/internal/dashboard"
)

// ErrorResponse はAPIのエラー応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   *string   `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OpenResponse はカメラを開いた結果
type OpenResponse struct {
	Snapshot dashboard.Snapshot `json:"snapshot"`
	Notice   *dashboard.Notice  `json:"notice,omitempty"`
}

// ToggleResponse は録画フラグの切り替え結果
type ToggleResponse struct {
	Recording bool               `json:"recording"`
	Snapshot  dashboard.Snapshot `json:"snapshot"`
}

// ScanResponse は手動スキャンの結果
type ScanResponse struct {
	Alert    alert.Alert        `json:"alert"`
	Snapshot dashboard.Snapshot `json:"snapshot"`
}

// SettingsRequest は設定パネルの更新。指定した項目だけを変える
type SettingsRequest struct {
	DetectionMode *string `json:"detection_mode"`
	Sensitivity   *int    `json:"sensitivity"`
	Notifications *bool   `json:"notifications"`
}

// errorJSON はエラー応答を返して処理を打ち切る
func errorJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// handleIndex は画面を返す
func (s *Server) handleIndex(c *gin.Context) {
	data, err := indexHTML()
	if err != nil {
		s.log.Error().Err(err).Msg("画面を読み込めません")
		errorJSON(c, http.StatusInternalServerError, "index_unavailable", err.Error())
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// handleStatus はステータス確認エンドポイント
func (s *Server) handleStatus(c *gin.Context) {
	state := s.dashboard.State()
	streamID, _ := s.dashboard.ActiveStreamID()

	c.JSON(http.StatusOK, gin.H{
		"status": "running",
		"server": gin.H{
			"host": s.config.Server.Host,
			"port": s.config.Server.Port,
		},
		"camera": gin.H{
			"open":      state.CameraOpen,
			"phase":     state.Phase,
			"stream_id": streamID,
			"device":    s.config.Camera.Device,
		},
		"subscribers": s.dashboard.Subscribers(),
		"uptime":      time.Since(s.startedAt).Round(time.Second).String(),
		"timestamp":   time.Now(),
	})
}

// handleDashboard は画面全体の状態を返す
func (s *Server) handleDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, s.dashboard.Snapshot())
}

// handleDevices は検出されたカメラデバイスを返す
func (s *Server) handleDevices(c *gin.Context) {
	if s.discovery == nil {
		c.JSON(http.StatusOK, gin.H{"devices": []camera.DeviceInfo{}})
		return
	}

	ctx := c.Request.Context()
	paths, err := s.discovery.ScanDevices(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("デバイスのスキャンに失敗しました")
		errorJSON(c, http.StatusInternalServerError, "scan_failed", err.Error())
		return
	}

	devices := make([]camera.DeviceInfo, 0, len(paths))
	for _, path := range paths {
		info, err := s.discovery.GetDeviceInfo(ctx, path)
		if err != nil {
			s.log.Debug().Err(err).Str("device", path).Msg("デバイス情報を取得できません")
			continue
		}
		devices = append(devices, *info)
	}

	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

// handleOpenCamera はカメラを開く
func (s *Server) handleOpenCamera(c *gin.Context) {
	// リクエストの切断では取得を中断しない。結果は再描画イベントでも届く
	ctx := context.WithoutCancel(c.Request.Context())

	err := s.dashboard.OpenCamera(ctx)

	var openErr *dashboard.OpenError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, OpenResponse{Snapshot: s.dashboard.Snapshot()})
	case errors.Is(err, dashboard.ErrAcquisitionInProgress):
		errorJSON(c, http.StatusConflict, "acquisition_in_progress", "カメラを開いている途中です")
	case errors.Is(err, dashboard.ErrAcquisitionAborted):
		errorJSON(c, http.StatusConflict, "acquisition_aborted", "取得中にカメラが閉じられました")
	case errors.As(err, &openErr):
		notice := openErr.Notice
		c.JSON(http.StatusUnprocessableEntity, OpenResponse{
			Snapshot: s.dashboard.Snapshot(),
			Notice:   &notice,
		})
	default:
		s.log.Error().Err(err).Msg("カメラを開けません")
		errorJSON(c, http.StatusInternalServerError, "open_failed", err.Error())
	}
}

// handleCloseCamera はカメラを閉じる
func (s *Server) handleCloseCamera(c *gin.Context) {
	s.dashboard.CloseCamera()
	c.JSON(http.StatusOK, gin.H{"snapshot": s.dashboard.Snapshot()})
}

// handleToggleRecording は録画フラグを切り替える
func (s *Server) handleToggleRecording(c *gin.Context) {
	recording, err := s.dashboard.ToggleRecording()
	if err != nil {
		errorJSON(c, http.StatusConflict, "camera_closed", "カメラが開いていません")
		return
	}

	c.JSON(http.StatusOK, ToggleResponse{
		Recording: recording,
		Snapshot:  s.dashboard.Snapshot(),
	})
}

// handleManualScan は手動スキャンを記録する
func (s *Server) handleManualScan(c *gin.Context) {
	a := s.dashboard.ManualScan()
	c.JSON(http.StatusOK, ScanResponse{
		Alert:    a,
		Snapshot: s.dashboard.Snapshot(),
	})
}

// handleSettings は設定パネルの値を更新する
func (s *Server) handleSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	// 全項目を検証してから反映する
	var mode dashboard.DetectionMode
	if req.DetectionMode != nil {
		m, err := dashboard.ParseDetectionMode(*req.DetectionMode)
		if err != nil {
			errorJSON(c, http.StatusBadRequest, "invalid_detection_mode", err.Error())
			return
		}
		mode = m
	}
	if req.Sensitivity != nil {
		if v := *req.Sensitivity; v < dashboard.MinSensitivity || v > dashboard.MaxSensitivity {
			errorJSON(c, http.StatusBadRequest, "invalid_sensitivity", "感度は1から10の範囲で指定してください")
			return
		}
	}

	if req.DetectionMode != nil {
		if err := s.dashboard.SetDetectionMode(mode); err != nil {
			errorJSON(c, http.StatusBadRequest, "invalid_detection_mode", err.Error())
			return
		}
	}
	if req.Sensitivity != nil {
		if err := s.dashboard.SetSensitivity(*req.Sensitivity); err != nil {
			errorJSON(c, http.StatusBadRequest, "invalid_sensitivity", err.Error())
			return
		}
	}
	if req.Notifications != nil {
		s.dashboard.SetNotifications(*req.Notifications)
	}

	c.JSON(http.StatusOK, gin.H{"snapshot": s.dashboard.Snapshot()})
}
