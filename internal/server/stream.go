package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"kanshi/internal/dashboard"
)

const (
	mjpegBoundary = "frame"
	wsWriteWait   = 5 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = wsPongWait * 9 / 10
)

// handleStream は表示面のフレームをMJPEGで配信する
func (s *Server) handleStream(c *gin.Context) {
	viewer, err := s.dashboard.Surface().Subscribe()
	if err != nil {
		errorJSON(c, http.StatusServiceUnavailable, "camera_not_active", "カメラがアクティブではありません")
		return
	}
	defer viewer.Close()

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	clientGone := c.Request.Context().Done()
	frames := viewer.C()

	for {
		select {
		case <-clientGone:
			return
		case <-s.closing:
			return
		case frame, ok := <-frames:
			if !ok {
				// 表示面からストリームが外された
				return
			}
			if err := writeMJPEGFrame(writer, frame); err != nil {
				s.log.Debug().Err(err).Msg("MJPEGクライアントへの書き込みに失敗しました")
				return
			}
			flusher.Flush()
		}
	}
}

func writeMJPEGFrame(w gin.ResponseWriter, frame []byte) error {
	if _, err := w.WriteString("--" + mjpegBoundary + "\r\nContent-Type: image/jpeg\r\n\r\n"); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.WriteString("\r\n")
	return err
}

// handleSnapshot は最新のフレームを1枚返す
func (s *Server) handleSnapshot(c *gin.Context) {
	frame, ok := s.dashboard.Surface().Snapshot()
	if !ok {
		errorJSON(c, http.StatusNotFound, "no_frame", "表示できるフレームがありません")
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/jpeg", frame)
}

// handleWebSocket は再描画イベントをWebSocketで配信する
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocketのアップグレードに失敗しました")
		return
	}
	defer conn.Close()

	sub := s.dashboard.Subscribe()
	defer sub.Close()

	s.log.Debug().Str("remote", c.ClientIP()).Int("subscribers", s.dashboard.Subscribers()).Msg("WebSocketクライアントが接続しました")

	snap := s.dashboard.Snapshot()
	if err := writeEvent(conn, dashboard.Event{Type: dashboard.EventState, Snapshot: &snap}); err != nil {
		return
	}

	// 読み取りはpongと切断の検知にだけ使う
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeEvent(conn, e); err != nil {
				s.log.Debug().Err(err).Msg("WebSocketへの書き込みに失敗しました")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, e dashboard.Event) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(e)
}
