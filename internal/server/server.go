package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"kanshi/internal/camera"
	"kanshi/internal/config"
	"kanshi/internal/dashboard"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	log        zerolog.Logger
	dashboard  *dashboard.Dashboard
	discovery  camera.Discovery
	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	startedAt  time.Time

	// closing はシャットダウン開始時に閉じる。ストリーミング中の接続を終わらせる
	closing   chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	listener net.Listener
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, dash *dashboard.Dashboard, discovery camera.Discovery, log zerolog.Logger) *Server {
	s := &Server{
		config:    cfg,
		log:       log.With().Str("component", "server").Logger(),
		dashboard: dash,
		discovery: discovery,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		startedAt: time.Now(),
		closing:   make(chan struct{}),
	}

	s.engine = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

// Handler はルーティング済みのhttp.Handlerを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// setupRouter はHTTPルートを設定する
func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/", s.handleIndex)
	r.GET("/health", s.handleHealth)
	r.GET("/ws", s.handleWebSocket)

	api := r.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/dashboard", s.handleDashboard)
		api.GET("/devices", s.handleDevices)
		api.GET("/stream", s.handleStream)
		api.GET("/snapshot.jpg", s.handleSnapshot)

		api.POST("/camera/open", s.handleOpenCamera)
		api.POST("/camera/close", s.handleCloseCamera)
		api.POST("/recording/toggle", s.handleToggleRecording)
		api.POST("/scan", s.handleManualScan)
		api.PUT("/settings", s.handleSettings)
	}

	return r
}

// requestLogger はginのリクエストをzerologで記録する
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("リクエストを処理しました")
	}
}

// Start はサーバーを起動し、ctxのキャンセルかシグナルで停止する
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.dashboard.Mount(ctx)

	// シャットダウン用のチャンネル
	serveErr := make(chan error, 1)

	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTPサーバーを起動しています")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		s.log.Info().Msg("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.log.Info().Str("signal", sig.String()).Msg("シグナルを受信しました")
	case err := <-serveErr:
		s.dashboard.Unmount()
		return err
	}

	return s.Shutdown()
}

// Addr は待ち受け中のアドレスを返す。起動前は設定値を返す
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Shutdown はサーバーをグレースフルにシャットダウンし、カメラを解放する
func (s *Server) Shutdown() error {
	s.log.Info().Msg("サーバーをシャットダウンしています")

	s.closeOnce.Do(func() { close(s.closing) })

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.dashboard.Unmount()
	if err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.log.Info().Msg("サーバーが正常にシャットダウンされました")
	return nil
}
