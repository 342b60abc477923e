// Package server はbellのHTTP APIを提供する。
//
// 通知一覧・既読化・非表示化・アクティブ化などのクライアント向けAPIと、
// 他システムから通知を送るための内部APIを持つ。要求ユーザーはJWTから特定する。
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/bell/internal/directory"
	"github.com/nao1215/bell/internal/livechannel"
	"github.com/nao1215/bell/internal/notification"
	"github.com/nao1215/bell/internal/query"
	"github.com/nao1215/bell/internal/settings"
	"github.com/nao1215/bell/pkg/middleware"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 5 * time.Second

// Deps はServerが使うサービス群。
type Deps struct {
	Notifications *notification.Service
	Query         *query.Facade
	Settings      *settings.Store
	Users         *directory.Store
	// Subscriber はSSE配信の購読元。nilの場合はストリームAPIを提供しない。
	Subscriber livechannel.Subscriber
}

// Server はbellのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string

	notifications *notification.Service
	query         *query.Facade
	settings      *settings.Store
	users         *directory.Store
	subscriber    livechannel.Subscriber

	logger zerolog.Logger
	// auth は要求ユーザーを特定するミドルウェア。
	auth gin.HandlerFunc
	// keepAlive はSSEのコメント送信間隔。
	keepAlive time.Duration
}

// Option はServerの生成オプション。
type Option func(*Server)

// WithAuth は認証ミドルウェアを差し替える。
func WithAuth(h gin.HandlerFunc) Option {
	return func(s *Server) { s.auth = h }
}

// WithKeepAlive はSSEのキープアライブ間隔を設定する。
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) { s.keepAlive = d }
}

// WithAllowedOrigins はCORSで許可するオリジンを設定する。
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.router.Use(middleware.CORS(origins))
		}
	}
}

// New は新しいサーバーを生成する。
func New(port, jwtSecret string, deps Deps, logger zerolog.Logger, opts ...Option) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))

	s := &Server{
		router:        router,
		port:          port,
		notifications: deps.Notifications,
		query:         deps.Query,
		settings:      deps.Settings,
		users:         deps.Users,
		subscriber:    deps.Subscriber,
		logger:        logger,
		auth:          middleware.JWTAuth(jwtSecret),
		keepAlive:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxが終了したらグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("HTTPサーバーを起動します")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("HTTPサーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	return <-errCh
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	api.Use(s.auth)
	{
		notifications := api.Group("/notifications")
		{
			// 通知一覧と未読件数
			notifications.GET("", s.handleGetNotifications())
			notifications.POST("/mark_as_read", s.handleMarkAsRead())
			notifications.POST("/mark_as_unread", s.handleMarkAsUnread())
			notifications.GET("/unread_count", s.handleUnreadCount())
			notifications.POST("/dismiss", s.handleDismiss())
			notifications.POST("/activate", s.handleActivate())
			// 新着通知のSSE配信
			notifications.GET("/stream", s.handleStream())
			notifications.GET("/settings", s.handleGetSettings())
			notifications.PUT("/settings", s.handleUpdateSettings())
		}

		// 他システムから呼び出される内部API
		internal := api.Group("/internal")
		{
			internal.POST("/send", s.handleSend())
			internal.PUT("/users/:id", s.handleUpsertUser())
		}
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "bell"})
	})
}
