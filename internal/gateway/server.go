package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nao1215/mcp-gateway/internal/config"
	"github.com/nao1215/mcp-gateway/internal/journal"
	"github.com/nao1215/mcp-gateway/pkg/httpclient"
	"github.com/nao1215/mcp-gateway/pkg/middleware"
)

// 中継履歴APIの取得件数。
const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

// Server はゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg は起動時に解決された設定。読み取り専用。
	cfg *config.Config
	// upstream はRAG APIへのHTTPクライアント。
	upstream *httpclient.Client
	// bodyLimit はリクエストボディの上限（バイト）。
	bodyLimit int64
	// journal は中継履歴の保存先。無効な場合はnil。
	journal journal.Store
	// logger は構造化ロガー。
	logger zerolog.Logger
	// metrics はPrometheusメトリクス。
	metrics *metrics
}

// Option はServerの設定を変更する関数。
type Option func(*Server)

// WithLogger はロガーを設定する。
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithJournal は中継履歴の保存先を設定する。nilの場合は記録しない。
func WithJournal(store journal.Store) Option {
	return func(s *Server) {
		s.journal = store
	}
}

// WithUpstreamClient はアップストリームへのHTTPクライアントを差し替える。
func WithUpstreamClient(client *httpclient.Client) Option {
	return func(s *Server) {
		if client != nil {
			s.upstream = client
		}
	}
}

// NewServer は新しいゲートウェイサーバーを生成する。
func NewServer(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		cfg: cfg,
		upstream: httpclient.New(cfg.UpstreamBaseURL,
			httpclient.WithTimeout(cfg.UpstreamTimeout),
			httpclient.WithMaxResponseBytes(cfg.UpstreamResponseLimitBytes()),
		),
		bodyLimit: cfg.RequestBodyLimitBytes(),
		logger:    zerolog.Nop(),
		metrics:   newMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(s.logger))
	router.Use(s.metrics.middleware())
	router.Use(middleware.Recovery(s.logger, s.metrics.panicRecoveriesTotal.Inc))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	s.router = router

	s.setupRoutes()
	return s
}

// Handler はゲートウェイのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Int("port", s.cfg.ListenPort).Msg("MCP Gatewayを起動します")
		s.logger.Info().Str("upstream", s.upstream.BaseURL()).Msg("RAG APIへ中継します")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info().Dur("timeout", s.cfg.ShutdownTimeout).Msg("HTTPサーバーを停止します")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	return <-errCh
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// ヘルスチェック（アップストリームには問い合わせない）
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": config.ServiceName})
	})
	s.router.GET("/ready", s.handleReady())

	// RAG APIへの中継
	s.router.POST(queryRoute.path, s.handleForward(queryRoute))
	s.router.POST(ingestRoute.path, s.handleForward(ingestRoute))
	s.router.GET(inspectRoute.path, s.handleForward(inspectRoute))

	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	if s.journal != nil {
		s.router.GET("/admin/journal", s.handleJournal())
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "ルートが見つかりません"})
	})
	s.router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "許可されていないメソッドです"})
	})
}

// handleReady はアップストリームの/healthに問い合わせて準備状態を返すハンドラを返す。
func (s *Server) handleReady() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := httpclient.WithRequestID(c.Request.Context(), middleware.GetRequestID(c))
		if _, err := s.upstream.Get(ctx, "/health"); err != nil {
			s.logger.Warn().Err(err).Msg("アップストリームの準備ができていません")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// handleJournal は最近の中継履歴を返すハンドラを返す。
func (s *Server) handleJournal() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultJournalLimit
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limitは正の整数で指定してください"})
				return
			}
			limit = min(n, maxJournalLimit)
		}

		exchanges, err := s.journal.Recent(c.Request.Context(), limit)
		if err != nil {
			s.logger.Error().Err(err).Msg("中継履歴の取得に失敗しました")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if exchanges == nil {
			exchanges = []journal.Exchange{}
		}
		c.JSON(http.StatusOK, gin.H{"exchanges": exchanges, "count": len(exchanges)})
	}
}
