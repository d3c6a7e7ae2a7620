// MCP Gatewayのエントリポイント。
// RAG APIの前段に立ち、クエリ・インジェスト・インスペクトの各リクエストを中継する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/mcp-gateway/internal/config"
	"github.com/nao1215/mcp-gateway/internal/gateway"
	"github.com/nao1215/mcp-gateway/internal/journal"
	"github.com/nao1215/mcp-gateway/pkg/logging"
)

// version はビルド時に-ldflagsで埋め込まれる。
var version = "dev"

func main() {
	cmd := &cli.Command{
		Name:    config.ServiceName,
		Usage:   "RAG APIへのリクエストを中継するHTTPゲートウェイ",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "環境変数を読み込む.envファイルのパス（存在しなければ無視する）",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, cmd.String("env-file"))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "MCP Gatewayの実行に失敗: %v\n", err)
		os.Exit(1)
	}
}

// run は設定を読み込み、HTTPサーバーと中継履歴の削除ジョブを起動する。
// ctxがキャンセルされるとすべて停止してから戻る。
func run(ctx context.Context, envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(logging.Options{
		Service:  config.ServiceName,
		Level:    cfg.LogLevel,
		FilePath: cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	if logger.GetLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	opts := []gateway.Option{gateway.WithLogger(logger)}
	g, gctx := errgroup.WithContext(ctx)

	if cfg.JournalEnabled() {
		store, err := journal.OpenSQLite(ctx, cfg.JournalPath, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		scheduler, err := journal.NewScheduler(store, cfg.JournalPruneSchedule, cfg.JournalRetention, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
		opts = append(opts, gateway.WithJournal(store))
		logger.Info().Str("path", cfg.JournalPath).Dur("retention", cfg.JournalRetention).Msg("中継履歴を記録します")
	}

	server := gateway.NewServer(cfg, opts...)
	g.Go(func() error {
		return server.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("MCP Gatewayが異常終了しました")
		return err
	}
	logger.Info().Msg("MCP Gatewayを停止しました")
	return nil
}
