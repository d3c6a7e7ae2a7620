// Package config はゲートウェイの設定を環境変数から読み込む。
//
// 設定は起動時に一度だけ解決され、以降は読み取り専用として各コンポーネントに渡される。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

// ServiceName はヘルスチェックとログに使用するサービス名。
const ServiceName = "mcp-gateway"

// Config はゲートウェイの設定。
type Config struct {
	// UpstreamBaseURL はRAG APIのベースURL。
	UpstreamBaseURL string `koanf:"upstream_base_url" validate:"required,url"`
	// ListenPort はHTTPサーバーのリッスンポート。
	ListenPort int `koanf:"listen_port" validate:"min=1,max=65535"`
	// UpstreamTimeout はアップストリーム呼び出し1回あたりのタイムアウト。0は無制限。
	UpstreamTimeout time.Duration `koanf:"upstream_timeout" validate:"min=0"`
	// RequestBodyLimit はクライアントから受け付けるリクエストボディの上限（例: 100KiB）。
	RequestBodyLimit string `koanf:"request_body_limit" validate:"required"`
	// UpstreamResponseLimit はアップストリームから読み取るレスポンスボディの上限（例: 32MiB）。
	UpstreamResponseLimit string `koanf:"upstream_response_limit" validate:"required"`
	// LogLevel はログレベル。
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	// LogFile が空でなければログをJSON形式で追記するファイル。
	LogFile string `koanf:"log_file"`
	// CORSAllowedOrigins はCORSを許可するオリジン。"*"は全て許可。
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
	// JournalPath が空でなければ中継履歴をこのSQLiteファイルに記録する。
	JournalPath string `koanf:"journal_path"`
	// JournalRetention は中継履歴の保持期間。
	JournalRetention time.Duration `koanf:"journal_retention" validate:"gt=0"`
	// JournalPruneSchedule は中継履歴の削除を実行するcron式。
	JournalPruneSchedule string `koanf:"journal_prune_schedule" validate:"required"`
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// Default はデフォルト値を設定したConfigを返す。
func Default() *Config {
	return &Config{
		UpstreamBaseURL:       "http://rag-api:8001",
		ListenPort:            8002,
		UpstreamTimeout:       0,
		RequestBodyLimit:      "100KiB",
		UpstreamResponseLimit: "32MiB",
		LogLevel:              "info",
		CORSAllowedOrigins:    []string{"*"},
		JournalRetention:      7 * 24 * time.Hour,
		JournalPruneSchedule:  "0 3 * * *",
		ShutdownTimeout:       30 * time.Second,
	}
}

// envKeys は環境変数名と設定キーの対応。
var envKeys = map[string]string{
	"UPSTREAM_BASE_URL":       "upstream_base_url",
	"LISTEN_PORT":             "listen_port",
	"UPSTREAM_TIMEOUT":        "upstream_timeout",
	"REQUEST_BODY_LIMIT":      "request_body_limit",
	"UPSTREAM_RESPONSE_LIMIT": "upstream_response_limit",
	"LOG_LEVEL":               "log_level",
	"LOG_FILE":                "log_file",
	"CORS_ALLOWED_ORIGINS":    "cors_allowed_origins",
	"JOURNAL_PATH":            "journal_path",
	"JOURNAL_RETENTION":       "journal_retention",
	"JOURNAL_PRUNE_SCHEDULE":  "journal_prune_schedule",
	"SHUTDOWN_TIMEOUT":        "shutdown_timeout",
	// 旧デプロイメントとの互換用
	"RAG_API_URL": "alias.upstream_base_url",
	"PORT":        "alias.listen_port",
}

// aliases は別名キーと正式キーの対応。正式キーが設定されていれば別名は無視される。
var aliases = map[string]string{
	"alias.upstream_base_url": "upstream_base_url",
	"alias.listen_port":       "listen_port",
}

// Load は.envファイル（存在すれば）と環境変数から設定を読み込み、検証する。
// envFileが空の場合は.envファイルを読まない。既に設定済みの環境変数は上書きしない。
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf(".envファイルの読み込みに失敗: %w", err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}

	for alias, key := range aliases {
		if k.Exists(alias) && !k.Exists(key) {
			if err := k.Set(key, k.Get(alias)); err != nil {
				return nil, fmt.Errorf("設定 %s の解決に失敗: %w", key, err)
			}
		}
	}

	// カンマ区切りのリストを分割する
	if k.Exists("cors_allowed_origins") {
		if err := k.Set("cors_allowed_origins", splitList(k.String("cors_allowed_origins"))); err != nil {
			return nil, fmt.Errorf("CORS_ALLOWED_ORIGINSの解決に失敗: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("設定の展開に失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値を検証する。
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("設定が不正です: %w", err)
	}
	if _, err := parseSize(c.RequestBodyLimit); err != nil {
		return fmt.Errorf("REQUEST_BODY_LIMITが不正です %q: %w", c.RequestBodyLimit, err)
	}
	if _, err := parseSize(c.UpstreamResponseLimit); err != nil {
		return fmt.Errorf("UPSTREAM_RESPONSE_LIMITが不正です %q: %w", c.UpstreamResponseLimit, err)
	}
	if _, err := cron.ParseStandard(c.JournalPruneSchedule); err != nil {
		return fmt.Errorf("JOURNAL_PRUNE_SCHEDULEが不正です %q: %w", c.JournalPruneSchedule, err)
	}
	return nil
}

// JournalEnabled は中継履歴の記録が有効かどうかを返す。
func (c *Config) JournalEnabled() bool {
	return c.JournalPath != ""
}

// RequestBodyLimitBytes はリクエストボディの上限をバイト数で返す。
// Validate済みの設定でのみ呼ぶこと。
func (c *Config) RequestBodyLimitBytes() int64 {
	n, _ := parseSize(c.RequestBodyLimit)
	return n
}

// UpstreamResponseLimitBytes はアップストリームのレスポンスボディの上限をバイト数で返す。
// Validate済みの設定でのみ呼ぶこと。
func (c *Config) UpstreamResponseLimitBytes() int64 {
	n, _ := parseSize(c.UpstreamResponseLimit)
	return n
}

// parseSize は"100KiB"や"1048576"のようなサイズ表記をバイト数に変換する。
func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n == 0 || n > math.MaxInt64 {
		return 0, fmt.Errorf("サイズは1バイト以上で指定してください: %d", n)
	}
	return int64(n), nil
}

// ListenAddr はHTTPサーバーのリッスンアドレスを返す。
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.ListenPort)
}

// splitList はカンマ区切りの文字列を空要素を除いて分割する。
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
