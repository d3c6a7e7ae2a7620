package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv はテストに影響する環境変数を空にする。
func clearEnv(t *testing.T) {
	t.Helper()
	for name := range envKeys {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://rag-api:8001", cfg.UpstreamBaseURL)
	assert.Equal(t, 8002, cfg.ListenPort)
	assert.Equal(t, time.Duration(0), cfg.UpstreamTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.JournalEnabled())
	assert.Equal(t, ":8002", cfg.ListenAddr())
	assert.Equal(t, int64(100*1024), cfg.RequestBodyLimitBytes())
	assert.Equal(t, int64(32*1024*1024), cfg.UpstreamResponseLimitBytes())
}

func TestLoadSizeLimits(t *testing.T) {
	tests := []struct {
		name string
		val  string
		want int64
	}{
		{name: "単位付きの値", val: "1MiB", want: 1024 * 1024},
		{name: "SI単位の値", val: "100kb", want: 100000},
		{name: "バイト数のみの値", val: "2048", want: 2048},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("REQUEST_BODY_LIMIT", tt.val)
			t.Setenv("UPSTREAM_RESPONSE_LIMIT", tt.val)

			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.RequestBodyLimitBytes())
			assert.Equal(t, tt.want, cfg.UpstreamResponseLimitBytes())
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("UPSTREAM_BASE_URL", "http://localhost:9009")
	t.Setenv("LISTEN_PORT", "9100")
	t.Setenv("UPSTREAM_TIMEOUT", "15s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000, https://example.com,")
	t.Setenv("JOURNAL_PATH", "/tmp/journal.db")
	t.Setenv("JOURNAL_RETENTION", "24h")
	t.Setenv("JOURNAL_PRUNE_SCHEDULE", "*/5 * * * *")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9009", cfg.UpstreamBaseURL)
	assert.Equal(t, 9100, cfg.ListenPort)
	assert.Equal(t, 15*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"http://localhost:3000", "https://example.com"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.JournalEnabled())
	assert.Equal(t, 24*time.Hour, cfg.JournalRetention)
	assert.Equal(t, "*/5 * * * *", cfg.JournalPruneSchedule)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestLoadAliases(t *testing.T) {
	t.Run("別名のみ設定されている場合は別名が使われる", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RAG_API_URL", "http://rag:8001")
		t.Setenv("PORT", "8080")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "http://rag:8001", cfg.UpstreamBaseURL)
		assert.Equal(t, 8080, cfg.ListenPort)
	})

	t.Run("正式名が別名より優先される", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RAG_API_URL", "http://rag:8001")
		t.Setenv("UPSTREAM_BASE_URL", "http://upstream:9000")
		t.Setenv("PORT", "8080")
		t.Setenv("LISTEN_PORT", "8081")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "http://upstream:9000", cfg.UpstreamBaseURL)
		assert.Equal(t, 8081, cfg.ListenPort)
	})
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("UPSTREAM_BASE_URL=http://from-file:7000\nLISTEN_PORT=7001\n"), 0o600))
	// 既に設定済みの環境変数は.envファイルで上書きされない
	t.Setenv("LISTEN_PORT", "7002")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-file:7000", cfg.UpstreamBaseURL)
	assert.Equal(t, 7002, cfg.ListenPort)
}

func TestLoadMissingEnvFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 8002, cfg.ListenPort)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "URLではないアップストリーム", key: "UPSTREAM_BASE_URL", val: "not a url"},
		{name: "範囲外のポート", key: "LISTEN_PORT", val: "70000"},
		{name: "数値ではないポート", key: "LISTEN_PORT", val: "abc"},
		{name: "不正なログレベル", key: "LOG_LEVEL", val: "loud"},
		{name: "負のタイムアウト", key: "UPSTREAM_TIMEOUT", val: "-1s"},
		{name: "不正なcron式", key: "JOURNAL_PRUNE_SCHEDULE", val: "every day"},
		{name: "ゼロの保持期間", key: "JOURNAL_RETENTION", val: "0s"},
		{name: "不正なボディ上限", key: "REQUEST_BODY_LIMIT", val: "lots"},
		{name: "ゼロのボディ上限", key: "REQUEST_BODY_LIMIT", val: "0"},
		{name: "不正なレスポンス上限", key: "UPSTREAM_RESPONSE_LIMIT", val: "-5MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
