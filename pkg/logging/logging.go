package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options はロガーの生成オプション。
type Options struct {
	// Service は全ログ行に付与するサービス名。
	Service string
	// Level はログレベル（debug, info, warn, error）。
	Level string
	// FilePath が空でなければ、このファイルにJSON形式で追記する。
	FilePath string
	// Console はコンソール出力先。nilの場合は標準エラー出力。
	Console io.Writer
	// NoColor はコンソール出力の色付けを無効にする。
	NoColor bool
}

// nopCloser は閉じる対象が無い場合に返すio.Closer。
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New はOptionsに従ってロガーを生成する。
// 戻り値のio.Closerはログファイルを閉じるためのもので、プロセス終了時に呼ぶこと。
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	writers := []io.Writer{
		zerolog.ConsoleWriter{Out: console, NoColor: opts.NoColor, TimeFormat: time.RFC3339},
	}

	var closer io.Closer = nopCloser{}
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("ログディレクトリの作成に失敗: %w", err)
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("ログファイルのオープンに失敗: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("service", opts.Service).
		Logger()

	return logger, closer, nil
}

// ParseLevel はログレベル文字列をzerologのレベルに変換する。
// 空文字列はinfoとして扱う。warningはwarnの別名。
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("不正なログレベル %q: %w", s, err)
	}
	return level, nil
}
