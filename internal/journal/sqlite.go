package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/nao1215/mcp-gateway/pkg/migration"
)

//go:embed migrations
var migrationsFS embed.FS

// SQLiteStore はSQLiteによるStore実装。
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite はpathのSQLiteデータベースを開き、スキーマを適用する。
// 親ディレクトリが存在しなければ作成する。
func OpenSQLite(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("データベースディレクトリの作成に失敗: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if _, err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Record は履歴を1件保存する。
func (s *SQLiteStore) Record(ctx context.Context, e Exchange) error {
	e = normalize(e, s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchanges (
			id, request_id, route, method, upstream_url,
			status, upstream_status, error, duration_ms, created_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, e.Route, e.Method, e.UpstreamURL,
		e.Status, e.UpstreamStatus, e.Error, e.DurationMS, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("履歴の保存に失敗: %w", err)
	}
	return nil
}

// Recent は新しい順に最大limit件の履歴を返す。
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = -1 // SQLiteではLIMIT -1で上限なし
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, route, method, upstream_url,
		       status, upstream_status, error, duration_ms, created_at_ms
		FROM exchanges
		ORDER BY created_at_ms DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("履歴の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Exchange
	for rows.Next() {
		var (
			e         Exchange
			createdMS int64
		)
		if err := rows.Scan(
			&e.ID, &e.RequestID, &e.Route, &e.Method, &e.UpstreamURL,
			&e.Status, &e.UpstreamStatus, &e.Error, &e.DurationMS, &createdMS,
		); err != nil {
			return nil, fmt.Errorf("履歴の読み取りに失敗: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdMS).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("履歴の読み取りに失敗: %w", err)
	}
	return out, nil
}

// Prune はbeforeより前に記録された履歴を削除する。
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM exchanges WHERE created_at_ms < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("履歴の削除に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return n, nil
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
