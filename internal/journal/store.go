package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Exchange はゲートウェイが中継した1回のリクエストとその結果。
type Exchange struct {
	// ID は履歴の一意識別子。
	ID string `json:"id"`
	// RequestID はX-Request-IDの値。
	RequestID string `json:"request_id"`
	// Route はゲートウェイのルート（例: /query）。
	Route string `json:"route"`
	// Method はアップストリームへのHTTPメソッド。
	Method string `json:"method"`
	// UpstreamURL は呼び出したアップストリームのURL。
	UpstreamURL string `json:"upstream_url"`
	// Status はクライアントに返したステータスコード。
	Status int `json:"status"`
	// UpstreamStatus はアップストリームが返したステータスコード。応答が無ければ0。
	UpstreamStatus int `json:"upstream_status"`
	// Error は失敗時のエラーメッセージ。成功時は空。
	Error string `json:"error,omitempty"`
	// DurationMS はアップストリーム呼び出しにかかった時間（ミリ秒）。
	DurationMS int64 `json:"duration_ms"`
	// CreatedAt は記録日時。
	CreatedAt time.Time `json:"created_at"`
}

// Store は中継履歴の保存先。並行利用しても安全であること。
type Store interface {
	// Record は履歴を1件保存する。IDとCreatedAtが空なら補完される。
	Record(ctx context.Context, e Exchange) error
	// Recent は新しい順に最大limit件の履歴を返す。
	Recent(ctx context.Context, limit int) ([]Exchange, error)
	// Prune はbeforeより前に記録された履歴を削除し、削除件数を返す。
	Prune(ctx context.Context, before time.Time) (int64, error)
	// Close は保存先を閉じる。
	Close() error
}

// normalize はIDと記録日時が未設定の場合に補完する。
func normalize(e Exchange, now time.Time) Exchange {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e
}
