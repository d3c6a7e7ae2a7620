package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/nao1215/mcp-gateway/internal/journal"
	"github.com/nao1215/mcp-gateway/pkg/httpclient"
	"github.com/nao1215/mcp-gateway/pkg/middleware"
)

// forwardRoute はアップストリームへ中継するルートの定義。
type forwardRoute struct {
	// path はゲートウェイとアップストリームで共通のパス。
	path string
	// method はアップストリームへのHTTPメソッド。
	method string
	// logField はリクエストログに抜き出すボディのフィールド名。空ならリクエストログを出さない。
	logField string
	// name はログメッセージの接頭辞（例: "Query request"、"Query failed"）。
	name string
}

var (
	queryRoute   = forwardRoute{path: "/query", method: http.MethodPost, logField: "query", name: "Query"}
	ingestRoute  = forwardRoute{path: "/ingest", method: http.MethodPost, logField: "path", name: "Ingest"}
	inspectRoute = forwardRoute{path: "/inspect", method: http.MethodGet, name: "Inspect"}
)

// handleForward はリクエストをアップストリームへ1回だけ中継するハンドラを返す。
func (s *Server) handleForward(route forwardRoute) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := middleware.GetRequestID(c)

		var body []byte
		if route.method != http.MethodGet {
			raw, status, err := readRequestBody(c, s.bodyLimit)
			if err != nil {
				s.logger.Warn().Str("route", route.path).Str("request_id", requestID).Err(err).Msg("リクエストボディが不正です")
				c.JSON(status, gin.H{"error": err.Error()})
				return
			}
			body = raw
		}

		if route.logField != "" {
			event := s.logger.Info().Str("route", route.path).Str("request_id", requestID)
			if v, ok := lookupField(body, route.logField); ok {
				event = event.RawJSON(route.logField, v)
			}
			event.Msg(route.name + " request")
		}

		ctx := httpclient.WithRequestID(c.Request.Context(), requestID)
		start := time.Now()
		resp, err := s.call(ctx, route, body)
		elapsed := time.Since(start)
		s.metrics.observeUpstream(route.path, err, elapsed)

		if err != nil {
			s.logger.Error().Str("route", route.path).Str("request_id", requestID).Str("error", err.Error()).Msg(route.name + " failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			s.record(c.Request.Context(), route, requestID, http.StatusInternalServerError, 0, err, elapsed)
			return
		}

		writeUpstreamBody(c, resp.Body)
		s.record(c.Request.Context(), route, requestID, http.StatusOK, resp.StatusCode, nil, elapsed)
	}
}

// call はルートに応じたアップストリーム呼び出しを行う。
func (s *Server) call(ctx context.Context, route forwardRoute, body []byte) (*httpclient.Response, error) {
	if route.method == http.MethodGet {
		return s.upstream.Get(ctx, route.path)
	}
	return s.upstream.PostJSON(ctx, route.path, body)
}

// record は中継結果を履歴に記録する。記録の失敗はレスポンスに影響させない。
func (s *Server) record(ctx context.Context, route forwardRoute, requestID string, status, upstreamStatus int, callErr error, elapsed time.Duration) {
	if s.journal == nil {
		return
	}

	e := journal.Exchange{
		RequestID:      requestID,
		Route:          route.path,
		Method:         route.method,
		UpstreamURL:    s.upstream.URL(route.path),
		Status:         status,
		UpstreamStatus: upstreamStatus,
		DurationMS:     elapsed.Milliseconds(),
	}
	if callErr != nil {
		e.Error = callErr.Error()
		var statusErr *httpclient.StatusError
		if errors.As(callErr, &statusErr) {
			e.UpstreamStatus = statusErr.StatusCode
		}
	}

	// クライアントの切断で記録が失われないようにする
	if err := s.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		s.metrics.journalFailuresTotal.Inc()
		s.logger.Warn().Err(err).Str("request_id", requestID).Msg("中継履歴の記録に失敗しました")
	}
}

// emptyObject はボディが無い場合に転送するJSON。
var emptyObject = []byte("{}")

// readRequestBody は転送するリクエストボディを読み取り、失敗時は返すべきステータスコードを返す。
// Content-Typeがapplication/jsonでない場合と空のボディは{}として扱う。
// JSONはトップレベルがオブジェクトか配列のものだけを受け付ける。
func readRequestBody(c *gin.Context, limit int64) ([]byte, int, error) {
	if !strings.EqualFold(c.ContentType(), binding.MIMEJSON) || c.Request.Body == nil {
		return emptyObject, 0, nil
	}

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("リクエストボディが上限(%dバイト)を超えています", maxErr.Limit)
		}
		return nil, http.StatusBadRequest, errors.New("リクエストボディの読み取りに失敗しました")
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return emptyObject, 0, nil
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, http.StatusBadRequest, errors.New("リクエストボディはJSONオブジェクトまたは配列である必要があります")
	}
	if !json.Valid(trimmed) {
		return nil, http.StatusBadRequest, errors.New("リクエストボディが不正なJSONです")
	}
	return raw, 0, nil
}

// lookupField はJSONオブジェクトのトップレベルのフィールドを生のJSONとして返す。
// オブジェクトでない場合やフィールドが無い場合はfalseを返す。
func lookupField(body []byte, field string) ([]byte, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, false
	}
	v, ok := obj[field]
	return v, ok
}

// writeUpstreamBody はアップストリームのボディを200で返す。
// JSONとして妥当でなければJSON文字列として返し、レスポンスを常にJSONに保つ。
func writeUpstreamBody(c *gin.Context, body []byte) {
	if json.Valid(body) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", body)
		return
	}
	c.JSON(http.StatusOK, string(body))
}
