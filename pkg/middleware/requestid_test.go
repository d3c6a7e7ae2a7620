package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TestRequestID はRequestIDミドルウェアを検証する。
func TestRequestID(t *testing.T) {
	t.Parallel()

	newRouter := func(seen *string) *gin.Engine {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/health", func(c *gin.Context) {
			*seen = GetRequestID(c)
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})
		return router
	}

	t.Run("ヘッダーが無い場合はUUIDが割り当てられること", func(t *testing.T) {
		t.Parallel()

		var seen string
		w := httptest.NewRecorder()
		newRouter(&seen).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		got := w.Header().Get(HeaderRequestID)
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("X-Request-IDがUUIDではない: %q", got)
		}
		if seen != got {
			t.Errorf("コンテキストのID = %q, ヘッダーのID = %q", seen, got)
		}
	})

	t.Run("クライアントのX-Request-IDが引き継がれること", func(t *testing.T) {
		t.Parallel()

		var seen string
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(HeaderRequestID, "client-id-123")
		w := httptest.NewRecorder()
		newRouter(&seen).ServeHTTP(w, req)

		if got := w.Header().Get(HeaderRequestID); got != "client-id-123" {
			t.Errorf("X-Request-ID = %q, want %q", got, "client-id-123")
		}
		if seen != "client-id-123" {
			t.Errorf("GetRequestID() = %q, want %q", seen, "client-id-123")
		}
	})

	t.Run("長すぎるX-Request-IDは置き換えられること", func(t *testing.T) {
		t.Parallel()

		var seen string
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(HeaderRequestID, strings.Repeat("a", maxRequestIDLength+1))
		w := httptest.NewRecorder()
		newRouter(&seen).ServeHTTP(w, req)

		if _, err := uuid.Parse(seen); err != nil {
			t.Errorf("置き換え後のIDがUUIDではない: %q", seen)
		}
	})

	t.Run("ミドルウェアが無い場合は空文字列が返ること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		if got := GetRequestID(c); got != "" {
			t.Errorf("GetRequestID() = %q, want empty", got)
		}
	})
}
