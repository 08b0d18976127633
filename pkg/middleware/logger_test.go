package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// captureDefaultLogger はテスト中のデフォルトロガーの出力をバッファに切り替える。
// グローバルな状態を変更するため、これを使うテストは並列実行しない。
func captureDefaultLogger(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

// TestRequestLogger はRequestLoggerミドルウェアを検証する。
func TestRequestLogger(t *testing.T) {
	t.Run("ステータスに応じたレベルでリクエストが記録されること", func(t *testing.T) {
		buf := captureDefaultLogger(t)

		router := gin.New()
		router.Use(RequestID(), RequestLogger("/health"))
		router.GET("/missing", func(c *gin.Context) {
			c.Status(http.StatusNotFound)
		})

		req := httptest.NewRequest(http.MethodGet, "/missing", nil)
		req.Header.Set(HeaderRequestID, "log-req-1")
		router.ServeHTTP(httptest.NewRecorder(), req)

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("ログのパースに失敗: %v (%s)", err, buf.String())
		}
		if entry["level"] != "WARN" {
			t.Errorf("level = %v, want WARN", entry["level"])
		}
		if entry["status"] != float64(http.StatusNotFound) {
			t.Errorf("status = %v, want 404", entry["status"])
		}
		if entry["path"] != "/missing" {
			t.Errorf("path = %v, want /missing", entry["path"])
		}
		if entry["request_id"] != "log-req-1" {
			t.Errorf("request_id = %v, want log-req-1", entry["request_id"])
		}
	})

	t.Run("除外パスはDEBUGで記録されること", func(t *testing.T) {
		buf := captureDefaultLogger(t)

		router := gin.New()
		router.Use(RequestLogger("/health"))
		router.GET("/health", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("ログのパースに失敗: %v (%s)", err, buf.String())
		}
		if entry["level"] != "DEBUG" {
			t.Errorf("level = %v, want DEBUG", entry["level"])
		}
	})
}
