package admin

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/studyadmin/pkg/httpclient"
	"github.com/nao1215/studyadmin/pkg/identity"
)

// エラーレスポンスの文言。
const (
	msgNoJSONData   = "Invalid input: No JSON data provided"
	msgBodyTooLarge = "Invalid input: Request body too large"
)

const contentTypeJSON = "application/json; charset=utf-8"

// handleRelay はボディ無しで固定パスの上流APIに中継するハンドラーを返す。
func (s *Server) handleRelay(operation, method, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.doRelay(c, operation, method, path, nil)
	}
}

// handleRelayWithParam はパスパラメータを上流のパスに埋め込んで中継するハンドラーを返す。
// パラメータは加工せず、パスセグメントとしてエスケープする。
func (s *Server) handleRelayWithParam(operation, method, pathPrefix, paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := wildcardParam(c, paramName)
		if strings.TrimSpace(id) == "" {
			abortWithPage(c, http.StatusNotFound)
			return
		}
		s.doRelay(c, operation, method, pathPrefix+url.PathEscape(id), nil)
	}
}

// wildcardParam はキャッチオールのパスパラメータから先頭の "/" を除いた値を返す。
// IDに "/" を含められるようにキャッチオールで受ける。
func wildcardParam(c *gin.Context, name string) string {
	return strings.TrimPrefix(c.Param(name), "/")
}

// handleRelayWithBody はJSONボディを必須として中継するハンドラーを返す。
// ボディが無い・JSONでない・空の値の場合は上流を呼ばずに400を返す。
func (s *Server) handleRelayWithBody(operation, method, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			msg := msgNoJSONData
			if errors.As(err, &tooLarge) {
				msg = msgBodyTooLarge
			}
			slog.WarnContext(c.Request.Context(), "リクエストボディの読み取りに失敗",
				"operation", operation,
				"error", err,
			)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		if !hasJSONData(body) {
			slog.WarnContext(c.Request.Context(), "JSONデータがありません",
				"operation", operation,
				"bytes", len(body),
			)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msgNoJSONData})
			return
		}

		s.doRelay(c, operation, method, path, body)
	}
}

// doRelay は上流APIを1回呼び出し、結果をローカルのレスポンスに変換する。
func (s *Server) doRelay(c *gin.Context, operation, method, path string, body []byte) {
	ctx := c.Request.Context()

	payload, err := s.upstream.Relay(ctx, method, path, body)
	if err != nil {
		status := httpclient.StatusOf(err)
		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		attrs := []any{
			"operation", operation,
			"method", method,
			"path", path,
			"status", status,
			"error", err,
		}
		if ident, ok := identity.FromContext(ctx); ok {
			attrs = append(attrs, "user_id", ident.ID)
		}
		slog.Log(ctx, level, "上流APIの呼び出しに失敗", attrs...)
		abortWithUpstreamError(c, err)
		return
	}

	c.Data(http.StatusOK, contentTypeJSON, payload)
}

// abortWithUpstreamError は上流のエラーをローカルのレスポンスに変換して中断する。
// 401・404・500はエラーページに任せ、それ以外は上流のJSONボディか
// ステータス文言のJSONを返す。
func abortWithUpstreamError(c *gin.Context, err error) {
	status := httpclient.StatusOf(err)
	if _, ok := errorPages[status]; ok {
		abortWithPage(c, status)
		return
	}

	var upErr *httpclient.Error
	if errors.As(err, &upErr) && upErr.Kind == httpclient.KindUpstreamStatus {
		if b := bytes.TrimSpace(upErr.Body); len(b) > 0 && json.Valid(b) {
			c.Data(status, contentTypeJSON, upErr.Body)
			c.Abort()
			return
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": http.StatusText(status)})
}

// hasJSONData はbodyが空でないJSON値かどうかを返す。
// null・{}・[]・""・false・0 は空とみなす。
func hasJSONData(body []byte) bool {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return false
	}

	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}
