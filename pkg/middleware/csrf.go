package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// CSRFCookieName はCSRFトークンの元になる値を格納するクッキー名。
	CSRFCookieName = "admin_csrf"
	// CSRFFormField はフォームに埋め込むCSRFトークンのフィールド名。
	CSRFFormField = "csrf_token"

	contextKeyCSRFNonce = "csrf_nonce"
)

// CSRF はダブルサブミットクッキー方式のCSRF対策を行う。
// クッキーにはランダムな値を、フォームにはその値のHMAC-SHA256を格納する。
type CSRF struct {
	secret []byte
	secure bool
}

// NewCSRF はCSRFを生成する。secretが空の場合はエラーを返す。
func NewCSRF(secret []byte, secure bool) (*CSRF, error) {
	if len(secret) == 0 {
		return nil, errors.New("CSRFの署名鍵が空です")
	}
	return &CSRF{secret: secret, secure: secure}, nil
}

// Token はフォームに埋め込むトークンを返す。
// クッキーが無い場合は新しい値を生成してクッキーに設定する。
func (x *CSRF) Token(c *gin.Context) string {
	nonce := c.GetString(contextKeyCSRFNonce)
	if nonce == "" {
		if v, err := c.Cookie(CSRFCookieName); err == nil && v != "" {
			nonce = v
		} else {
			nonce = uuid.NewString()
			c.SetSameSite(http.SameSiteStrictMode)
			c.SetCookie(CSRFCookieName, nonce, 0, "/", "", x.secure, true)
		}
		c.Set(contextKeyCSRFNonce, nonce)
	}
	return x.sign(nonce)
}

// Verify はフォームのトークンがクッキーと一致しないリクエストを400で中断するGinミドルウェアを返す。
func (x *CSRF) Verify() gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce, err := c.Cookie(CSRFCookieName)
		if err != nil || nonce == "" || !x.valid(nonce, c.PostForm(CSRFFormField)) {
			slog.WarnContext(c.Request.Context(), "CSRFトークンの検証に失敗",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
			)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid CSRF token"})
			return
		}
		c.Next()
	}
}

func (x *CSRF) sign(nonce string) string {
	mac := hmac.New(sha256.New, x.secret)
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (x *CSRF) valid(nonce, token string) bool {
	if token == "" {
		return false
	}
	return hmac.Equal([]byte(x.sign(nonce)), []byte(token))
}
