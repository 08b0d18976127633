package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/studyadmin/pkg/identity"
	"github.com/nao1215/studyadmin/pkg/session"
)

// SessionCookieName はセッショントークンを格納するクッキー名。
const SessionCookieName = "admin_session"

// Ginコンテキストのキー。
const (
	contextKeyIdentity  = "identity"
	contextKeySessionID = "session_id"
)

// UserLookup はユーザーIDから上流のユーザー情報を取得する。
type UserLookup interface {
	LookupUser(ctx context.Context, userID string) (identity.Identity, error)
}

// SessionCookie はセッションクッキーの書き込みと削除を行う。
type SessionCookie struct {
	// Secure はクッキーにSecure属性を付けるかどうか。
	Secure bool
}

// Write はトークンをセッションクッキーとして設定する。
func (sc SessionCookie) Write(c *gin.Context, token string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, token, int(ttl.Seconds()), "/", "", sc.Secure, true)
}

// Clear はセッションクッキーを削除する。
func (sc SessionCookie) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", sc.Secure, true)
}

// SessionConfig はLoadSessionの依存関係。
type SessionConfig struct {
	// Store はセッションの保存先。
	Store session.Store
	// Signer はセッショントークンの検証に使う。
	Signer *session.Signer
	// Users は上流APIのユーザー情報取得に使う。
	Users UserLookup
	// Cookie は無効なクッキーの削除に使う。
	Cookie SessionCookie
}

// LoadSession はセッションクッキーから認証済みユーザーを復元するGinミドルウェアを返す。
// 復元に失敗した場合は何も設定せずに次のハンドラへ進む。認証の要否はRequireSessionが判断する。
func LoadSession(cfg SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookieName)
		if err != nil || token == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		sessionID, err := cfg.Signer.Parse(token)
		if err != nil {
			slog.DebugContext(ctx, "セッショントークンが無効です", "error", err)
			cfg.Cookie.Clear(c)
			c.Next()
			return
		}

		rec, err := cfg.Store.Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
				slog.DebugContext(ctx, "セッションが無効です", "error", err)
				cfg.Cookie.Clear(c)
			} else {
				slog.ErrorContext(ctx, "セッションの取得に失敗", "error", err)
			}
			c.Next()
			return
		}

		ident, err := cfg.Users.LookupUser(ctx, rec.UserID)
		if err != nil {
			slog.WarnContext(ctx, "ユーザー情報の再取得に失敗", "user_id", rec.UserID, "error", err)
			c.Next()
			return
		}
		if !ident.Active {
			slog.InfoContext(ctx, "無効化されたユーザーのセッションです", "user_id", rec.UserID)
			c.Next()
			return
		}

		SetIdentity(c, ident, sessionID)
		c.Next()
	}
}

// RequireSession は認証済みユーザーが無いリクエストを401で中断するGinミドルウェアを返す。
// LoadSessionが事前に適用されている必要がある。
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentIdentity(c); !ok {
			abortWithStatus(c, http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

// SetIdentity はリクエストに認証済みユーザーを設定する。
// Ginコンテキストとリクエストのcontext.Contextの両方に格納する。
func SetIdentity(c *gin.Context, ident identity.Identity, sessionID string) {
	c.Set(contextKeyIdentity, ident)
	c.Set(contextKeySessionID, sessionID)
	c.Request = c.Request.WithContext(identity.WithIdentity(c.Request.Context(), ident))
}

// CurrentIdentity はGinコンテキストから認証済みユーザーを取得する。
func CurrentIdentity(c *gin.Context) (identity.Identity, bool) {
	v, ok := c.Get(contextKeyIdentity)
	if !ok {
		return identity.Identity{}, false
	}
	ident, ok := v.(identity.Identity)
	return ident, ok
}

// SessionID はGinコンテキストから現在のセッションIDを取得する。
func SessionID(c *gin.Context) string {
	return c.GetString(contextKeySessionID)
}
