package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// flashCookieName はフラッシュメッセージを次のリクエストに引き継ぐクッキー名。
const flashCookieName = "admin_flash"

// フラッシュメッセージの種類。
const (
	flashError = "error"
	flashInfo  = "info"
)

// flashMessage は画面に一度だけ表示する通知。
type flashMessage struct {
	Kind    string
	Message string
}

// フラッシュメッセージのコード。クッキーにはコードのみを格納し、
// 表示する文言はflashCatalogから引く。
const (
	flashLoggedOut = "logged_out"
)

var flashCatalog = map[string]flashMessage{
	flashLoggedOut: {Kind: flashInfo, Message: "Logout successful"},
}

// setFlash は次のリクエストで表示するフラッシュメッセージを設定する。
func setFlash(c *gin.Context, code string, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookieName, code, 60, "/", "", secure, true)
}

// popFlashes はフラッシュメッセージを取り出し、クッキーを削除する。
// 未知のコードは無視する。
func popFlashes(c *gin.Context, secure bool) []flashMessage {
	raw, err := c.Cookie(flashCookieName)
	if err != nil || raw == "" {
		return nil
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookieName, "", -1, "/", "", secure, true)

	var msgs []flashMessage
	for _, code := range strings.Split(raw, ",") {
		if m, ok := flashCatalog[strings.TrimSpace(code)]; ok {
			msgs = append(msgs, m)
		}
	}
	return msgs
}
