package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// errorPages はステータスごとのエラーページのテンプレート名。
var errorPages = map[int]string{
	http.StatusUnauthorized:        "401.html",
	http.StatusNotFound:            "404.html",
	http.StatusInternalServerError: "500.html",
}

// errorResponder は後続のハンドラーが401・404・500を設定したままボディを書かなかった場合に
// 対応するエラーページを描画するGinミドルウェアを返す。それ以外のステータスには関与しない。
func (s *Server) errorResponder() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		status := c.Writer.Status()
		name, ok := errorPages[status]
		if !ok {
			return
		}
		c.HTML(status, name, s.newPage(c, http.StatusText(status)))
	}
}

// abortWithPage はボディを書かずにステータスを設定して中断し、エラーページの描画をerrorResponderに任せる。
func abortWithPage(c *gin.Context, status int) {
	c.Status(status)
	c.Abort()
}
