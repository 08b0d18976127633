package middleware

import "github.com/gin-gonic/gin"

// abortWithStatus はステータスだけを設定してリクエストを中断する。
// ヘッダーを送信しないため、後段のエラーページ描画がボディを書き込める。
func abortWithStatus(c *gin.Context, code int) {
	c.Status(code)
	c.Abort()
}
