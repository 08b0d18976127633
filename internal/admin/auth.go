package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/nao1215/studyadmin/pkg/middleware"
)

// msgInvalidCredentials はログインに失敗した場合の通知。
// 上流の失敗理由は区別せずに同じ文言を表示する。
const msgInvalidCredentials = "Invalid username or password"

// loginForm はログインフォームの入力。
type loginForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// bindLoginForm はフォームを束縛し、フィールドごとのエラーを返す。
// 入力値は加工せずにそのまま上流へ送る。
func bindLoginForm(c *gin.Context) (loginForm, map[string]string) {
	var form loginForm
	fieldErrs := make(map[string]string)

	if err := c.ShouldBind(&form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			fieldErrs["username"] = "Invalid form submission."
			return form, fieldErrs
		}
		for _, fe := range verrs {
			fieldErrs[strings.ToLower(fe.Field())] = "This field is required."
		}
	}
	return form, fieldErrs
}

// handleLoginForm はログインフォームを表示する。ログイン済みの場合はトップページへ移動する。
func (s *Server) handleLoginForm() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := middleware.CurrentIdentity(c); ok {
			c.Redirect(http.StatusFound, "/")
			return
		}
		s.renderLogin(c, http.StatusOK, "", nil, nil)
	}
}

// handleLogin は資格情報を上流APIで検証し、成功した場合はセッションを作成する。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		form, fieldErrs := bindLoginForm(c)
		if len(fieldErrs) > 0 {
			s.renderLogin(c, http.StatusBadRequest, form.Username, fieldErrs, nil)
			return
		}

		ctx := c.Request.Context()
		ident, err := s.upstream.Login(ctx, form.Username, form.Password)
		if err == nil && !ident.Active {
			err = errors.New("無効化されたユーザーです")
		}
		if err != nil {
			slog.WarnContext(ctx, "ログインに失敗", "username", form.Username, "error", err)
			s.renderLogin(c, http.StatusOK, form.Username, nil, []flashMessage{
				{Kind: flashError, Message: msgInvalidCredentials},
			})
			return
		}

		// 既存のセッションは引き継がない
		if old := middleware.SessionID(c); old != "" {
			if err := s.store.Delete(ctx, old); err != nil {
				slog.WarnContext(ctx, "既存セッションの削除に失敗", "error", err)
			}
		}

		rec, err := s.store.Create(ctx, ident.ID, s.cfg.SessionTTL)
		if err != nil {
			slog.ErrorContext(ctx, "セッションの作成に失敗", "user_id", ident.ID, "error", err)
			abortWithPage(c, http.StatusInternalServerError)
			return
		}
		token, err := s.signer.Sign(rec)
		if err != nil {
			slog.ErrorContext(ctx, "セッショントークンの署名に失敗", "user_id", ident.ID, "error", err)
			abortWithPage(c, http.StatusInternalServerError)
			return
		}

		s.cookie.Write(c, token, s.cfg.SessionTTL)
		slog.InfoContext(ctx, "ログインしました", "user_id", ident.ID, "username", ident.Username)
		c.Redirect(http.StatusFound, "/")
	}
}

// handleLogout はセッションを削除してログインページへ移動する。
func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := s.store.Delete(ctx, middleware.SessionID(c)); err != nil {
			slog.WarnContext(ctx, "セッションの削除に失敗", "error", err)
		}
		s.cookie.Clear(c)
		setFlash(c, flashLoggedOut, s.cfg.SecureCookies())

		if ident, ok := middleware.CurrentIdentity(c); ok {
			slog.InfoContext(ctx, "ログアウトしました", "user_id", ident.ID)
		}
		c.Redirect(http.StatusFound, "/auth/login")
	}
}

// renderLogin はログインフォームを描画する。
func (s *Server) renderLogin(c *gin.Context, status int, username string, fieldErrs map[string]string, notices []flashMessage) {
	p := s.newPage(c, "Log in")
	p.Flashes = append(p.Flashes, notices...)
	p.CSRFToken = s.csrf.Token(c)
	p.Username = username
	p.Errors = fieldErrs
	c.HTML(status, tmplLogin, p)
}
