package admin

import (
	"embed"
	"html/template"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/studyadmin/pkg/identity"
	"github.com/nao1215/studyadmin/pkg/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

// テンプレート名。
const (
	tmplIndex        = "index.html"
	tmplLogin        = "login.html"
	tmplStudies      = "studies.html"
	tmplStudyDetails = "study_details.html"
)

// loadTemplates は埋め込まれたHTMLテンプレートを読み込む。
func loadTemplates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

// page はテンプレートに渡す値。
type page struct {
	Title    string
	LoggedIn bool
	User     identity.Identity
	Flashes  []flashMessage

	// ログインフォーム
	CSRFToken string
	Username  string
	Errors    map[string]string

	// 研究詳細
	StudyID string
}

// newPage は現在のリクエストのユーザーとフラッシュメッセージを設定したpageを返す。
func (s *Server) newPage(c *gin.Context, title string) page {
	p := page{Title: title, Flashes: popFlashes(c, s.cfg.SecureCookies())}
	if ident, ok := middleware.CurrentIdentity(c); ok {
		p.LoggedIn = true
		p.User = ident
	}
	return p
}
