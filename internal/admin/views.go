package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// handleIndex はトップページを表示する。
func (s *Server) handleIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, tmplIndex, s.newPage(c, ""))
	}
}

// handleStudies は研究一覧ページ、またはIDがある場合は研究詳細ページを表示する。
// IDが空白のみの場合は一覧へ移動する。
func (s *Server) handleStudies() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := wildcardParam(c, "id")
		switch {
		case id == "":
			c.HTML(http.StatusOK, tmplStudies, s.newPage(c, "Studies"))
		case strings.TrimSpace(id) == "":
			c.Redirect(http.StatusFound, "/dash/studies/")
		default:
			s.renderStudyDetails(c, id)
		}
	}
}

// renderStudyDetails は研究詳細ページを描画する。
func (s *Server) renderStudyDetails(c *gin.Context, id string) {
	p := s.newPage(c, "Study "+id)
	p.StudyID = id
	c.HTML(http.StatusOK, tmplStudyDetails, p)
}
