package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/nao1215/studyadmin/internal/config"
	"github.com/nao1215/studyadmin/pkg/identity"
	"github.com/nao1215/studyadmin/pkg/middleware"
	"github.com/nao1215/studyadmin/pkg/session"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 10 * time.Second

// Upstream は上流APIへの呼び出し。*httpclient.Client が実装する。
type Upstream interface {
	Login(ctx context.Context, username, password string) (identity.Identity, error)
	LookupUser(ctx context.Context, userID string) (identity.Identity, error)
	Relay(ctx context.Context, method, path string, body []byte) (json.RawMessage, error)
}

// Deps はServerが使う外部の依存関係。
type Deps struct {
	// Store はセッションの保存先。
	Store session.Store
	// Signer はセッションクッキーの署名に使う。
	Signer *session.Signer
	// Upstream は上流APIのクライアント。
	Upstream Upstream
	// CSRFSecret はログインフォームのCSRFトークンの署名鍵。
	CSRFSecret []byte
}

// Server は管理画面サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサービスの設定。
	cfg *config.Config
	// store はセッションの保存先。
	store session.Store
	// signer はセッションクッキーの署名。
	signer *session.Signer
	// upstream は上流APIのクライアント。
	upstream Upstream
	// cookie はセッションクッキーの書き込み。
	cookie middleware.SessionCookie
	// csrf はログインフォームのCSRF対策。
	csrf *middleware.CSRF
	// loginLimiter はログイン試行の流量制限。
	loginLimiter *middleware.RateLimiter
}

// NewServer は新しい管理画面サーバーを生成する。
// 不要になったらCloseを呼ぶこと。
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Store == nil || deps.Signer == nil || deps.Upstream == nil {
		return nil, errors.New("セッションストア・署名・上流APIクライアントは必須です")
	}

	csrf, err := middleware.NewCSRF(deps.CSRFSecret, cfg.SecureCookies())
	if err != nil {
		return nil, fmt.Errorf("CSRF対策の初期化に失敗: %w", err)
	}

	tmpl, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("テンプレートの読み込みに失敗: %w", err)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIESが不正です: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	s := &Server{
		router:       router,
		cfg:          cfg,
		store:        deps.Store,
		signer:       deps.Signer,
		upstream:     deps.Upstream,
		cookie:       middleware.SessionCookie{Secure: cfg.SecureCookies()},
		csrf:         csrf,
		loginLimiter: middleware.NewRateLimiter(rate.Limit(cfg.LoginRateLimit), cfg.LoginRateBurst),
	}
	s.setupRoutes()

	return s, nil
}

// Handler はトレースを計測するhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, s.cfg.OTelServiceName)
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("管理画面サービスを起動します", "addr", srv.Addr, "upstream", s.cfg.UpstreamURL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("管理画面サービスを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}
	return nil
}

// Close はサーバーが起動したバックグラウンド処理を停止する。
func (s *Server) Close() {
	s.loginLimiter.Close()
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestLogger("/health"))
	s.router.Use(middleware.SecurityHeaders(s.cfg.SecureCookies()))
	s.router.Use(s.errorResponder())
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.CORS(s.cfg.CORSAllowedOrigins))

	// ヘルスチェックはセッションを読まない
	s.router.GET("/health", s.handleHealth())

	s.router.Use(middleware.LoadSession(middleware.SessionConfig{
		Store:  s.store,
		Signer: s.signer,
		Users:  s.upstream,
		Cookie: s.cookie,
	}))
	s.router.NoRoute(func(c *gin.Context) {
		abortWithPage(c, http.StatusNotFound)
	})

	s.router.GET("/", s.handleIndex())

	// ログイン・ログアウト
	auth := s.router.Group("/auth")
	{
		auth.GET("/login", s.handleLoginForm())
		auth.POST("/login", s.loginLimiter.Middleware(), s.csrf.Verify(), s.handleLogin())
		auth.GET("/logout", middleware.RequireSession(), s.handleLogout())
	}

	// 管理画面
	dash := s.router.Group("/dash", middleware.RequireSession())
	{
		dash.GET("/studies/*id", s.handleStudies())
	}

	// 上流APIへの中継
	api := s.router.Group("/api/dash/studies", middleware.RequireSession())
	{
		api.GET("", s.handleRelay("list-all", http.MethodGet, "/study/all"))
		api.GET("/*id", s.handleRelayWithParam("get-by-id", http.MethodGet, "/study/get/", "id"))
		api.POST("/results/*id", s.handleRelayWithParam("list-results-for-id", http.MethodPost, "/result/get_all/", "id"))
		api.POST("", s.handleRelayWithBody("create", http.MethodPost, "/study/upload"))
		api.PUT("/enable", s.handleRelayWithBody("enable", http.MethodPut, "/study/enable"))
		api.DELETE("/*id", s.handleRelayWithParam("delete-by-id", http.MethodDelete, "/study/delete/", "id"))
		api.POST("/images", s.handleRelayWithBody("upload-image", http.MethodPost, "/study/upload-base64-image"))
	}
}

// handleHealth はヘルスチェックを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "admin"})
	}
}
