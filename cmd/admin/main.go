// 研究管理画面サービスのエントリポイント。
// ブラウザのログインセッションを管理し、研究と結果のAPI呼び出しを上流APIへ中継する。
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/studyadmin/internal/admin"
	"github.com/nao1215/studyadmin/internal/config"
	"github.com/nao1215/studyadmin/pkg/httpclient"
	"github.com/nao1215/studyadmin/pkg/logger"
	"github.com/nao1215/studyadmin/pkg/session"
	"github.com/nao1215/studyadmin/pkg/telemetry"
)

// sessionSweepInterval はメモリストアが期限切れセッションを掃除する間隔。
const sessionSweepInterval = time.Minute

func main() {
	if err := run(); err != nil {
		slog.Error("管理画面サービスが異常終了しました", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	logger.Init(os.Stdout, cfg.LogLevel)
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.OTelServiceName,
		Endpoint:    cfg.OTelEndpoint,
	})
	if err != nil {
		return fmt.Errorf("トレースの初期化に失敗: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("トレースの停止に失敗", "error", err)
		}
	}()

	secret, generated, err := cfg.Secret()
	if err != nil {
		return err
	}
	if generated {
		slog.Warn("SESSION_SECRETが未設定のためランダムな署名鍵を使用します。再起動するとセッションは無効になります")
	}
	signer, err := session.NewSigner(secret)
	if err != nil {
		return fmt.Errorf("セッション署名の初期化に失敗: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	upstream := httpclient.New(cfg.UpstreamURL(), httpclient.WithTimeout(cfg.UpstreamTimeout))

	server, err := admin.NewServer(cfg, admin.Deps{
		Store:      store,
		Signer:     signer,
		Upstream:   upstream,
		CSRFSecret: secret,
	})
	if err != nil {
		return fmt.Errorf("管理画面サーバーの初期化に失敗: %w", err)
	}
	defer server.Close()

	return server.Run(ctx)
}

// openStore は設定に応じたセッションストアを生成する。
func openStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.SessionStore {
	case config.SessionStoreSQLite:
		store, err := session.OpenSQLite(ctx, cfg.SessionDBPath)
		if err != nil {
			return nil, fmt.Errorf("SQLiteセッションストアの初期化に失敗: %w", err)
		}
		slog.Info("SQLiteセッションストアを使用します", "path", cfg.SessionDBPath)
		return store, nil
	default:
		slog.Info("メモリセッションストアを使用します")
		return session.NewMemoryStore(sessionSweepInterval), nil
	}
}
