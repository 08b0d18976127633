// Package config は管理画面サービスの設定を環境変数から読み込む。
//
// 設定はプロセス起動時に一度だけ構築し、各コンポーネントに引数で渡す。
package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// SessionStore の種類。
const (
	SessionStoreMemory = "memory"
	SessionStoreSQLite = "sqlite"
)

// Config は管理画面サービスの設定。
type Config struct {
	// Port はサーバーのリッスンポート。
	Port string `env:"PORT" envDefault:"8080"`
	// Debug はデバッグモード。上流URLの選択、Ginのモード、クッキーのSecure属性に影響する。
	Debug bool `env:"DEBUG" envDefault:"false"`

	// APIURLDebug はデバッグモードで使う上流APIのベースURL。
	APIURLDebug string `env:"FA_API_URL_DEBUG"`
	// APIURLProduction は本番モードで使う上流APIのベースURL。
	APIURLProduction string `env:"FA_API_URL_PRODUCTION"`
	// UpstreamTimeout は上流APIへの1回の呼び出しのタイムアウト。
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
	// MaxBodyBytes は中継するリクエストボディの上限。
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES" envDefault:"10485760"`

	// SessionSecret はセッションクッキーの署名鍵。
	SessionSecret string `env:"SESSION_SECRET"`
	// SessionSecretFile はシークレットストアからマウントされた署名鍵。SessionSecretより優先する。
	SessionSecretFile string `env:"SESSION_SECRET_FILE,file"`
	// SessionTTL はセッションの有効期間。
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	// SessionStore はセッションの保存先（memory または sqlite）。
	SessionStore string `env:"SESSION_STORE" envDefault:"memory"`
	// SessionDBPath はsqliteストアのデータベースファイル。
	SessionDBPath string `env:"SESSION_DB_PATH" envDefault:"/data/admin-sessions.db"`

	// CORSAllowedOrigins はクロスオリジンアクセスを許可するオリジン。
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	// LoginRateLimit はIPアドレスごとのログイン試行の秒間許可数。
	LoginRateLimit float64 `env:"LOGIN_RATE_LIMIT" envDefault:"1"`
	// LoginRateBurst はログイン試行のバースト数。
	LoginRateBurst int `env:"LOGIN_RATE_BURST" envDefault:"5"`
	// TrustedProxies はX-Forwarded-Forを信頼するプロキシのIPアドレスまたはCIDR。
	// 空の場合はどのヘッダーも信頼せず、接続元アドレスをクライアントIPとする。
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// LogLevel はログレベル。
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// OTelEnabled はトレースの送信を有効にする。
	OTelEnabled bool `env:"OTEL_ENABLED" envDefault:"false"`
	// OTelEndpoint はOTLP/HTTPの送信先。
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"http://localhost:4318"`
	// OTelServiceName はトレースのサービス名。
	OTelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"study-admin"`
}

// Load は.envファイル（存在する場合）と環境変数から設定を読み込む。
// 既に設定されている環境変数は.envの値で上書きしない。
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse(env.Options{})
}

// Parse は指定のオプションで環境変数を解釈し、検証済みの設定を返す。
func Parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("環境変数の解釈に失敗: %w", err)
	}
	cfg.SessionSecret = strings.TrimSpace(cfg.SessionSecret)
	cfg.SessionSecretFile = strings.TrimSpace(cfg.SessionSecretFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値を検証する。
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORTが空です")
	}

	upstream := c.UpstreamURL()
	if upstream == "" {
		if c.Debug {
			return errors.New("FA_API_URL_DEBUGが設定されていません")
		}
		return errors.New("FA_API_URL_PRODUCTIONが設定されていません")
	}
	u, err := url.Parse(upstream)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("上流APIのURLが不正です: %q", upstream)
	}

	if c.UpstreamTimeout <= 0 {
		return errors.New("UPSTREAM_TIMEOUTは正の値である必要があります")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("MAX_BODY_BYTESは正の値である必要があります")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTLは正の値である必要があります")
	}
	switch c.SessionStore {
	case SessionStoreMemory:
	case SessionStoreSQLite:
		if c.SessionDBPath == "" {
			return errors.New("SESSION_DB_PATHが空です")
		}
	default:
		return fmt.Errorf("SESSION_STOREが不正です: %q", c.SessionStore)
	}
	if c.LoginRateLimit <= 0 || c.LoginRateBurst <= 0 {
		return errors.New("LOGIN_RATE_LIMITとLOGIN_RATE_BURSTは正の値である必要があります")
	}
	return nil
}

// UpstreamURL はモードに応じた上流APIのベースURLを末尾のスラッシュを除いて返す。
func (c *Config) UpstreamURL() string {
	raw := c.APIURLProduction
	if c.Debug {
		raw = c.APIURLDebug
	}
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// Secret はセッション署名鍵を返す。
// 設定されていない場合はランダムな鍵を生成し、generatedにtrueを返す。
// その場合、プロセスを再起動するとセッションは無効になる。
func (c *Config) Secret() (secret []byte, generated bool, err error) {
	if c.SessionSecretFile != "" {
		return []byte(c.SessionSecretFile), false, nil
	}
	if c.SessionSecret != "" {
		return []byte(c.SessionSecret), false, nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, false, fmt.Errorf("署名鍵の生成に失敗: %w", err)
	}
	return b, true, nil
}

// SecureCookies はクッキーにSecure属性を付けるかどうかを返す。
func (c *Config) SecureCookies() bool {
	return !c.Debug
}
