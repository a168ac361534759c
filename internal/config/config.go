// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
// CONFIG_PATHが指定された場合はYAMLファイルを読み込み、環境変数で上書きする。
type Config struct {
	// Runtime
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"development"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// Database
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL" env-required:"true"`

	// Token
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`

	// Frontend
	FrontendURL string `yaml:"frontend_url" env:"FRONTEND_URL" env-required:"true"`

	// OAuth (3項目すべて設定された場合のみGoogleログインを有効化する)
	GoogleClientID     string `yaml:"google_client_id" env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `yaml:"google_client_secret" env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `yaml:"google_redirect_url" env:"GOOGLE_REDIRECT_URL"`

	// Mail
	SMTPHost                string        `yaml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort                int           `yaml:"smtp_port" env:"SMTP_PORT" env-default:"587"`
	SMTPUsername            string        `yaml:"smtp_username" env:"SMTP_USERNAME"`
	SMTPPassword            string        `yaml:"smtp_password" env:"SMTP_PASSWORD"`
	MailFromAddress         string        `yaml:"mail_from_address" env:"MAIL_FROM_ADDRESS" env-default:"noreply@example.com"`
	MailFromName            string        `yaml:"mail_from_name" env:"MAIL_FROM_NAME" env-default:"Social Auth App"`
	LoginMailThrottleWindow time.Duration `yaml:"login_mail_throttle_window" env:"MAIL_LOGIN_THROTTLE_WINDOW" env-default:"5m"`
	LoginMailThrottleMax    int           `yaml:"login_mail_throttle_max" env:"MAIL_LOGIN_THROTTLE_MAX" env-default:"1"`

	// Push
	VAPIDPublicKey     string        `yaml:"vapid_public_key" env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey    string        `yaml:"vapid_private_key" env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject       string        `yaml:"vapid_subject" env:"VAPID_SUBJECT" env-default:"mailto:admin@example.com"`
	PushTTL            time.Duration `yaml:"push_ttl" env:"PUSH_TTL" env-default:"24h"`
	PushMaxConcurrent  int           `yaml:"push_max_concurrent" env:"PUSH_MAX_CONCURRENT" env-default:"8"`
	PushRequestTimeout time.Duration `yaml:"push_request_timeout" env:"PUSH_REQUEST_TIMEOUT" env-default:"5s"`

	// Background notification tasks
	NotifyTaskTimeout   time.Duration `yaml:"notify_task_timeout" env:"NOTIFY_TASK_TIMEOUT" env-default:"10s"`
	NotifyMaxConcurrent int           `yaml:"notify_max_concurrent" env:"NOTIFY_MAX_CONCURRENT" env-default:"16"`

	// Relay (未設定の場合は無効)
	NotifyAMQPURL   string `yaml:"notify_amqp_url" env:"NOTIFY_AMQP_URL"`
	NotifyAMQPQueue string `yaml:"notify_amqp_queue" env:"NOTIFY_AMQP_QUEUE" env-default:"admin_notifications"`

	// Cleanup（保持日数が0の場合はその対象を削除しない）
	CleanupInterval           time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL" env-default:"24h"`
	TokenRetentionDays        int           `yaml:"token_retention_days" env:"TOKEN_RETENTION_DAYS" env-default:"30"`
	NotificationRetentionDays int           `yaml:"notification_retention_days" env:"NOTIFICATION_RETENTION_DAYS" env-default:"180"`

	// Rate Limit
	RateLimitGeneral   int `yaml:"rate_limit_general" env:"RATE_LIMIT_GENERAL" env-default:"120"`
	RateLimitSensitive int `yaml:"rate_limit_sensitive" env:"RATE_LIMIT_SENSITIVE" env-default:"10"`
	RateLimitAuth      int `yaml:"rate_limit_auth" env:"RATE_LIMIT_AUTH" env-default:"20"`

	// Server
	ServerPort      string        `yaml:"server_port" env:"SERVER_PORT" env-default:"8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"30s"`

	// CORS
	CORSAllowedOrigin string `yaml:"cors_allowed_origin" env:"CORS_ALLOWED_ORIGIN" env-default:"http://localhost:3000"`
}

// Load は設定を読み込む。
// 必須項目が未設定、または値の組み合わせが不正な場合はエラーを返す。
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")

	return &cfg, nil
}

// validate はタグでは表現できない設定の整合性を検証する。
func (c *Config) validate() error {
	var missing []string

	googleSet := []string{c.GoogleClientID, c.GoogleClientSecret, c.GoogleRedirectURL}
	if c.GoogleEnabled() || anyNonEmpty(googleSet) {
		if c.GoogleClientID == "" {
			missing = append(missing, "GOOGLE_CLIENT_ID")
		}
		if c.GoogleClientSecret == "" {
			missing = append(missing, "GOOGLE_CLIENT_SECRET")
		}
		if c.GoogleRedirectURL == "" {
			missing = append(missing, "GOOGLE_REDIRECT_URL")
		}
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		if c.VAPIDPublicKey == "" {
			missing = append(missing, "VAPID_PUBLIC_KEY")
		} else {
			missing = append(missing, "VAPID_PRIVATE_KEY")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if c.LoginMailThrottleMax < 1 {
		return fmt.Errorf("MAIL_LOGIN_THROTTLE_MAX must be positive: %d", c.LoginMailThrottleMax)
	}
	if c.LoginMailThrottleWindow <= 0 {
		return fmt.Errorf("MAIL_LOGIN_THROTTLE_WINDOW must be positive: %s", c.LoginMailThrottleWindow)
	}
	if c.NotifyTaskTimeout <= 0 {
		return fmt.Errorf("NOTIFY_TASK_TIMEOUT must be positive: %s", c.NotifyTaskTimeout)
	}
	return nil
}

// GoogleEnabled はGoogleログインの設定が揃っているかを返す。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// CookieSecure はOAuth stateクッキーにSecure属性を付与するかを返す。
// GOOGLE_REDIRECT_URLがhttpsの場合に有効になる。
func (c *Config) CookieSecure() bool {
	return strings.HasPrefix(c.GoogleRedirectURL, "https://")
}

// SMTPEnabled はメール送信の設定があるかを返す。
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// PushEnabled はWeb Push送信の設定があるかを返す。
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

func anyNonEmpty(values []string) bool {
	for _, v := range values {
		if v != "" {
			return true
		}
	}
	return false
}
