package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"strconv"
	"time"

	"github.com/hitoshi/socialauth/internal/event"
	"github.com/hitoshi/socialauth/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// メールの件名。
const (
	SubjectWelcome     = "Welcome to Social Auth App!"
	SubjectLoginNotice = "New Login to Your Account"
)

const (
	templateWelcome     = "welcome.html"
	templateLoginNotice = "login_success.html"
	unknownValue        = "Unknown"
)

// Mailer はHTMLメールを1通送信する。
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// TemplateData はメールテンプレートに渡す値。
type TemplateData struct {
	UserName    string
	UserEmail   string
	LoginURL    string
	LoginTime   string
	IPAddress   string
	UserAgent   string
	SecurityURL string
	Year        int
}

// TemplateRenderer は埋め込みのHTMLテンプレートからメール本文を生成する。
type TemplateRenderer struct {
	templates *template.Template
}

// NewTemplateRenderer は埋め込みテンプレートを読み込んでTemplateRendererを生成する。
func NewTemplateRenderer() (*TemplateRenderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse mail templates: %w", err)
	}
	return &TemplateRenderer{templates: tmpl}, nil
}

// Render は指定テンプレートを描画する。
func (r *TemplateRenderer) Render(name string, data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

// EmailChannel はユーザー向けのウェルカムメールとログイン通知メールを送る。
// ログイン通知はユーザーIDごとにThrottleで間引き、ウェルカムメールは間引かない。
type EmailChannel struct {
	mailer      Mailer
	renderer    *TemplateRenderer
	throttle    *Throttle
	frontendURL string
	logger      *slog.Logger
	recorder    Recorder
	now         func() time.Time
}

// EmailChannelConfig はEmailChannelの依存関係。
type EmailChannelConfig struct {
	Mailer      Mailer // nilの場合は送信をスキップする
	Renderer    *TemplateRenderer
	Throttle    *Throttle
	FrontendURL string
	Logger      *slog.Logger
	Recorder    Recorder
}

// NewEmailChannel はEmailChannelを生成する。
func NewEmailChannel(cfg EmailChannelConfig) *EmailChannel {
	c := &EmailChannel{
		mailer:      cfg.Mailer,
		renderer:    cfg.Renderer,
		throttle:    cfg.Throttle,
		frontendURL: cfg.FrontendURL,
		logger:      cfg.Logger,
		recorder:    cfg.Recorder,
		now:         time.Now,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	return c
}

// SendWelcome はウェルカムメールを送る。
func (c *EmailChannel) SendWelcome(ctx context.Context, user *model.User) (Outcome, error) {
	outcome, err := c.sendWelcome(ctx, user)
	c.recorder.RecordDelivery(ChannelWelcome, outcome)
	return outcome, err
}

func (c *EmailChannel) sendWelcome(ctx context.Context, user *model.User) (Outcome, error) {
	to := model.Deref(user.Email)
	if c.mailer == nil || to == "" {
		return OutcomeSkipped, nil
	}

	html, err := c.renderer.Render(templateWelcome, TemplateData{
		UserName:  user.DisplayName(),
		UserEmail: to,
		LoginURL:  c.frontendURL + "/login",
		Year:      c.now().Year(),
	})
	if err != nil {
		return OutcomeFailed, err
	}
	if err := c.mailer.Send(ctx, to, SubjectWelcome, html); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to send welcome email: %w", err)
	}

	c.logger.Info("welcome email sent", slog.Int64("user_id", user.ID))
	return OutcomeSent, nil
}

// SendLoginNotice はログイン通知メールを送る。
// 送信枠がない場合は送らずにOutcomeThrottledを返す。送信に失敗した場合は枠を返却する。
func (c *EmailChannel) SendLoginNotice(ctx context.Context, user *model.User, meta event.RequestMetadata) (Outcome, error) {
	outcome, err := c.sendLoginNotice(ctx, user, meta)
	c.recorder.RecordDelivery(ChannelLogin, outcome)
	return outcome, err
}

func (c *EmailChannel) sendLoginNotice(ctx context.Context, user *model.User, meta event.RequestMetadata) (Outcome, error) {
	to := model.Deref(user.Email)
	if c.mailer == nil || to == "" {
		return OutcomeSkipped, nil
	}

	key := strconv.FormatInt(user.ID, 10)
	var reserved time.Time
	if c.throttle != nil {
		at, ok := c.throttle.Reserve(key)
		if !ok {
			c.logger.Debug("login email throttled", slog.Int64("user_id", user.ID))
			return OutcomeThrottled, nil
		}
		reserved = at
	}

	html, err := c.renderer.Render(templateLoginNotice, TemplateData{
		UserName:    user.DisplayName(),
		UserEmail:   to,
		LoginTime:   c.now().UTC().Format(time.RFC1123),
		IPAddress:   orUnknown(meta.IPAddress),
		UserAgent:   orUnknown(meta.UserAgent),
		SecurityURL: c.frontendURL + "/security",
		Year:        c.now().Year(),
	})
	if err == nil {
		err = c.mailer.Send(ctx, to, SubjectLoginNotice, html)
	}
	if err != nil {
		if c.throttle != nil {
			c.throttle.Release(key, reserved)
		}
		return OutcomeFailed, fmt.Errorf("failed to send login email: %w", err)
	}

	c.logger.Info("login email sent", slog.Int64("user_id", user.ID))
	return OutcomeSent, nil
}

func orUnknown(s string) string {
	if s == "" {
		return unknownValue
	}
	return s
}
