package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/socialauth/internal/auth"
	"github.com/hitoshi/socialauth/internal/config"
	"github.com/hitoshi/socialauth/internal/database"
	"github.com/hitoshi/socialauth/internal/device"
	"github.com/hitoshi/socialauth/internal/event"
	"github.com/hitoshi/socialauth/internal/handler"
	"github.com/hitoshi/socialauth/internal/inbox"
	"github.com/hitoshi/socialauth/internal/metrics"
	"github.com/hitoshi/socialauth/internal/middleware"
	"github.com/hitoshi/socialauth/internal/notify"
	"github.com/hitoshi/socialauth/internal/repository"
	"github.com/hitoshi/socialauth/internal/security"
	"github.com/hitoshi/socialauth/internal/user"
	"github.com/hitoshi/socialauth/internal/worker/cleanup"
	"github.com/hitoshi/socialauth/internal/worker/task"
)

const (
	// throttlePruneInterval はログインメール送信制限の古い記録を掃除する間隔。
	throttlePruneInterval = 10 * time.Minute
	dbReadyAttempts       = 10
)

// runServe はAPIサーバーモードで起動する。
// SIGINT/SIGTERMを受け取るとHTTPサーバーを停止し、実行中の通知タスクの完了を待ってから終了する。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	readyCtx, cancelReady := context.WithTimeout(context.Background(), time.Minute)
	err = database.WaitReady(readyCtx, db, dbReadyAttempts, 500*time.Millisecond)
	cancelReady()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリとメトリクスの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	tokenRepo := repository.NewPostgresDeviceTokenRepo(db)
	notificationRepo := repository.NewPostgresNotificationRepo(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. 認証サービスの初期化
	tokens, err := auth.NewTokenService(cfg.JWTSecret, userRepo)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	var oauthProviders []auth.OAuthProvider
	if cfg.GoogleEnabled() {
		oauthProviders = append(oauthProviders, auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}))
	} else {
		slog.Warn("google login is disabled: GOOGLE_CLIENT_ID/SECRET/REDIRECT_URL are not set")
	}

	bus := event.NewBus()
	authService := auth.NewService(auth.ServiceDeps{
		Users:     userRepo,
		Tokens:    tokens,
		Hasher:    auth.NewBcryptHasher(bcrypt.DefaultCost),
		Providers: auth.NewProviders(oauthProviders...),
		Events:    bus,
		Names:     security.NewNameSanitizer(),
	})

	// 4. 通知スタックの初期化
	runner := task.NewRunner(slog.Default(), cfg.NotifyTaskTimeout, cfg.NotifyMaxConcurrent,
		task.WithObserver(collector),
	)
	stack, err := newNotificationStack(cfg, runner, tokenRepo, notificationRepo, collector)
	if err != nil {
		return err
	}
	defer stack.Close()

	if err := stack.dispatcher.Subscribe(bus); err != nil {
		return fmt.Errorf("failed to subscribe notification dispatcher: %w", err)
	}
	if err := bus.Subscribe(collector.ObserveEvent); err != nil {
		return fmt.Errorf("failed to subscribe metrics collector: %w", err)
	}

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitSensitive),
	)
	defer rateLimiter.Stop()

	vapidPublicKey := ""
	if cfg.PushEnabled() {
		vapidPublicKey = cfg.VAPIDPublicKey
	}

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         slog.Default(),
		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),
		StatusObserver: collector,

		UserResolver:        tokens,
		CORSAllowedOrigin:   cfg.CORSAllowedOrigin,
		RateLimiter:         rateLimiter,
		AuthRateLimitPerMin: cfg.RateLimitAuth,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:  cfg.FrontendURL,
			CookieSecure: cfg.CookieSecure(),
		},
		AuthFailures: collector,

		DeviceService:  device.NewService(tokenRepo),
		VAPIDPublicKey: vapidPublicKey,

		InboxService:     inbox.NewService(notificationRepo),
		UserAdminService: user.NewService(userRepo, bus),
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go stack.pruneThrottle(ctx)

	cleanupJob := cleanup.NewJob(db, slog.Default())
	cleanupJob.TokenRetentionDays = cfg.TokenRetentionDays
	cleanupJob.NotificationRetentionDays = cfg.NotificationRetentionDays
	go cleanupJob.Schedule(ctx, cfg.CleanupInterval)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	// 7. グレースフルシャットダウン
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := runner.Wait(shutdownCtx); err != nil {
		slog.Warn("notification tasks did not finish before shutdown",
			slog.String("error", err.Error()),
		)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// notificationStack は通知配送に関わるコンポーネントの組。
type notificationStack struct {
	dispatcher *notify.Dispatcher
	throttle   *notify.Throttle
	relay      *notify.AMQPRelay // 未設定または接続失敗の場合はnil
}

// newNotificationStack は設定に応じて通知チャネルを組み立てる。
// プッシュ通知とメールは設定がなければ送信をスキップする。
// AMQPへの転送は補助的な経路のため、接続に失敗しても起動は続行する。
func newNotificationStack(
	cfg *config.Config,
	runner notify.TaskRunner,
	tokens repository.DeviceTokenRepository,
	notifications repository.NotificationRepository,
	collector *metrics.Collector,
) (*notificationStack, error) {
	logger := slog.Default()

	var sender notify.PushSender
	if cfg.PushEnabled() {
		sender = notify.NewWebPushSender(notify.WebPushConfig{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subject:         cfg.VAPIDSubject,
			TTL:             cfg.PushTTL,
			MaxConcurrent:   cfg.PushMaxConcurrent,
			RequestTimeout:  cfg.PushRequestTimeout,
		}, security.NewEndpointGuard())
	} else {
		slog.Warn("push notifications are disabled: VAPID keys are not set")
	}

	var mailer notify.Mailer
	if cfg.SMTPEnabled() {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			FromAddress: cfg.MailFromAddress,
			FromName:    cfg.MailFromName,
		})
	} else {
		slog.Warn("email notifications are disabled: SMTP_HOST is not set")
	}

	renderer, err := notify.NewTemplateRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load email templates: %w", err)
	}
	throttle := notify.NewThrottle(cfg.LoginMailThrottleWindow, cfg.LoginMailThrottleMax, nil)

	stack := &notificationStack{throttle: throttle}

	var relay notify.Relay
	if cfg.NotifyAMQPURL != "" {
		r, err := notify.NewAMQPRelay(cfg.NotifyAMQPURL, cfg.NotifyAMQPQueue)
		if err != nil {
			slog.Warn("notification relay is disabled: failed to connect to AMQP broker",
				slog.String("error", err.Error()),
			)
		} else {
			stack.relay = r
			relay = r
		}
	}

	stack.dispatcher = notify.NewDispatcher(notify.DispatcherConfig{
		Runner:        runner,
		Notifications: notifications,
		Pusher:        notify.NewAdminPusher(tokens, sender, logger, collector),
		Email: notify.NewEmailChannel(notify.EmailChannelConfig{
			Mailer:      mailer,
			Renderer:    renderer,
			Throttle:    throttle,
			FrontendURL: cfg.FrontendURL,
			Logger:      logger,
			Recorder:    collector,
		}),
		Relay:    relay,
		Logger:   logger,
		Recorder: collector,
	})
	return stack, nil
}

// pruneThrottle はctxがキャンセルされるまで送信制限の古い記録を定期的に削除する。
func (s *notificationStack) pruneThrottle(ctx context.Context) {
	ticker := time.NewTicker(throttlePruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.throttle.Prune()
		}
	}
}

// Close はAMQP接続を閉じる。
func (s *notificationStack) Close() {
	if s.relay != nil {
		s.relay.Close()
	}
}

// compile-time interface check
var _ handler.HealthChecker = (*sql.DB)(nil)
