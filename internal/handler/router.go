package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/socialauth/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 共通
	Logger         *slog.Logger
	HealthChecker  HealthChecker
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない
	StatusObserver middleware.StatusObserver

	// ミドルウェア依存
	UserResolver        middleware.UserResolver
	CORSAllowedOrigin   string
	RateLimiter         *middleware.RateLimiter
	AuthRateLimitPerMin int

	// 認証
	AuthService  AuthService
	AuthConfig   AuthHandlerConfig
	AuthFailures AuthFailureRecorder

	// 端末トークン
	DeviceService  DeviceService
	VAPIDPublicKey string

	// 受信箱
	InboxService InboxService

	// 管理者向けユーザー管理
	UserAdminService UserAdminService
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → CORS
//	/api/*: Auth → RateLimit(General) [→ Admin → RateLimit(Sensitive)]
//
// 認証ルート（/auth/*）はIP単位のレート制限のみを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusObserver))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.AuthFailures)
	pushHandler := NewPushHandler(deps.DeviceService, deps.VAPIDPublicKey)
	notificationHandler := NewNotificationHandler(deps.InboxService)
	adminHandler := NewAdminHandler(deps.UserAdminService)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewIPRateLimitMiddleware(deps.AuthRateLimitPerMin))
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		// OAuthフロー
		r.Get("/{provider}", authHandler.OAuthRedirect)
		r.Get("/{provider}/callback", authHandler.OAuthCallback)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.UserResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/me", authHandler.Me)
		r.Get("/verify", authHandler.Verify)

		// 端末トークン
		r.Route("/push", func(r chi.Router) {
			r.Post("/register", pushHandler.Register)
			r.Post("/remove", pushHandler.Remove)
			r.Get("/tokens", pushHandler.List)
			r.Get("/public-key", pushHandler.PublicKey)
		})

		// 受信箱
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.List)
			r.Get("/unread-count", notificationHandler.UnreadCount)
			r.Post("/read-all", notificationHandler.MarkAllRead)
			r.Post("/{id}/read", notificationHandler.MarkRead)
		})

		// 管理者向けユーザー管理
		r.Route("/admin/users", func(r chi.Router) {
			r.Use(middleware.NewAdminMiddleware())

			r.Get("/", adminHandler.ListUsers)
			r.Get("/stats", adminHandler.Stats)

			// エクスポートと権限変更は専用のレート制限を追加
			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.SensitiveMiddleware())
				r.Get("/export", adminHandler.Export)
				r.Post("/{id}/grant-admin", adminHandler.GrantAdmin)
				r.Post("/{id}/revoke-admin", adminHandler.RevokeAdmin)
			})
		})
	})

	return r
}
