package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialauth/internal/auth"
	"github.com/hitoshi/socialauth/internal/event"
	"github.com/hitoshi/socialauth/internal/middleware"
	"github.com/hitoshi/socialauth/internal/model"
)

const oauthStateCookie = "oauth_state"

// OAuthコールバック失敗時にフロントエンドへ渡すエラーコード。
const (
	callbackErrAccessDenied  = "access_denied"
	callbackErrStateMismatch = "state_mismatch"
	callbackErrOAuth         = "oauth_error"
	callbackErrLinkRejected  = "account_link_rejected"
	callbackErrServer        = "server_error"
)

// AuthService は認証ハンドラーが必要とするサービスインターフェース。
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput, meta event.RequestMetadata) (*auth.AuthResult, error)
	Login(ctx context.Context, in auth.LoginInput, meta event.RequestMetadata) (*auth.AuthResult, error)
	LoginURL(providerName, state string) (string, error)
	HandleOAuthCallback(ctx context.Context, providerName, code string, meta event.RequestMetadata) (*auth.AuthResult, error)
}

// AuthFailureRecorder は認証失敗の理由を記録する。
type AuthFailureRecorder interface {
	RecordAuthFailure(reason string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL  string // OAuth完了後のリダイレクト先
	CookieSecure bool
}

// AuthHandler は登録・ログイン・OAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthService
	config   AuthHandlerConfig
	failures AuthFailureRecorder
}

// NewAuthHandler はAuthHandlerを生成する。failuresがnilの場合は失敗を記録しない。
func NewAuthHandler(service AuthService, config AuthHandlerConfig, failures AuthFailureRecorder) *AuthHandler {
	return &AuthHandler{
		service:  service,
		config:   config,
		failures: failures,
	}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,maxbytes=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// userSummary は登録・ログイン応答に含めるユーザー情報。
type userSummary struct {
	ID     int64   `json:"id"`
	Name   *string `json:"name"`
	Email  *string `json:"email"`
	Avatar *string `json:"avatar,omitempty"`
}

type authResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    userSummary `json:"user"`
}

// userResponse は/api/meで返す現在のユーザー。
type userResponse struct {
	ID       int64   `json:"id"`
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Avatar   *string `json:"avatar"`
	Provider *string `json:"provider"`
	Role     string  `json:"role"`
}

type verifyResponse struct {
	Valid  bool  `json:"valid"`
	UserID int64 `json:"userId"`
}

// Register はメールアドレスとパスワードでユーザーを登録する。
// 通知の成否にかかわらず201を返す。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	}, requestMetadata(r))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			middleware.WriteErrorResponse(w, http.StatusConflict, model.NewEmailTakenError())
		case errors.Is(err, auth.ErrInvalidEmail):
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("email: email"))
		case errors.Is(err, auth.ErrPasswordTooLong):
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("password: maxbytes=72"))
		default:
			handleServiceError(w, err)
		}
		return
	}

	writeJSON(w, r, http.StatusCreated, authResponse{
		Message: "Registration successful",
		Token:   result.Token,
		User: userSummary{
			ID:    result.User.ID,
			Name:  result.User.FullName,
			Email: result.User.Email,
		},
	})
}

// Login はメールアドレスとパスワードでログインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	}, requestMetadata(r))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrOAuthOnlyAccount):
			h.recordFailure("oauth_only")
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewOAuthOnlyAccountError())
		case errors.Is(err, auth.ErrInvalidCredentials):
			h.recordFailure("invalid_credentials")
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		default:
			handleServiceError(w, err)
		}
		return
	}

	writeJSON(w, r, http.StatusOK, authResponse{
		Message: "Login successful",
		Token:   result.Token,
		User: userSummary{
			ID:     result.User.ID,
			Name:   result.User.FullName,
			Email:  result.User.Email,
			Avatar: result.User.AvatarURL,
		},
	})
}

// OAuthRedirect はOAuthフローを開始する。
// GET /auth/{provider}
func (h *AuthHandler) OAuthRedirect(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	loginURL, err := h.service.LoginURL(provider, state)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownProvider) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUnknownProviderError(provider))
			return
		}
		handleServiceError(w, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// OAuthCallback はOAuthコールバックを処理し、トークン付きでフロントエンドへリダイレクトする。
// 失敗時は/login?error=<code>へリダイレクトする。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	query := r.URL.Query()

	// 1. プロバイダ側でのエラー（ユーザーによる拒否を含む）
	if providerErr := query.Get("error"); providerErr != "" {
		code := callbackErrOAuth
		if providerErr == callbackErrAccessDenied {
			code = callbackErrAccessDenied
		}
		slog.Warn("oauth provider returned error",
			slog.String("provider", provider),
			slog.String("error", providerErr),
		)
		h.redirectCallbackError(w, r, code)
		return
	}

	// 2. stateの検証（CSRF対策）
	state := query.Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		slog.Warn("oauth state mismatch", slog.String("provider", provider))
		h.redirectCallbackError(w, r, callbackErrStateMismatch)
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 3. 認可コードの取得
	code := query.Get("code")
	if code == "" {
		h.redirectCallbackError(w, r, callbackErrOAuth)
		return
	}

	// 4. 認証処理
	result, err := h.service.HandleOAuthCallback(r.Context(), provider, code, requestMetadata(r))
	if err != nil {
		reason := callbackErrServer
		switch {
		case errors.Is(err, auth.ErrProviderExchange), errors.Is(err, auth.ErrUnknownProvider):
			reason = callbackErrOAuth
		case errors.Is(err, auth.ErrLinkRejected):
			reason = callbackErrLinkRejected
		}
		slog.Error("oauth callback failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		h.redirectCallbackError(w, r, reason)
		return
	}

	// 5. トークン付きでフロントエンドにリダイレクト
	target := h.config.FrontendURL + "/auth/callback?token=" + url.QueryEscape(result.Token)
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

func (h *AuthHandler) redirectCallbackError(w http.ResponseWriter, r *http.Request, code string) {
	h.recordFailure(code)
	http.Redirect(w, r, h.config.FrontendURL+"/login?error="+code, http.StatusTemporaryRedirect)
}

// Me は現在のログインユーザー情報を返す。
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]userResponse{
		"user": {
			ID:       user.ID,
			Name:     user.FullName,
			Email:    user.Email,
			Avatar:   user.AvatarURL,
			Provider: user.Provider,
			Role:     string(user.Role),
		},
	})
}

// Verify はトークンが有効であることを返す。
// GET /api/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, verifyResponse{Valid: true, UserID: user.ID})
}

func (h *AuthHandler) recordFailure(reason string) {
	if h.failures != nil {
		h.failures.RecordAuthFailure(reason)
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
