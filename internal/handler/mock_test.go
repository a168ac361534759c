package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialauth/internal/auth"
	"github.com/hitoshi/socialauth/internal/event"
	"github.com/hitoshi/socialauth/internal/inbox"
	"github.com/hitoshi/socialauth/internal/middleware"
	"github.com/hitoshi/socialauth/internal/model"
	"github.com/hitoshi/socialauth/internal/user"
)

// --- モック定義 ---

// mockAuthService はAuthServiceのモック実装。
type mockAuthService struct {
	registerFn      func(ctx context.Context, in auth.RegisterInput, meta event.RequestMetadata) (*auth.AuthResult, error)
	loginFn         func(ctx context.Context, in auth.LoginInput, meta event.RequestMetadata) (*auth.AuthResult, error)
	loginURLFn      func(providerName, state string) (string, error)
	oauthCallbackFn func(ctx context.Context, providerName, code string, meta event.RequestMetadata) (*auth.AuthResult, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput, meta event.RequestMetadata) (*auth.AuthResult, error) {
	return m.registerFn(ctx, in, meta)
}

func (m *mockAuthService) Login(ctx context.Context, in auth.LoginInput, meta event.RequestMetadata) (*auth.AuthResult, error) {
	return m.loginFn(ctx, in, meta)
}

func (m *mockAuthService) LoginURL(providerName, state string) (string, error) {
	return m.loginURLFn(providerName, state)
}

func (m *mockAuthService) HandleOAuthCallback(ctx context.Context, providerName, code string, meta event.RequestMetadata) (*auth.AuthResult, error) {
	return m.oauthCallbackFn(ctx, providerName, code, meta)
}

// recordingFailures はAuthFailureRecorderのテスト実装。
type recordingFailures struct {
	reasons []string
}

func (r *recordingFailures) RecordAuthFailure(reason string) {
	r.reasons = append(r.reasons, reason)
}

// mockDeviceService はDeviceServiceのモック実装。
type mockDeviceService struct {
	registerFn   func(ctx context.Context, userID int64, token, deviceType, deviceName string) (*model.DeviceToken, error)
	removeFn     func(ctx context.Context, userID int64, token string) error
	listActiveFn func(ctx context.Context, userID int64) ([]*model.DeviceToken, error)
}

func (m *mockDeviceService) Register(ctx context.Context, userID int64, token, deviceType, deviceName string) (*model.DeviceToken, error) {
	return m.registerFn(ctx, userID, token, deviceType, deviceName)
}

func (m *mockDeviceService) Remove(ctx context.Context, userID int64, token string) error {
	return m.removeFn(ctx, userID, token)
}

func (m *mockDeviceService) ListActive(ctx context.Context, userID int64) ([]*model.DeviceToken, error) {
	return m.listActiveFn(ctx, userID)
}

// mockInboxService はInboxServiceのモック実装。
type mockInboxService struct {
	listFn        func(ctx context.Context, viewer *model.User, page, limit int) (*inbox.Page, error)
	unreadCountFn func(ctx context.Context, viewer *model.User) (int, error)
	markReadFn    func(ctx context.Context, viewer *model.User, id int64) (*model.Notification, error)
	markAllReadFn func(ctx context.Context, viewer *model.User) (int64, error)
}

func (m *mockInboxService) List(ctx context.Context, viewer *model.User, page, limit int) (*inbox.Page, error) {
	return m.listFn(ctx, viewer, page, limit)
}

func (m *mockInboxService) UnreadCount(ctx context.Context, viewer *model.User) (int, error) {
	return m.unreadCountFn(ctx, viewer)
}

func (m *mockInboxService) MarkRead(ctx context.Context, viewer *model.User, id int64) (*model.Notification, error) {
	return m.markReadFn(ctx, viewer, id)
}

func (m *mockInboxService) MarkAllRead(ctx context.Context, viewer *model.User) (int64, error) {
	return m.markAllReadFn(ctx, viewer)
}

// mockUserAdminService はUserAdminServiceのモック実装。
type mockUserAdminService struct {
	listFn        func(ctx context.Context, filter model.UserFilter) (*user.Page, error)
	statsFn       func(ctx context.Context) (*model.UserStats, error)
	grantAdminFn  func(ctx context.Context, id int64) (*model.User, error)
	revokeAdminFn func(ctx context.Context, actorID, id int64) (*model.User, error)
	exportFn      func(ctx context.Context, actor *model.User, filter model.UserFilter, meta event.RequestMetadata, w io.Writer) (int, error)
}

func (m *mockUserAdminService) List(ctx context.Context, filter model.UserFilter) (*user.Page, error) {
	return m.listFn(ctx, filter)
}

func (m *mockUserAdminService) Stats(ctx context.Context) (*model.UserStats, error) {
	return m.statsFn(ctx)
}

func (m *mockUserAdminService) GrantAdmin(ctx context.Context, id int64) (*model.User, error) {
	return m.grantAdminFn(ctx, id)
}

func (m *mockUserAdminService) RevokeAdmin(ctx context.Context, actorID, id int64) (*model.User, error) {
	return m.revokeAdminFn(ctx, actorID, id)
}

func (m *mockUserAdminService) Export(ctx context.Context, actor *model.User, filter model.UserFilter, meta event.RequestMetadata, w io.Writer) (int, error) {
	return m.exportFn(ctx, actor, filter, meta, w)
}

func (m *mockUserAdminService) ExportFilename() string {
	return "users_2026-01-02_030405.csv"
}

// --- テストヘルパー ---

// withUser はテスト用に認証済みユーザーをコンテキストに注入するヘルパー。
func withUser(r *http.Request, u *model.User) *http.Request {
	return r.WithContext(middleware.ContextWithUser(r.Context(), u))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
		r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	}
	rctx.URLParams.Add(key, value)
	return r
}

// decodeJSON はレスポンスボディをデコードする。
func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response body: %v\nraw: %s", err, w.Body.String())
	}
}

// errorCode はエラーレスポンスのcodeを返す。
func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorResponseBody
	decodeJSON(t, w, &body)
	return body.Code
}

func strPtr(s string) *string { return &s }
