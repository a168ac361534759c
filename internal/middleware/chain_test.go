package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialauth/internal/model"
)

// TestMiddlewareChain_AuthThenAdmin は認証・管理者・レート制限を連結した場合の挙動を検証する。
func TestMiddlewareChain_AuthThenAdmin(t *testing.T) {
	resolver := newResolver(map[string]*model.User{
		"admin-token":  {ID: 1, Role: model.RoleAdmin},
		"member-token": {ID: 2, Role: model.RoleUser},
	})
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(NewSecurityHeadersMiddleware())
	r.Route("/api", func(r chi.Router) {
		r.Use(NewAuthMiddleware(resolver))
		r.Use(rl.GeneralMiddleware())
		r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.With(NewAdminMiddleware()).Get("/admin/users", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	tests := []struct {
		name       string
		path       string
		token      string
		wantStatus int
	}{
		{"member reads own profile", "/api/me", "member-token", http.StatusOK},
		{"member blocked from admin", "/api/admin/users", "member-token", http.StatusForbidden},
		{"admin allowed", "/api/admin/users", "admin-token", http.StatusOK},
		{"anonymous", "/api/me", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("security headers must be applied")
			}
		})
	}
}
