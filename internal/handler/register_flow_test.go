package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/socialauth/internal/auth"
	"github.com/hitoshi/socialauth/internal/event"
	"github.com/hitoshi/socialauth/internal/middleware"
	"github.com/hitoshi/socialauth/internal/model"
	"github.com/hitoshi/socialauth/internal/notify"
	"github.com/hitoshi/socialauth/internal/repository"
	"github.com/hitoshi/socialauth/internal/worker/task"
)

// --- 登録フロー用のインメモリ実装 ---

type flowUserRepo struct {
	mu    sync.Mutex
	users []*model.User
}

func (r *flowUserRepo) FindByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *flowUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if model.Deref(u.Email) == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *flowUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = int64(len(r.users) + 1)
	user.CreatedAt = time.Now()
	c := *user
	r.users = append(r.users, &c)
	return nil
}

func (r *flowUserRepo) UpdateProfile(context.Context, *model.User) error   { return nil }
func (r *flowUserRepo) UpdateRole(context.Context, int64, model.Role) error { return nil }
func (r *flowUserRepo) List(context.Context, model.UserFilter) ([]*model.User, int, error) {
	return nil, 0, nil
}
func (r *flowUserRepo) Stats(context.Context) (*model.UserStats, error) { return &model.UserStats{}, nil }

// failingNotificationRepo は監査レコードの保存に常に失敗する。
type failingNotificationRepo struct {
	mu       sync.Mutex
	attempts int
}

func (r *failingNotificationRepo) Create(context.Context, *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	return errors.New("notifications table unavailable")
}

func (r *failingNotificationRepo) FindByID(context.Context, int64) (*model.Notification, error) {
	return nil, nil
}

func (r *failingNotificationRepo) List(context.Context, repository.InboxScope, int, int) ([]*model.Notification, int, error) {
	return nil, 0, nil
}

func (r *failingNotificationRepo) CountUnread(context.Context, repository.InboxScope) (int, error) {
	return 0, nil
}

func (r *failingNotificationRepo) MarkRead(context.Context, int64) error { return nil }

func (r *failingNotificationRepo) MarkAllRead(context.Context, repository.InboxScope) (int64, error) {
	return 0, nil
}

// failingMailer はメール送信に常に失敗する。
type failingMailer struct {
	mu       sync.Mutex
	subjects []string
}

func (m *failingMailer) Send(_ context.Context, _, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return errors.New("smtp: connection refused")
}

func (m *failingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subjects)
}

// TestRegisterFlow_ChannelFailuresDoNotAffectResponse は通知チャネルがすべて失敗しても
// 登録が201と有効なトークンを返すことを検証する。
func TestRegisterFlow_ChannelFailuresDoNotAffectResponse(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := &flowUserRepo{}
	tokens, err := auth.NewTokenService("test-secret", users)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	bus := event.NewBus()
	authService := auth.NewService(auth.ServiceDeps{
		Users:  users,
		Tokens: tokens,
		Hasher: auth.NewBcryptHasher(4),
		Events: bus,
	})

	renderer, err := notify.NewTemplateRenderer()
	if err != nil {
		t.Fatalf("NewTemplateRenderer: %v", err)
	}
	mailer := &failingMailer{}
	notifications := &failingNotificationRepo{}
	runner := task.NewRunner(logger, time.Second, 4)
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Runner:        runner,
		Notifications: notifications,
		Email: notify.NewEmailChannel(notify.EmailChannelConfig{
			Mailer:      mailer,
			Renderer:    renderer,
			Throttle:    notify.NewThrottle(5*time.Minute, 1, nil),
			FrontendURL: testFrontendURL,
			Logger:      logger,
		}),
		Logger: logger,
	})
	if err := dispatcher.Subscribe(bus); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer rl.Stop()

	router := NewRouter(&RouterDeps{
		Logger:            logger,
		UserResolver:      tokens,
		CORSAllowedOrigin: testFrontendURL,
		RateLimiter:       rl,
		AuthService:       authService,
		AuthConfig:        AuthHandlerConfig{FrontendURL: testFrontendURL},
	})

	// 1. 登録
	w := httptest.NewRecorder()
	router.ServeHTTP(w, postJSON("/auth/register", `{"name":"Dana","email":"Dana@Example.com","password":"secret1"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
	var body authResponse
	decodeJSON(t, w, &body)
	if body.Token == "" {
		t.Fatal("expected token in response")
	}
	if got := model.Deref(body.User.Email); got != "dana@example.com" {
		t.Errorf("email = %q, want normalized", got)
	}

	// 2. バックグラウンドの配送がすべて終わるのを待つ
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := runner.Wait(ctx); err != nil {
		t.Fatalf("runner.Wait: %v", err)
	}
	if notifications.attempts != 1 {
		t.Errorf("audit persist attempts = %d, want 1", notifications.attempts)
	}
	if mailer.count() != 2 {
		t.Errorf("mail attempts = %d, want 2 (welcome + login)", mailer.count())
	}

	// 3. 発行されたトークンでユーザーを解決できる
	user, err := tokens.ResolveUser(context.Background(), body.Token)
	if err != nil || user == nil || user.ID != body.User.ID {
		t.Fatalf("ResolveUser = (%+v, %v)", user, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("/api/me status = %d, want 200", w.Code)
	}
}

// TestRegisterFlow_PasswordOverBcryptLimit は72バイトを超えるパスワードが
// 500ではなく400の入力エラーになり、ユーザーが作成されないことを検証する。
func TestRegisterFlow_PasswordOverBcryptLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := &flowUserRepo{}
	tokens, err := auth.NewTokenService("test-secret", users)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	authService := auth.NewService(auth.ServiceDeps{
		Users:  users,
		Tokens: tokens,
		Hasher: auth.NewBcryptHasher(4),
	})

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer rl.Stop()

	router := NewRouter(&RouterDeps{
		Logger:              logger,
		UserResolver:        tokens,
		CORSAllowedOrigin:   testFrontendURL,
		RateLimiter:         rl,
		AuthRateLimitPerMin: 100,
		AuthService:         authService,
		AuthConfig:          AuthHandlerConfig{FrontendURL: testFrontendURL},
	})

	passwords := map[string]string{
		"80 ascii bytes":        strings.Repeat("p", 80),
		"30 runes but 90 bytes": strings.Repeat("パ", 30),
	}
	for name, password := range passwords {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, postJSON("/auth/register", `{"name":"Erin","email":"erin@example.com","password":"`+password+`"}`))

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusBadRequest, w.Body.String())
			}
			if code := errorCode(t, w); code != model.ErrCodeValidation {
				t.Errorf("code = %q, want %q", code, model.ErrCodeValidation)
			}
		})
	}
	if len(users.users) != 0 {
		t.Errorf("created %d users, want 0", len(users.users))
	}
}
