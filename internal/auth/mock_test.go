package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hitoshi/socialauth/internal/event"
	"github.com/hitoshi/socialauth/internal/model"
	"github.com/hitoshi/socialauth/internal/repository"
)

// memoryUserRepo はテスト用のインメモリUserRepository。
type memoryUserRepo struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]*model.User
	findErr error
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[int64]*model.User)}
}

func clone(u *model.User) *model.User {
	c := *u
	return &c
}

func (r *memoryUserRepo) FindByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return clone(u), nil
}

func (r *memoryUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, u := range r.users {
		if model.Deref(u.Email) == email {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (r *memoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if user.Email != nil && model.Deref(u.Email) == *user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	r.nextID++
	user.ID = r.nextID
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = clone(user)
	return nil
}

func (r *memoryUserRepo) UpdateProfile(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[user.ID]
	if !ok {
		return errors.New("user not found")
	}
	stored.FullName = user.FullName
	stored.Provider = user.Provider
	stored.ProviderID = user.ProviderID
	stored.AvatarURL = user.AvatarURL
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *memoryUserRepo) UpdateRole(_ context.Context, id int64, role model.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[id]
	if !ok {
		return errors.New("user not found")
	}
	stored.Role = role
	return nil
}

func (r *memoryUserRepo) List(context.Context, model.UserFilter) ([]*model.User, int, error) {
	return nil, 0, errors.New("not implemented")
}

func (r *memoryUserRepo) Stats(context.Context) (*model.UserStats, error) {
	return nil, errors.New("not implemented")
}

func (r *memoryUserRepo) delete(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
}

func (r *memoryUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

var _ repository.UserRepository = (*memoryUserRepo)(nil)

// mockProvider はテスト用のOAuthProvider。
type mockProvider struct {
	name              string
	exchangeProfileFn func(ctx context.Context, code string) (*Profile, error)
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) LoginURL(state string) string {
	return "https://idp.example.com/auth?state=" + state
}

func (m *mockProvider) ExchangeProfile(ctx context.Context, code string) (*Profile, error) {
	return m.exchangeProfileFn(ctx, code)
}

// recordingPublisher は発行されたイベントを記録する。
type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(ev event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []model.NotificationType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.NotificationType
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}
