package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/socialauth/internal/model"
	"github.com/hitoshi/socialauth/internal/repository"
	"github.com/hitoshi/socialauth/internal/worker/task"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// callLog は複数のモックにまたがる呼び出し順序を記録する。
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// memoryTokenRepo はテスト用のインメモリDeviceTokenRepository。
// 全トークンを管理者のものとして扱う。
type memoryTokenRepo struct {
	mu      sync.Mutex
	active  map[string]bool
	order   []string
	listErr error
	log     *callLog
}

func newMemoryTokenRepo(tokens ...string) *memoryTokenRepo {
	r := &memoryTokenRepo{active: make(map[string]bool)}
	for _, t := range tokens {
		r.active[t] = true
		r.order = append(r.order, t)
	}
	return r
}

func (r *memoryTokenRepo) Upsert(_ context.Context, token *model.DeviceToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[token.Token]; !ok {
		r.order = append(r.order, token.Token)
	}
	r.active[token.Token] = true
	return nil
}

func (r *memoryTokenRepo) Delete(_ context.Context, _ int64, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, token)
	return nil
}

func (r *memoryTokenRepo) ListActiveByUser(context.Context, int64) ([]*model.DeviceToken, error) {
	return nil, errors.New("not implemented")
}

func (r *memoryTokenRepo) ListActiveAdminTokens(context.Context) ([]string, error) {
	r.log.add("list_tokens")
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []string
	for _, t := range r.order {
		if r.active[t] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryTokenRepo) Deactivate(_ context.Context, tokens []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range tokens {
		if active, ok := r.active[t]; ok && active {
			r.active[t] = false
			n++
		}
	}
	return n, nil
}

func (r *memoryTokenRepo) inactive() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for t, active := range r.active {
		if !active {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

var _ repository.DeviceTokenRepository = (*memoryTokenRepo)(nil)

// mockNotificationRepo はテスト用のNotificationRepository。
type mockNotificationRepo struct {
	mu       sync.Mutex
	createFn func(ctx context.Context, n *model.Notification) error
	created  []*model.Notification
	log      *callLog
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	m.log.add("persist")
	if m.createFn != nil {
		if err := m.createFn(ctx, n); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = int64(len(m.created) + 1)
	n.CreatedAt = time.Now()
	m.created = append(m.created, n)
	return nil
}

func (m *mockNotificationRepo) FindByID(context.Context, int64) (*model.Notification, error) {
	return nil, nil
}

func (m *mockNotificationRepo) List(context.Context, repository.InboxScope, int, int) ([]*model.Notification, int, error) {
	return nil, 0, nil
}

func (m *mockNotificationRepo) CountUnread(context.Context, repository.InboxScope) (int, error) {
	return 0, nil
}

func (m *mockNotificationRepo) MarkRead(context.Context, int64) error { return nil }

func (m *mockNotificationRepo) MarkAllRead(context.Context, repository.InboxScope) (int64, error) {
	return 0, nil
}

func (m *mockNotificationRepo) records() []*model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Notification(nil), m.created...)
}

var _ repository.NotificationRepository = (*mockNotificationRepo)(nil)

// mockPushSender はテスト用のPushSender。
type mockPushSender struct {
	mu              sync.Mutex
	sendMulticastFn func(ctx context.Context, tokens []string, msg Message) ([]SendResult, error)
	calls           [][]string
	messages        []Message
	log             *callLog
}

func (m *mockPushSender) SendMulticast(ctx context.Context, tokens []string, msg Message) ([]SendResult, error) {
	m.log.add("push")
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), tokens...))
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
	if m.sendMulticastFn != nil {
		return m.sendMulticastFn(ctx, tokens, msg)
	}
	results := make([]SendResult, len(tokens))
	for i, t := range tokens {
		results[i] = SendResult{Token: t}
	}
	return results, nil
}

// mockMailer はテスト用のMailer。
type mockMailer struct {
	mu     sync.Mutex
	sendFn func(ctx context.Context, to, subject, html string) error
	sent   []sentMail
}

type sentMail struct {
	To      string
	Subject string
	HTML    string
}

func (m *mockMailer) Send(ctx context.Context, to, subject, html string) error {
	if m.sendFn != nil {
		if err := m.sendFn(ctx, to, subject, html); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, HTML: html})
	return nil
}

func (m *mockMailer) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		out = append(out, s.Subject)
	}
	return out
}

// inlineRunner はタスクを呼び出し元のgoroutineで即座に実行する。
type inlineRunner struct {
	mu    sync.Mutex
	names []string
	errs  []error
}

func (r *inlineRunner) Go(name string, fn task.Func) bool {
	err := fn(context.Background())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	r.errs = append(r.errs, err)
	return true
}

// recordingRecorder は配送結果を記録する。
type recordingRecorder struct {
	mu          sync.Mutex
	outcomes    map[string][]Outcome
	deactivated int
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{outcomes: make(map[string][]Outcome)}
}

func (r *recordingRecorder) RecordDelivery(channel string, outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[channel] = append(r.outcomes[channel], outcome)
}

func (r *recordingRecorder) RecordTokensDeactivated(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deactivated += count
}

func (r *recordingRecorder) get(channel string) []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes[channel]...)
}

// fakeClock はテスト用の時計。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testUser(id int64, email, name string) *model.User {
	return &model.User{
		ID:       id,
		Email:    model.StringPtr(email),
		FullName: model.StringPtr(name),
		Role:     model.RoleUser,
	}
}
