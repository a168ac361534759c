// Package auth はメール・パスワード認証、OAuth認証、セッショントークンの発行を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/socialauth/internal/event"
	"github.com/hitoshi/socialauth/internal/model"
	"github.com/hitoshi/socialauth/internal/repository"
)

// 認証のドメインエラー。ハンドラーでHTTPステータスに変換される。
var (
	// ErrEmailTaken はメールアドレスが登録済みであることを表す。
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しないことを表す。
	// どちらが誤っているかは区別しない。
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrOAuthOnlyAccount はパスワード未設定のOAuth専用アカウントであることを表す。
	ErrOAuthOnlyAccount = errors.New("account uses oauth login")
)

// NameSanitizer は表示名を保存前に正規化する。
type NameSanitizer interface {
	Sanitize(raw string) string
}

// RegisterInput はメールアドレスによる新規登録の入力。
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginInput はメールアドレスとパスワードによるログインの入力。
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult は認証成功時に返すトークンとユーザー。
type AuthResult struct {
	Token   string
	User    *model.User
	Created bool // OAuthログインで新規ユーザーが作成された場合true
}

// ServiceDeps はServiceの依存関係。
type ServiceDeps struct {
	Users       repository.UserRepository
	Tokens      *TokenService
	Hasher      PasswordHasher
	Providers   *Providers
	MergePolicy MergePolicy     // nilの場合はMergeByEmail
	Events      event.Publisher // nilの場合はイベントを発行しない
	Names       NameSanitizer   // nilの場合は正規化しない
}

// Service は認証に関するビジネスロジックを提供する。
// 管理者通知などの副作用はイベントとして発行し、結果を待たない。
type Service struct {
	users       repository.UserRepository
	tokens      *TokenService
	hasher      PasswordHasher
	providers   *Providers
	mergePolicy MergePolicy
	events      event.Publisher
	names       NameSanitizer
}

// NewService はServiceを生成する。
func NewService(deps ServiceDeps) *Service {
	s := &Service{
		users:       deps.Users,
		tokens:      deps.Tokens,
		hasher:      deps.Hasher,
		providers:   deps.Providers,
		mergePolicy: deps.MergePolicy,
		events:      deps.Events,
		names:       deps.Names,
	}
	if s.mergePolicy == nil {
		s.mergePolicy = MergeByEmail
	}
	if s.events == nil {
		s.events = event.NopPublisher
	}
	if s.providers == nil {
		s.providers = NewProviders()
	}
	return s
}

// Register はメールアドレスとパスワードでユーザーを登録し、トークンを発行する。
func (s *Service) Register(ctx context.Context, in RegisterInput, meta event.RequestMetadata) (*AuthResult, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	// 1. メールアドレスの重複確認
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	// 2. パスワードをハッシュ化してユーザーを作成
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		FullName:     model.StringPtr(s.sanitizeName(in.Name)),
		Email:        &email,
		PasswordHash: &hash,
		Provider:     model.StringPtr(model.ProviderEmail),
		Role:         model.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// 同時登録でユニーク制約に違反した場合
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// 3. トークンを発行
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	slog.Info("user registered",
		slog.Int64("user_id", user.ID),
		slog.String("provider", model.ProviderEmail),
	)

	// 4. 通知イベントを発行（結果を待たない）
	s.events.Publish(event.Event{
		Type:    model.NotificationNewUser,
		User:    user,
		Channel: ChannelLabel(model.ProviderEmail),
		Meta:    meta,
	})

	return &AuthResult{Token: token, User: user, Created: true}, nil
}

// Login はメールアドレスとパスワードを照合し、トークンを発行する。
// パスワード未設定のアカウントに対してのみErrOAuthOnlyAccountを返し、
// それ以外の失敗はすべてErrInvalidCredentialsにまとめる。
func (s *Service) Login(ctx context.Context, in LoginInput, meta event.RequestMetadata) (*AuthResult, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if !user.HasPassword() {
		return nil, ErrOAuthOnlyAccount
	}
	if !s.hasher.Verify(user.PasswordHash, in.Password) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("provider", model.ProviderEmail),
	)

	s.events.Publish(event.Event{
		Type: model.NotificationUserLogin,
		User: user,
		Meta: meta,
	})

	return &AuthResult{Token: token, User: user}, nil
}

// linkOrCreate はprofileのメールアドレスに一致するユーザーをMergePolicyに従って統合し、
// 存在しなければ新規作成する。
// 同じメールアドレスの初回ログインが並行して作成に競合した場合は、
// 先に作成された行を読み直して統合する。
func (s *Service) linkOrCreate(ctx context.Context, providerName string, profile *Profile) (*model.User, bool, error) {
	for attempt := 0; ; attempt++ {
		existing, err := s.users.FindByEmail(ctx, profile.Email)
		if err != nil {
			return nil, false, fmt.Errorf("failed to find user by email: %w", err)
		}
		decision, err := s.mergePolicy(existing, profile)
		if err != nil {
			return nil, false, err
		}

		if decision == LinkMerge && existing != nil {
			applyProfile(existing, providerName, profile)
			if err := s.users.UpdateProfile(ctx, existing); err != nil {
				return nil, false, fmt.Errorf("failed to update user profile: %w", err)
			}
			return existing, false, nil
		}

		// パスワードなしで作成する
		user := &model.User{
			FullName:   model.StringPtr(profile.Name),
			Email:      model.StringPtr(profile.Email),
			Provider:   model.StringPtr(providerName),
			ProviderID: model.StringPtr(profile.ExternalID),
			AvatarURL:  model.StringPtr(profile.AvatarURL),
			Role:       model.RoleUser,
		}
		err = s.users.Create(ctx, user)
		if err == nil {
			return user, true, nil
		}
		if !errors.Is(err, repository.ErrDuplicateEmail) || attempt > 0 {
			return nil, false, fmt.Errorf("failed to create user: %w", err)
		}
	}
}

// LoginURL は指定プロバイダの認可URLを生成する。
func (s *Service) LoginURL(providerName, state string) (string, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return "", err
	}
	return provider.LoginURL(state), nil
}

// HandleOAuthCallback はOAuthコールバックの認可コードを処理し、トークンを発行する。
// メールアドレスが一致する既存ユーザーの扱いはMergePolicyで決まる。
// プロバイダとの交換に失敗した場合はユーザーを作成・更新せず、イベントも発行しない。
func (s *Service) HandleOAuthCallback(ctx context.Context, providerName, code string, meta event.RequestMetadata) (*AuthResult, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	// 1. 認可コードをプロフィールに交換
	profile, err := provider.ExchangeProfile(ctx, code)
	if err != nil {
		return nil, err
	}
	email, err := NormalizeEmail(profile.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderExchange, err)
	}
	profile.Email = email
	profile.Name = s.sanitizeName(profile.Name)

	// 2. メールアドレスで既存ユーザーを検索し、統合または新規作成する
	user, created, err := s.linkOrCreate(ctx, provider.Name(), profile)
	if err != nil {
		return nil, err
	}

	// 3. トークンを発行
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	slog.Info("oauth login completed",
		slog.Int64("user_id", user.ID),
		slog.String("provider", provider.Name()),
		slog.Bool("created", created),
	)

	// 4. 通知イベントを発行
	ev := event.Event{Type: model.NotificationUserLogin, User: user, Meta: meta}
	if created {
		ev.Type = model.NotificationNewUser
		ev.Channel = ChannelLabel(provider.Name())
	}
	s.events.Publish(ev)

	return &AuthResult{Token: token, User: user, Created: created}, nil
}

// CurrentUser はトークンから現在のユーザーを取得する。
// ユーザーが削除済みの場合はnil, nilを返す。
func (s *Service) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	return s.tokens.ResolveUser(ctx, token)
}

// ProviderNames は有効なOAuthプロバイダ名を返す。
func (s *Service) ProviderNames() []string {
	return s.providers.Names()
}

func (s *Service) sanitizeName(name string) string {
	if s.names == nil {
		return name
	}
	return s.names.Sanitize(name)
}
