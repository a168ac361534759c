package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode"
)

// ErrUnknownProvider は未登録のOAuthプロバイダ名が指定されたことを表す。
var ErrUnknownProvider = errors.New("unknown oauth provider")

// ErrProviderExchange はプロバイダとの認可コード交換やプロフィール取得に失敗したことを表す。
var ErrProviderExchange = errors.New("oauth provider exchange failed")

// Profile はOAuthプロバイダから取得したユーザー情報を表す。
type Profile struct {
	ExternalID string
	Email      string
	Name       string
	AvatarURL  string
}

// OAuthProvider はOAuth認証プロバイダのインターフェース。
// プロバイダ名で選択され、新しいIdPは実装を追加して登録するだけで対応できる。
type OAuthProvider interface {
	// Name はURLパスと保存時のproviderに使うプロバイダ名を返す。
	Name() string
	// LoginURL はstateを含む認可URLを生成する。
	LoginURL(state string) string
	// ExchangeProfile は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeProfile(ctx context.Context, code string) (*Profile, error)
}

// Providers はプロバイダ名からOAuthProviderを引くレジストリ。
type Providers struct {
	byName map[string]OAuthProvider
}

// NewProviders はProvidersを生成する。nilのプロバイダは無視する。
func NewProviders(providers ...OAuthProvider) *Providers {
	p := &Providers{byName: make(map[string]OAuthProvider)}
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		p.byName[provider.Name()] = provider
	}
	return p
}

// Get はプロバイダ名に対応するOAuthProviderを返す。
func (p *Providers) Get(name string) (OAuthProvider, error) {
	provider, ok := p.byName[strings.ToLower(name)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return provider, nil
}

// Names は登録済みのプロバイダ名を昇順で返す。
func (p *Providers) Names() []string {
	names := make([]string, 0, len(p.byName))
	for name := range p.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ChannelLabel は通知文面に使う登録経路の表示名を返す（"google" → "Google"）。
func ChannelLabel(provider string) string {
	if provider == "" {
		return ""
	}
	r := []rune(provider)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
