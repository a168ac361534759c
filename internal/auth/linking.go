package auth

import (
	"errors"

	"github.com/hitoshi/socialauth/internal/model"
)

// ErrLinkRejected はOAuthプロフィールと既存アカウントの紐付けがポリシーにより拒否されたことを表す。
var ErrLinkRejected = errors.New("account linking rejected")

// LinkDecision はOAuthログイン時の既存アカウントの扱いを表す。
type LinkDecision int

const (
	// LinkCreate は新規ユーザーを作成する。
	LinkCreate LinkDecision = iota
	// LinkMerge は既存ユーザーにプロフィールを統合する。
	LinkMerge
)

// MergePolicy はメールアドレスが一致した既存ユーザーとOAuthプロフィールをどう扱うかを決める。
// existingはメールアドレスで検索した既存ユーザーで、存在しない場合はnil。
type MergePolicy func(existing *model.User, profile *Profile) (LinkDecision, error)

// MergeByEmail はメールアドレスが一致すれば既存ユーザーに統合する既定のポリシー。
// IdPがメールアドレスの所有を確認済みであることを前提とする。
func MergeByEmail(existing *model.User, _ *Profile) (LinkDecision, error) {
	if existing == nil {
		return LinkCreate, nil
	}
	return LinkMerge, nil
}

// RejectPasswordAccounts はパスワードを持つ既存ユーザーへの自動統合を拒否するポリシー。
// IdPのメール確認を信頼しない運用で使う。
func RejectPasswordAccounts(existing *model.User, profile *Profile) (LinkDecision, error) {
	if existing != nil && existing.HasPassword() {
		return LinkCreate, ErrLinkRejected
	}
	return MergeByEmail(existing, profile)
}

// applyProfile はOAuthプロフィールを既存ユーザーに上書きする。
// provider_id、アバター、氏名は常に上書きし、パスワードハッシュは変更しない。
// providerは未設定またはemailの場合のみOAuthプロバイダ名に更新する。
func applyProfile(user *model.User, providerName string, profile *Profile) {
	user.ProviderID = model.StringPtr(profile.ExternalID)
	user.AvatarURL = model.StringPtr(profile.AvatarURL)
	if profile.Name != "" {
		user.FullName = model.StringPtr(profile.Name)
	}
	if p := model.Deref(user.Provider); p == "" || p == model.ProviderEmail {
		user.Provider = model.StringPtr(providerName)
	}
}
