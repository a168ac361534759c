// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, admin, notification, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeEmailTaken            = "EMAIL_TAKEN"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeOAuthOnlyAccount      = "OAUTH_ONLY_ACCOUNT"
	ErrCodeInvalidToken          = "INVALID_TOKEN"
	ErrCodeUnknownProvider       = "UNKNOWN_PROVIDER"
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeAlreadyAdmin          = "ALREADY_ADMIN"
	ErrCodeNotAdmin              = "NOT_ADMIN"
	ErrCodeCannotRevokeSelf      = "CANNOT_REVOKE_SELF"
	ErrCodeNotificationNotFound  = "NOTIFICATION_NOT_FOUND"
	ErrCodeNotificationForbidden = "NOTIFICATION_FORBIDDEN"
	ErrCodeAdminRequired         = "ADMIN_REQUIRED"
	ErrCodeRateLimited           = "RATE_LIMIT_EXCEEDED"
)

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "Email already registered",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスで登録してください。",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// メールアドレスの存在有無が推測できないよう、原因を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewOAuthOnlyAccountError はパスワード未設定アカウントへのパスワードログインエラーを生成する。
func NewOAuthOnlyAccountError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthOnlyAccount,
		Message:  "This account uses Google login. Please sign in with Google.",
		Category: "auth",
		Action:   "Googleでログインしてください。",
	}
}

// NewInvalidTokenError は無効なトークンエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "Invalid or expired token",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUnknownProviderError は未対応プロバイダのエラーを生成する。
func NewUnknownProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProvider,
		Message:  fmt.Sprintf("未対応の認証プロバイダです: %s", provider),
		Category: "auth",
		Action:   "対応しているログイン方法を選択してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAlreadyAdminError は既に管理者であるユーザーへの権限付与エラーを生成する。
func NewAlreadyAdminError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyAdmin,
		Message:  "User is already an admin",
		Category: "admin",
		Action:   "ユーザー一覧で権限を確認してください。",
	}
}

// NewNotAdminError は管理者でないユーザーからの権限剥奪エラーを生成する。
func NewNotAdminError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAdmin,
		Message:  "User is not an admin",
		Category: "admin",
		Action:   "ユーザー一覧で権限を確認してください。",
	}
}

// NewCannotRevokeSelfError は自分自身の管理者権限を剥奪しようとした場合のエラーを生成する。
func NewCannotRevokeSelfError() *APIError {
	return &APIError{
		Code:     ErrCodeCannotRevokeSelf,
		Message:  "You cannot revoke your own admin privileges",
		Category: "admin",
		Action:   "別の管理者に依頼してください。",
	}
}

// NewNotificationNotFoundError は通知が見つからない場合のエラーを生成する。
func NewNotificationNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotificationNotFound,
		Message:  "Notification not found",
		Category: "notification",
		Action:   "通知一覧を再読み込みしてください。",
	}
}

// NewNotificationForbiddenError は他ユーザーの通知を操作しようとした場合のエラーを生成する。
func NewNotificationForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeNotificationForbidden,
		Message:  "Forbidden",
		Category: "notification",
		Action:   "自分宛ての通知のみ操作できます。",
	}
}

// NewAdminRequiredError は管理者権限が必要な操作へのアクセスエラーを生成する。
func NewAdminRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminRequired,
		Message:  "Admin access required",
		Category: "admin",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
