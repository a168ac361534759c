package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/socialauth/internal/model"
)

// TokenTTL はセッショントークンの有効期間。発行時に固定され、延長されない。
const TokenTTL = 7 * 24 * time.Hour

// ErrInvalidToken はトークンが検証できないことを表す。
// 署名不一致、期限切れ、形式不正を呼び出し元で区別しない。
var ErrInvalidToken = errors.New("invalid token")

// Claims はセッショントークンのペイロード。
type Claims struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// UserFinder はトークンの主体となるユーザーを取得する。
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// TokenService はHS256署名のJWTを発行・検証する。
// トークンはサーバー側に保存せず、失効もできない。
type TokenService struct {
	secret []byte
	users  UserFinder
	now    func() time.Time
}

// NewTokenService はTokenServiceを生成する。
// 秘密鍵が空の場合は起動時エラーとして扱うためエラーを返す。
func NewTokenService(secret string, users UserFinder) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret must not be empty")
	}
	return &TokenService{
		secret: []byte(secret),
		users:  users,
		now:    time.Now,
	}, nil
}

// Issue はユーザーIDとメールアドレスを含むトークンを発行する。
func (s *TokenService) Issue(user *model.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: user.ID,
		Email:  model.Deref(user.Email),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
// 検証に失敗した場合は原因に関わらずErrInvalidTokenを返す。
func (s *TokenService) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ResolveUser はトークンを検証し、現在のユーザーを取得する。
// トークンが有効でもユーザーが削除済みの場合はnil, nilを返す。
func (s *TokenService) ResolveUser(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}
