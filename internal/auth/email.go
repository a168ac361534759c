package auth

import (
	"errors"
	"strings"

	"golang.org/x/net/idna"
)

// ErrInvalidEmail はメールアドレスの形式が不正であることを表す。
var ErrInvalidEmail = errors.New("invalid email address")

// NormalizeEmail は照合用にメールアドレスを正規化する。
// 前後の空白を除去して小文字化し、国際化ドメインはPunycodeに変換する。
// 同じアドレスが登録経路によって別ユーザーにならないよう、保存と検索の両方で使う。
func NormalizeEmail(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return "", ErrInvalidEmail
	}

	local, domain := s[:at], s[at+1:]
	if strings.ContainsAny(local, " \t\r\n") {
		return "", ErrInvalidEmail
	}

	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil || !strings.Contains(ascii, ".") {
		return "", ErrInvalidEmail
	}
	return local + "@" + ascii, nil
}
