package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxDisplayNameLength は表示名として保存する最大文字数。
const MaxDisplayNameLength = 100

// NameSanitizer は外部IdPやフォームから受け取った表示名を保存前に正規化する。
type NameSanitizer interface {
	// Sanitize はHTMLタグを除去し、空白を1つにまとめ、最大文字数で切り詰めた文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// nameSanitizer はNameSanitizerの実装。
// bluemondayのStrictPolicyはすべてのタグを除去する。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerの新しいインスタンスを生成する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize は表示名を正規化する。
// StrictPolicyはテキスト中の記号をエスケープするため、プレーンテキストに戻してから保存する。
// 出力はメールテンプレートとJSONでそれぞれエスケープされる。
func (s *nameSanitizer) Sanitize(raw string) string {
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > MaxDisplayNameLength {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:MaxDisplayNameLength]))
	}
	return text
}
