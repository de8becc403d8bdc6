package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は記事本文（description）のHTMLをサニタイズする。
// 記事照合で保存前に適用し、保存済みの記事には安全なHTMLのみが残る。
type ContentSanitizerService interface {
	Sanitize(rawHTML string) string
}

// ContentSanitizer はbluemondayの許可リストポリシーによる実装。
// Policyはゴルーチン間で共有して安全に使える。
type ContentSanitizer struct {
	policy *bluemonday.Policy
}

var _ ContentSanitizerService = (*ContentSanitizer)(nil)

// NewContentSanitizer は記事本文向けのポリシーを構築する。
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, img, h1〜h6, figure, figcaption
//   - script, iframe, styleとon*属性は許可リストにないため除去される
//   - img/srcとa/hrefは絶対URLのhttpsのみ
//   - aにはtarget="_blank"とrel="noopener noreferrer"を付与
func NewContentSanitizer() *ContentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"figure", "figcaption",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	// 混在コンテンツを避けるためhttpsのみ許可する
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool { return u.Host != "" })

	return &ContentSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズする。同じ入力には常に同じ出力を返す。
func (s *ContentSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}
