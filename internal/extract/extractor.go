// Package extract recovers Open Graph, Twitter card, and fallback metadata
// from arbitrary HTML.
//
// Extraction is total: malformed markup, missing tags, and empty attributes
// are normal inputs that fall through to the next heuristic. The document is
// parsed structurally, so attribute order never matters and tag/attribute
// names are matched case-insensitively.
package extract

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
)

// MaxDescriptionLength is the maximum description length in characters.
const MaxDescriptionLength = 200

// Extractor implements bookmark.Extractor using goquery.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// lookup is one step of a fallback chain: a meta tag whose attr equals key.
type lookup struct {
	attr string
	key  string
}

var (
	titleChain = []lookup{
		{"property", "og:title"},
		{"name", "twitter:title"},
	}
	imageChain = []lookup{
		{"property", "og:image"},
		{"name", "twitter:image"},
		{"name", "og:image"},
	}
	descriptionChain = []lookup{
		{"property", "og:description"},
		{"name", "description"},
		{"name", "twitter:description"},
	}
)

// Extract derives title, image, and description from html. Relative image
// URLs are resolved against baseURL.
func (e *Extractor) Extract(html, baseURL string) bookmark.Metadata {
	if strings.TrimSpace(html) == "" {
		return bookmark.Metadata{}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return bookmark.Metadata{}
	}
	metas := doc.Find("meta")
	pageTitle := documentTitle(doc)

	title := firstMeta(metas, titleChain)
	if title == "" {
		title = pageTitle
	}

	image := firstMeta(metas, imageChain)
	if image == "" {
		image = favicon(doc)
	}
	image = strings.TrimSpace(resolve(image, baseURL))

	description := firstMeta(metas, descriptionChain)
	if description == "" {
		description = pageTitle
	}

	return bookmark.Metadata{
		Title:       title,
		Image:       image,
		Description: truncate(description, MaxDescriptionLength),
	}
}

func firstMeta(metas *goquery.Selection, chain []lookup) string {
	for _, l := range chain {
		if v := metaContent(metas, l.attr, l.key); v != "" {
			return v
		}
	}
	return ""
}

// metaContent returns the trimmed content of the first meta tag whose attr
// equals key (case-insensitively) and whose content is non-empty.
func metaContent(metas *goquery.Selection, attr, key string) string {
	var out string
	metas.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, ok := s.Attr(attr)
		if !ok || !strings.EqualFold(strings.TrimSpace(v), key) {
			return true
		}
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if content == "" {
			return true
		}
		out = content
		return false
	})
	return out
}

func favicon(doc *goquery.Document) string {
	var out string
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !isIconRel(s.AttrOr("rel", "")) {
			return true
		}
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return true
		}
		out = href
		return false
	})
	return out
}

// isIconRel matches rel="icon", rel="shortcut icon", and rel="apple-touch-icon".
func isIconRel(rel string) bool {
	for _, token := range strings.Fields(strings.ToLower(rel)) {
		if token == "icon" || token == "apple-touch-icon" {
			return true
		}
	}
	return false
}

// resolve makes raw absolute against base when raw carries no scheme.
// Unparseable input is returned unchanged.
func resolve(raw, base string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		raw = escapeStrayPercent(raw)
		if ref, err = url.Parse(raw); err != nil {
			return raw
		}
	}
	if ref.Scheme != "" {
		return raw
	}
	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return raw
	}
	return baseURL.ResolveReference(ref).String()
}

// escapeStrayPercent encodes a '%' that does not start a valid escape, which
// url.Parse otherwise rejects.
func escapeStrayPercent(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && !(i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2])) {
			b.WriteString("%25")
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// documentTitle returns the document <title>, ignoring titles nested in
// inline svg or math elements.
func documentTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("head > title").First().Text()); t != "" {
		return t
	}
	title := doc.Find("title").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered("svg, math").Length() == 0
	}).First()
	return strings.TrimSpace(title.Text())
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
