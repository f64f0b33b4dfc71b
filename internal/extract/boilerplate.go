package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BoilerplateTags are removed wholesale. Container tags that some sites
// wrap the whole page in (form, aside) are left to the class/id patterns.
const BoilerplateTags = "script, style, nav, header, footer, iframe, noscript, svg, template"

// boilerplateWords match a class or id token, or any of its '-' or '_'
// separated parts, case-insensitively.
var boilerplateWords = wordSet(
	"ad", "ads", "advert", "advertisement", "advertising", "sponsored",
	"share", "sharing", "social",
	"sidebar", "menu", "comment", "comments", "newsletter",
	"related", "cookie", "consent",
	"promo", "popup", "modal", "breadcrumb", "breadcrumbs",
)

// layoutModifiers lead tokens such as "has-sidebar" that describe the
// element's layout rather than mark it as furniture.
var layoutModifiers = wordSet("has", "with", "no", "without", "show", "hide", "layout")

// contentLandmarks are never removed by class/id, nor are their ancestors.
const contentLandmarks = "article, main, [role=main]"

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// RemoveBoilerplate deletes navigation, chrome and ad-like elements from doc
// in place and reports how many elements matched. Nested matches are
// counted individually.
func RemoveBoilerplate(doc *goquery.Document) int {
	tags := doc.Find(BoilerplateTags)
	removed := tags.Length()
	tags.Remove()

	flagged := doc.Find("[class], [id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		switch goquery.NodeName(s) {
		case "html", "body", "article", "main":
			return false
		}
		if s.Is("[role=main]") || s.Find(contentLandmarks).Length() > 0 {
			return false
		}
		return IsBoilerplate(s)
	})
	removed += flagged.Length()
	flagged.Remove()
	return removed
}

// IsBoilerplate reports whether the class or id of the first element in s
// carries a boilerplate word, either as a whole token or as one of its
// hyphen or underscore separated parts ("site-sidebar", "comments_list").
func IsBoilerplate(s *goquery.Selection) bool {
	for _, attr := range []string{"class", "id"} {
		v, ok := s.Attr(attr)
		if !ok {
			continue
		}
		for _, tok := range strings.Fields(strings.ToLower(v)) {
			if boilerplateToken(tok) {
				return true
			}
		}
	}
	return false
}

func boilerplateToken(tok string) bool {
	parts := strings.FieldsFunc(tok, func(r rune) bool { return r == '-' || r == '_' })
	if len(parts) == 0 || layoutModifiers[parts[0]] {
		return false
	}
	for _, p := range parts {
		if boilerplateWords[p] {
			return true
		}
	}
	return false
}
