package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/hyperifyio/notelo/internal/source"
)

// rule reads one candidate value. An empty attr means element text.
type rule struct {
	selector string
	attr     string
}

var (
	titleRules = []rule{
		{"title", ""},
		{"h1", ""},
		{`meta[property="og:title"]`, "content"},
		{`meta[name="twitter:title"]`, "content"},
	}
	authorRules = []rule{
		{`meta[name="author"]`, "content"},
		{`meta[property="article:author"]`, "content"},
		{`[rel="author"]`, ""},
		{`meta[itemprop="author"]`, "content"},
		{`[itemprop="author"]`, ""},
		{".byline", ""},
		{".author", ""},
	}
	dateRules = []rule{
		{`meta[property="article:published_time"]`, "content"},
		{`meta[name="date"]`, "content"},
		{`meta[itemprop="datePublished"]`, "content"},
		{"time[datetime]", "datetime"},
	}
	descriptionRules = []rule{
		{`meta[name="description"]`, "content"},
		{`meta[property="og:description"]`, "content"},
		{`meta[name="twitter:description"]`, "content"},
	}
)

// Metadata reads title, author, date and description using ordered selector
// lists; the first non-empty value per field wins. Values are trimmed but
// never truncated.
func Metadata(doc *goquery.Document, sourceURL string) source.Metadata {
	return source.Metadata{
		Title:       first(doc, titleRules),
		Author:      first(doc, authorRules),
		Date:        first(doc, dateRules),
		Description: first(doc, descriptionRules),
		SourceURL:   sourceURL,
	}
}

func first(doc *goquery.Document, rules []rule) string {
	for _, r := range rules {
		var val string
		doc.Find(r.selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if r.attr == "" {
				val = textOf(s)
			} else if v, ok := s.Attr(r.attr); ok {
				val = strings.Join(strings.Fields(v), " ")
			}
			return val == ""
		})
		if val != "" {
			return val
		}
	}
	return ""
}

// ReadabilityMetadata runs the readability parser over markup and maps its
// title, byline and excerpt onto Metadata. Callers merge the result into
// whatever the selector lists already found.
func ReadabilityMetadata(markup, sourceURL string) (source.Metadata, error) {
	var pageURL *url.URL
	if u, err := url.Parse(sourceURL); err == nil && u.Scheme != "" {
		pageURL = u
	}
	article, err := readability.FromReader(strings.NewReader(markup), pageURL)
	if err != nil {
		return source.Metadata{SourceURL: sourceURL}, err
	}
	return source.Metadata{
		Title:       strings.TrimSpace(article.Title),
		Author:      strings.TrimSpace(article.Byline),
		Description: strings.TrimSpace(article.Excerpt),
		SourceURL:   sourceURL,
	}, nil
}
