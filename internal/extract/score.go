package extract

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// BlockStats are the inputs to Score, measured from one element.
type BlockStats struct {
	Tag            string
	WordCount      int
	TextLength     int
	HTMLLength     int
	LinkTextLength int
	ClassAndID     string
}

var contentIdentifier = regexp.MustCompile(`(?i)article|content|text|body|post|entry`)

var semanticTags = map[string]bool{
	"p": true, "article": true, "section": true, "main": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// Score rates how likely a block is to be main content, in [0, 1].
//
//	length   min(words/100, 0.3)
//	density  min(words/htmlLength*10, 0.2)
//	links   -min(linkText/text, 0.2)
//	tag      +0.2 for p, article, section, main, h1..h6
//	naming   +0.1 when class or id mentions article, content, text, body, post or entry
func Score(s BlockStats) float64 {
	score := math.Min(float64(s.WordCount)/100, 0.3)
	if s.HTMLLength > 0 {
		score += math.Min(float64(s.WordCount)/float64(s.HTMLLength)*10, 0.2)
	}
	if s.TextLength > 0 {
		score -= math.Min(float64(s.LinkTextLength)/float64(s.TextLength), 0.2)
	}
	if semanticTags[strings.ToLower(s.Tag)] {
		score += 0.2
	}
	if s.ClassAndID != "" && contentIdentifier.MatchString(s.ClassAndID) {
		score += 0.1
	}
	return math.Max(0, math.Min(1, score))
}

// Stats measures the first element of sel.
func Stats(sel *goquery.Selection) BlockStats {
	sel = sel.First()
	text := textOf(sel)
	var links int
	sel.Find("a").Each(func(_ int, a *goquery.Selection) {
		links += utf8.RuneCountInString(textOf(a))
	})
	markup, _ := goquery.OuterHtml(sel)
	class, _ := sel.Attr("class")
	id, _ := sel.Attr("id")
	return BlockStats{
		Tag:            goquery.NodeName(sel),
		WordCount:      len(strings.Fields(text)),
		TextLength:     utf8.RuneCountInString(text),
		HTMLLength:     len(markup),
		LinkTextLength: links,
		ClassAndID:     strings.TrimSpace(class + " " + id),
	}
}
