// Package extract finds the main content of a web page and its descriptive
// metadata. Boilerplate is stripped first, then an ordered list of selection
// strategies is tried until one yields a qualifying candidate.
package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Parse builds a goquery document from markup. Metadata and body extraction
// each parse their own tree since boilerplate removal mutates it.
func Parse(markup string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// textOf returns the whitespace collapsed text of sel.
func textOf(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func textLen(sel *goquery.Selection) int {
	return utf8.RuneCountInString(textOf(sel))
}
