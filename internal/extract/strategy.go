package extract

import (
	"errors"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrNoCandidate means no strategy produced qualifying content.
var ErrNoCandidate = errors.New("no content candidate")

// Strategy names.
const (
	StrategySelector  = "selector"
	StrategyScoring   = "scoring"
	StrategyParagraph = "paragraphs"
	StrategyBody      = "body"
)

const (
	// MinContentLength is the text length a selector or scoring hit needs.
	MinContentLength = 100
	// MinScore is the least Score a scoring hit needs.
	MinScore = 0.3
	// MinParagraphLength drops short paragraphs in the paragraph tier.
	MinParagraphLength = 40
	// MinScoredLength skips elements too small to score.
	MinScoredLength = 25
)

// Candidate is the content chosen by a strategy, in document order.
type Candidate struct {
	Nodes    []*html.Node
	Score    float64
	Strategy string
}

// Strategy proposes content from a document.
type Strategy interface {
	Name() string
	Select(doc *goquery.Document) (Candidate, bool)
}

// Selector runs strategies in order and returns the first hit.
type Selector struct {
	Strategies []Strategy
}

// DefaultStrategies is the standard fallback order: known content
// containers, block scoring, long paragraphs, then the whole body.
func DefaultStrategies() []Strategy {
	return []Strategy{
		&SelectorStrategy{},
		&ScoringStrategy{},
		&ParagraphStrategy{},
		BodyStrategy{},
	}
}

// Select returns the first qualifying candidate.
func (s Selector) Select(doc *goquery.Document) (Candidate, error) {
	return s.SelectFunc(doc, nil)
}

// SelectFunc is Select with an extra acceptance check applied to each hit,
// so callers can reject a candidate (for example one that formats below a
// length floor) and fall through to the next strategy.
func (s Selector) SelectFunc(doc *goquery.Document, accept func(Candidate) bool) (Candidate, error) {
	strategies := s.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	for _, st := range strategies {
		c, ok := st.Select(doc)
		if !ok || len(c.Nodes) == 0 {
			continue
		}
		if c.Strategy == "" {
			c.Strategy = st.Name()
		}
		if accept != nil && !accept(c) {
			continue
		}
		return c, nil
	}
	return Candidate{}, ErrNoCandidate
}

// ContentSelectors are the well known main content containers, in priority
// order.
var ContentSelectors = []string{
	"article",
	"main",
	`[role="main"]`,
	".content",
	"#content",
	".post-content",
	".entry-content",
	".article-content",
	".article-body",
	".post-body",
	".story-body",
	"#main-content",
	".main-content",
}

// SelectorStrategy picks the first known content container with enough text.
type SelectorStrategy struct {
	// Selectors defaults to ContentSelectors.
	Selectors []string
	// MinLength defaults to MinContentLength.
	MinLength int
}

func (*SelectorStrategy) Name() string { return StrategySelector }

func (s *SelectorStrategy) Select(doc *goquery.Document) (Candidate, bool) {
	selectors := s.Selectors
	if len(selectors) == 0 {
		selectors = ContentSelectors
	}
	min := orDefault(s.MinLength, MinContentLength)
	for _, q := range selectors {
		var hit *goquery.Selection
		doc.Find(q).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if textLen(el) >= min {
				hit = el
				return false
			}
			return true
		})
		if hit != nil {
			return Candidate{Nodes: hit.Nodes, Score: 1, Strategy: StrategySelector}, true
		}
	}
	return Candidate{}, false
}

// ScoredTags are the element types ScoringStrategy rates.
const ScoredTags = "p, div, section, article, main, td, blockquote, li"

// ScoringStrategy rates candidate blocks with Score and keeps the best.
type ScoringStrategy struct {
	// MinScore defaults to the package MinScore.
	MinScore float64
	// MinLength defaults to MinContentLength.
	MinLength int
}

func (*ScoringStrategy) Name() string { return StrategyScoring }

func (s *ScoringStrategy) Select(doc *goquery.Document) (Candidate, bool) {
	minScore := s.MinScore
	if minScore <= 0 {
		minScore = MinScore
	}
	var (
		best      *goquery.Selection
		bestScore = -1.0
		bestLen   int
	)
	doc.Find(ScoredTags).Each(func(_ int, el *goquery.Selection) {
		stats := Stats(el)
		if stats.TextLength < MinScoredLength {
			return
		}
		score := Score(stats)
		// Ties go to the longer text, then to the earlier element.
		if score > bestScore || (score == bestScore && stats.TextLength > bestLen) {
			best, bestScore, bestLen = el, score, stats.TextLength
		}
	})
	if best == nil || bestScore < minScore || bestLen < orDefault(s.MinLength, MinContentLength) {
		return Candidate{}, false
	}
	return Candidate{Nodes: best.Nodes, Score: bestScore, Strategy: StrategyScoring}, true
}

// ParagraphStrategy collects every substantial paragraph outside page
// chrome.
type ParagraphStrategy struct {
	// MinParagraph defaults to MinParagraphLength.
	MinParagraph int
	// MinTotal defaults to MinContentLength.
	MinTotal int
}

func (*ParagraphStrategy) Name() string { return StrategyParagraph }

func (s *ParagraphStrategy) Select(doc *goquery.Document) (Candidate, bool) {
	minPara := orDefault(s.MinParagraph, MinParagraphLength)
	var nodes []*html.Node
	total := 0
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if p.ParentsFiltered("nav, header, footer").Length() > 0 {
			return
		}
		n := textLen(p)
		if n < minPara {
			return
		}
		nodes = append(nodes, p.Nodes...)
		total += n
	})
	if total < orDefault(s.MinTotal, MinContentLength) {
		return Candidate{}, false
	}
	return Candidate{Nodes: nodes, Strategy: StrategyParagraph}, true
}

// BodyStrategy takes the whole body, or the document root when there is no
// body element.
type BodyStrategy struct{}

func (BodyStrategy) Name() string { return StrategyBody }

func (BodyStrategy) Select(doc *goquery.Document) (Candidate, bool) {
	root := doc.Find("body").First()
	if root.Length() == 0 {
		root = doc.Selection
	}
	if textLen(root) == 0 {
		return Candidate{}, false
	}
	return Candidate{Nodes: root.Nodes, Strategy: StrategyBody}, true
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
