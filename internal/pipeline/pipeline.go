// Package pipeline turns a source descriptor into a normalized document:
// fetch, extract metadata and body, format, and enforce the length floor.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/notelo/internal/extract"
	"github.com/hyperifyio/notelo/internal/fetch"
	"github.com/hyperifyio/notelo/internal/format"
	"github.com/hyperifyio/notelo/internal/source"
)

// Strategy names for sources that do not go through HTML selection.
const (
	StrategyPlain      = "plain"
	StrategyPDF        = "pdf"
	StrategyTranscript = "transcript"
)

// DefaultFloors are the minimum extracted lengths, in characters, per kind.
// Web pages need more because a short result there usually means a login
// wall or an index page rather than an article.
var DefaultFloors = map[source.Kind]int{
	source.KindText:    100,
	source.KindURL:     200,
	source.KindPDF:     100,
	source.KindYouTube: 100,
}

// MinFloor is the floor for any kind missing from Floors.
const MinFloor = 100

// PageFetcher returns the UTF-8 markup of a web page.
type PageFetcher interface {
	Page(ctx context.Context, url string) (string, error)
}

// PDFFetcher downloads a PDF file.
type PDFFetcher interface {
	PDF(ctx context.Context, url string) ([]byte, error)
}

// MetadataFetcher looks up video metadata.
type MetadataFetcher interface {
	Lookup(ctx context.Context, videoURL string) (source.Metadata, error)
}

// Pipeline holds the collaborators for every source kind. It keeps no
// mutable state, so one value can serve concurrent Extract calls.
type Pipeline struct {
	Pages       PageFetcher
	PDFs        PDFFetcher
	Transcripts fetch.Transcripts
	Meta        MetadataFetcher
	Strategies  []extract.Strategy
	Floors      map[source.Kind]int
	// Readability fills metadata fields the selector lists left empty.
	Readability bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithPages(f PageFetcher) Option             { return func(p *Pipeline) { p.Pages = f } }
func WithPDFs(f PDFFetcher) Option               { return func(p *Pipeline) { p.PDFs = f } }
func WithTranscripts(t fetch.Transcripts) Option { return func(p *Pipeline) { p.Transcripts = t } }
func WithMetadata(m MetadataFetcher) Option      { return func(p *Pipeline) { p.Meta = m } }
func WithStrategies(s ...extract.Strategy) Option {
	return func(p *Pipeline) { p.Strategies = s }
}
func WithReadability(on bool) Option { return func(p *Pipeline) { p.Readability = on } }

// WithFloor overrides the floor for one kind. Values below MinFloor are
// raised to it.
func WithFloor(kind source.Kind, n int) Option {
	return func(p *Pipeline) {
		if n < MinFloor {
			n = MinFloor
		}
		floors := make(map[source.Kind]int, len(p.Floors)+1)
		for k, v := range p.Floors {
			floors[k] = v
		}
		floors[kind] = n
		p.Floors = floors
	}
}

// New returns a Pipeline with the default strategies and floors.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		Strategies:  extract.DefaultStrategies(),
		Floors:      DefaultFloors,
		Readability: true,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Floor returns the minimum text length for kind.
func (p *Pipeline) Floor(kind source.Kind) int {
	if n, ok := p.Floors[kind]; ok && n >= MinFloor {
		return n
	}
	return MinFloor
}

// Extract runs the full pipeline for one source. Every failure is an
// *source.ExtractionError.
func (p *Pipeline) Extract(ctx context.Context, desc source.Descriptor) (*source.NormalizedDocument, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	loc := desc.Locator()
	logger := log.Ctx(ctx).With().Str("kind", string(desc.Kind)).Str("source", loc).Logger()
	ctx = logger.WithContext(ctx)
	floor := p.Floor(desc.Kind)

	var (
		doc *source.NormalizedDocument
		err error
	)
	switch desc.Kind {
	case source.KindText:
		doc, err = p.extractText(desc.Text, loc, floor)
	case source.KindURL:
		doc, err = p.extractURL(ctx, strings.TrimSpace(desc.URL), floor)
	case source.KindPDF:
		doc, err = p.extractPDF(ctx, desc, loc, floor)
	case source.KindYouTube:
		doc, err = p.extractYouTube(ctx, strings.TrimSpace(desc.URL), floor)
	default:
		err = source.InvalidSource(loc, fmt.Sprintf("unknown source kind %q", desc.Kind), nil)
	}
	if err != nil {
		logger.Debug().Err(err).Msg("extraction failed")
		return nil, withSource(err, loc)
	}
	logger.Info().
		Str("strategy", doc.Strategy).
		Int("chars", utf8.RuneCountInString(doc.Text)).
		Int("warnings", len(doc.Warnings)).
		Msg("extracted")
	return doc, nil
}

func (p *Pipeline) extractText(text, loc string, floor int) (*source.NormalizedDocument, error) {
	out := format.Plain(text)
	if err := checkFloor(out, loc, floor); err != nil {
		return nil, err
	}
	return &source.NormalizedDocument{
		Metadata: source.Metadata{SourceURL: loc},
		Text:     out,
		Strategy: StrategyPlain,
	}, nil
}

func (p *Pipeline) extractURL(ctx context.Context, url string, floor int) (*source.NormalizedDocument, error) {
	if p.Pages == nil {
		return nil, source.FetchFailure(url, "no page fetcher configured", nil)
	}
	markup, err := p.Pages.Page(ctx, url)
	if err != nil {
		return nil, classify(err, url, source.FetchFailure, "fetch page")
	}
	return p.ExtractHTML(ctx, markup, url, floor)
}

// ExtractHTML extracts metadata and body text from markup that is already in
// hand. Metadata and body are worked out concurrently on separately parsed
// trees. Content candidates whose formatted text is below floor are skipped
// in favour of the next strategy.
func (p *Pipeline) ExtractHTML(ctx context.Context, markup, sourceURL string, floor int) (*source.NormalizedDocument, error) {
	if floor < MinFloor {
		floor = MinFloor
	}
	logger := log.Ctx(ctx)
	var (
		meta     source.Metadata
		warnings []string
		text     string
		chosen   string
	)

	var g errgroup.Group
	g.Go(func() error {
		doc, err := extract.Parse(markup)
		if err != nil {
			return source.ParseFailure(sourceURL, "parse HTML", err)
		}
		meta = extract.Metadata(doc, sourceURL)
		if p.Readability && !meta.Complete() {
			rm, err := extract.ReadabilityMetadata(markup, sourceURL)
			if err != nil {
				logger.Warn().Err(err).Str("url", sourceURL).Msg("readability metadata failed")
				warnings = append(warnings, "readability metadata: "+err.Error())
			} else {
				meta = meta.Merge(rm)
			}
		}
		return nil
	})
	g.Go(func() error {
		doc, err := extract.Parse(markup)
		if err != nil {
			return source.ParseFailure(sourceURL, "parse HTML", err)
		}
		removed := extract.RemoveBoilerplate(doc)
		best := 0
		sel := extract.Selector{Strategies: p.Strategies}
		c, err := sel.SelectFunc(doc, func(c extract.Candidate) bool {
			out := format.Nodes(c.Nodes)
			n := utf8.RuneCountInString(out)
			logger.Debug().Str("strategy", c.Strategy).Int("chars", n).Float64("score", c.Score).Msg("candidate")
			if n > best {
				best = n
			}
			if n < floor {
				return false
			}
			text = out
			return true
		})
		if errors.Is(err, extract.ErrNoCandidate) {
			return source.TooShort(sourceURL, best, floor)
		}
		if err != nil {
			return err
		}
		chosen = c.Strategy
		logger.Debug().Int("boilerplate", removed).Str("strategy", chosen).Msg("content selected")
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &source.NormalizedDocument{
		Metadata: meta,
		Text:     text,
		Strategy: chosen,
		Warnings: warnings,
	}, nil
}

func (p *Pipeline) extractPDF(ctx context.Context, desc source.Descriptor, loc string, floor int) (*source.NormalizedDocument, error) {
	data := desc.Data
	if len(data) == 0 {
		if p.PDFs == nil {
			return nil, source.FetchFailure(loc, "no PDF fetcher configured", nil)
		}
		var err error
		if data, err = p.PDFs.PDF(ctx, strings.TrimSpace(desc.URL)); err != nil {
			return nil, classify(err, loc, source.FetchFailure, "download PDF")
		}
	}
	pages, info, err := fetch.ParsePDF(data)
	if err != nil {
		return nil, err
	}
	text := format.Pages(pages)
	if err := checkFloor(text, loc, floor); err != nil {
		return nil, err
	}
	var warnings []string
	if info.Title == "" {
		log.Ctx(ctx).Warn().Str("source", loc).Msg("pdf has no document title")
		warnings = append(warnings, "pdf metadata: no document title")
	}
	info.SourceURL = loc
	return &source.NormalizedDocument{
		Metadata: info,
		Text:     text,
		Strategy: StrategyPDF,
		Warnings: warnings,
	}, nil
}

func (p *Pipeline) extractYouTube(ctx context.Context, link string, floor int) (*source.NormalizedDocument, error) {
	id, err := fetch.VideoID(link)
	if err != nil {
		return nil, err
	}
	if p.Transcripts == nil {
		return nil, source.FetchFailure(link, "no transcript source configured", nil)
	}
	watch := fetch.WatchURL(id)
	logger := log.Ctx(ctx)

	var (
		segs     []source.Segment
		meta     = source.Metadata{SourceURL: link}
		warnings []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := p.Transcripts.Transcript(gctx, id)
		if err != nil {
			return classify(err, link, source.ParseFailure, "transcript")
		}
		segs = s
		return nil
	})
	if p.Meta != nil {
		g.Go(func() error {
			m, err := p.Meta.Lookup(gctx, watch)
			if err != nil {
				if gctx.Err() == nil {
					logger.Warn().Err(err).Str("video", id).Msg("video metadata lookup failed")
					warnings = append(warnings, "video metadata: "+err.Error())
				}
				return nil
			}
			meta = meta.Merge(m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	text := format.Transcript(segs)
	if err := checkFloor(text, link, floor); err != nil {
		return nil, err
	}
	return &source.NormalizedDocument{
		Metadata: meta,
		Text:     text,
		Strategy: StrategyTranscript,
		Warnings: warnings,
	}, nil
}

func checkFloor(text, loc string, floor int) error {
	if n := utf8.RuneCountInString(text); n < floor {
		return source.TooShort(loc, n, floor)
	}
	return nil
}

// classify wraps errors from collaborators that are not already
// extraction errors.
func classify(err error, loc string, as func(src, msg string, cause error) error, msg string) error {
	if _, ok := source.KindOf(err); ok {
		return err
	}
	return as(loc, msg, err)
}

// withSource fills in the locator on extraction errors raised by helpers
// that do not know it.
func withSource(err error, loc string) error {
	var ee *source.ExtractionError
	if errors.As(err, &ee) && ee.Source == "" {
		ee.Source = loc
	}
	return err
}
