package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/notelo/internal/budget"
	"github.com/hyperifyio/notelo/internal/cache"
	"github.com/hyperifyio/notelo/internal/chunk"
	"github.com/hyperifyio/notelo/internal/fetch"
	"github.com/hyperifyio/notelo/internal/llm"
	"github.com/hyperifyio/notelo/internal/pipeline"
	"github.com/hyperifyio/notelo/internal/ratelimit"
	"github.com/hyperifyio/notelo/internal/source"
	"github.com/hyperifyio/notelo/internal/study"
)

// ErrStudyFailed is returned by Run when extraction succeeded but at least
// one requested study artifact could not be generated. Output is still
// written.
var ErrStudyFailed = errors.New("study generation failed")

type App struct {
	cfg       Config
	pipeline  *pipeline.Pipeline
	gen       *study.Generator
	httpCache *cache.HTTPCache
	stdin     io.Reader
	stdout    io.Writer
}

// Option customizes New, mostly for tests and embedding.
type Option func(*options)

type options struct {
	pipeline   *pipeline.Pipeline
	client     llm.Client
	httpClient *http.Client
	stdin      io.Reader
	stdout     io.Writer
}

// WithPipeline replaces the network backed pipeline.
func WithPipeline(p *pipeline.Pipeline) Option { return func(o *options) { o.pipeline = p } }

// WithLLM replaces the OpenAI-compatible client.
func WithLLM(c llm.Client) Option { return func(o *options) { o.client = c } }

// WithHTTPClient sets the transport used for fetching and model calls.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithIO sets where "-" sources are read from and where output goes when no
// output path is configured.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(o *options) { o.stdin, o.stdout = in, out }
}

func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{stdin: os.Stdin, stdout: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = newHTTPClient(0)
	}

	a := &App{cfg: cfg, stdin: o.stdin, stdout: o.stdout}
	var studyCache *cache.StudyCache
	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
			}
		}
		if cfg.CacheMaxAge > 0 {
			// Best effort; a stale entry is not worth failing startup over.
			removed, err := cache.Purge(cfg.CacheDir, cfg.CacheMaxAge, cfg.CachePurge...)
			if err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache purge failed")
			}
			for kind, n := range removed {
				log.Debug().Str("kind", kind).Int("removed", n).Msg("cache purged")
			}
		}
		a.httpCache = &cache.HTTPCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
		studyCache = &cache.StudyCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
	}

	a.pipeline = o.pipeline
	if a.pipeline == nil {
		a.pipeline = a.newPipeline(o.httpClient)
	}

	if len(cfg.Generate) > 0 {
		client := o.client
		if client == nil {
			client = llm.NewOpenAI(cfg.LLMBaseURL, cfg.LLMAPIKey, o.httpClient)
		}
		preflight(ctx, client)
		a.gen = &study.Generator{
			Client:      client,
			Model:       cfg.LLMModel,
			Limiter:     ratelimit.PerMinute(cfg.AIRatePerMinute),
			Cache:       studyCache,
			Temperature: 0.2,
		}
	}
	return a, nil
}

func (a *App) newPipeline(hc *http.Client) *pipeline.Pipeline {
	// Proxy failover is the only retry on the fetch path.
	client := &fetch.Client{
		HTTPClient:        hc,
		UserAgent:         a.cfg.UserAgent,
		MaxAttempts:       1,
		PerRequestTimeout: a.cfg.FetchTimeout,
		Cache:             a.httpCache,
		MaxConcurrent:     4,
	}
	proxies := a.cfg.Proxies
	if a.cfg.NoProxies {
		proxies = nil
	}
	return pipeline.New(
		pipeline.WithPages(&fetch.ProxyChain{Client: client, Proxies: proxies}),
		pipeline.WithPDFs(&fetch.PDFDownloader{Client: client}),
		pipeline.WithTranscripts(&fetch.TimedText{Client: client, Lang: a.cfg.TranscriptLang}),
		pipeline.WithMetadata(&fetch.OEmbed{Client: client}),
	)
}

// preflight lists models when the backend supports it. Failure only warns;
// the study calls surface real errors.
func preflight(ctx context.Context, client llm.Client) {
	lister, ok := client.(llm.ModelLister)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	models, err := lister.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("LLM model list failed; continuing")
		return
	}
	if len(models.Models) == 0 {
		log.Warn().Msg("LLM returned zero models")
		return
	}
	log.Debug().Int("count", len(models.Models)).Msg("LLM models available")
}

// Run extracts the configured source, generates the requested artifacts and
// writes the output. Extraction failures come back as *source.ExtractionError.
func (a *App) Run(ctx context.Context) error {
	res, err := a.Process(ctx)
	if err != nil {
		return err
	}
	if err := a.write(res); err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("%w: %s", ErrStudyFailed, strings.Join(res.Errors, "; "))
	}
	return nil
}

// Process runs extraction, chunking and generation without writing output.
func (a *App) Process(ctx context.Context) (*Result, error) {
	desc, err := a.descriptor()
	if err != nil {
		return nil, err
	}
	doc, err := a.pipeline.Extract(ctx, desc)
	if err != nil {
		return nil, err
	}
	res := &Result{Kind: desc.Kind, Document: doc}

	mode := study.FullMode
	if a.cfg.Preview {
		mode = study.PreviewMode
		if c, ok := chunk.Preview(doc.Text, chunk.PreviewMaxLength); ok {
			res.Chunks = []source.Chunk{c}
		}
	} else {
		res.Chunks = chunk.Split(doc.Text, chunk.Options{MaxLength: a.chunkSize()})
	}
	log.Ctx(ctx).Debug().Int("chunks", len(res.Chunks)).Str("mode", mode.String()).Msg("chunked")

	if a.gen == nil || len(res.Chunks) == 0 {
		return res, nil
	}
	// Quiz and flashcards read the leading chunk, which fits one model call.
	lead := res.Chunks[0].Text
	fail := func(what string, err error) {
		log.Ctx(ctx).Error().Err(err).Str("artifact", what).Msg("study generation failed")
		res.Errors = append(res.Errors, what+": "+err.Error())
	}
	if a.cfg.Wants(ArtifactSummary) {
		if s, err := a.gen.Summary(ctx, res.Chunks, mode); err != nil {
			fail(ArtifactSummary, err)
		} else {
			res.Summary = s
		}
	}
	if a.cfg.Wants(ArtifactQuiz) {
		if q, err := a.gen.Quiz(ctx, lead, a.cfg.QuizCount); err != nil {
			fail(ArtifactQuiz, err)
		} else {
			res.Quiz = q
		}
	}
	if a.cfg.Wants(ArtifactFlashcards) {
		if f, err := a.gen.Flashcards(ctx, lead, a.cfg.FlashcardCount); err != nil {
			fail(ArtifactFlashcards, err)
		} else {
			res.Flashcards = f
		}
	}
	return res, nil
}

func (a *App) chunkSize() int {
	if a.cfg.ChunkMax > 0 {
		return a.cfg.ChunkMax
	}
	if a.cfg.LLMModel != "" {
		return budget.ChunkChars(a.cfg.LLMModel, budget.DefaultReservedOutput)
	}
	return chunk.DefaultMaxLength
}

func (a *App) write(res *Result) error {
	out := a.stdout
	if a.cfg.OutputPath != "" {
		if dir := filepath.Dir(a.cfg.OutputPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
		}
		f, err := os.Create(a.cfg.OutputPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	if a.cfg.JSON {
		if err := WriteJSON(out, res); err != nil {
			return fmt.Errorf("write json: %w", err)
		}
	} else if _, err := io.WriteString(out, RenderMarkdown(res)); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	if a.cfg.OutputPDFPath != "" {
		if err := WriteStudyPDF(res, a.cfg.OutputPDFPath); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
		log.Info().Str("path", a.cfg.OutputPDFPath).Msg("study PDF written")
	}
	return nil
}

// descriptor turns the configured source into a pipeline input. Text and
// PDF sources may name a local file; "-" reads stdin.
func (a *App) descriptor() (source.Descriptor, error) {
	src := strings.TrimSpace(a.cfg.Source)
	kind := DetectKind(src)
	if a.cfg.Kind != "" {
		k, err := source.ParseKind(a.cfg.Kind)
		if err != nil {
			return source.Descriptor{}, err
		}
		kind = k
	}

	switch kind {
	case source.KindURL, source.KindYouTube:
		return source.Descriptor{Kind: kind, URL: src}, nil
	case source.KindPDF:
		if isHTTP(src) {
			return source.Descriptor{Kind: kind, URL: src}, nil
		}
		data, err := a.readLocal(src)
		if err != nil {
			return source.Descriptor{}, source.InvalidSource(src, "read PDF file", err)
		}
		return source.Descriptor{Kind: kind, Data: data}, nil
	default:
		if src == "-" || isFile(src) {
			data, err := a.readLocal(src)
			if err != nil {
				return source.Descriptor{}, source.InvalidSource(src, "read text file", err)
			}
			return source.Descriptor{Kind: kind, Text: string(data)}, nil
		}
		return source.Descriptor{Kind: kind, Text: a.cfg.Source}, nil
	}
}

func (a *App) readLocal(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(a.stdin)
	}
	return os.ReadFile(path)
}

// DetectKind guesses the kind of src: YouTube links, then other http(s)
// URLs, .pdf paths, and text for everything else.
func DetectKind(src string) source.Kind {
	src = strings.TrimSpace(src)
	if isHTTP(src) {
		if _, err := fetch.VideoID(src); err == nil {
			return source.KindYouTube
		}
		if u, err := url.Parse(src); err == nil && strings.EqualFold(filepath.Ext(u.Path), ".pdf") {
			return source.KindPDF
		}
		return source.KindURL
	}
	if strings.EqualFold(filepath.Ext(src), ".pdf") && isFile(src) {
		return source.KindPDF
	}
	return source.KindText
}

func isHTTP(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isFile(s string) bool {
	if s == "" || strings.ContainsAny(s, "\n") {
		return false
	}
	fi, err := os.Stat(s)
	return err == nil && fi.Mode().IsRegular()
}
