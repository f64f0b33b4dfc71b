package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/notelo/internal/cache"
	"github.com/hyperifyio/notelo/internal/fetch"
	"github.com/hyperifyio/notelo/internal/ratelimit"
)

const (
	DefaultUserAgent      = "notelo/1.0 (+https://github.com/hyperifyio/notelo)"
	DefaultCacheDir       = ".notelo-cache"
	DefaultTranscriptLang = "en"
	DefaultQuizCount      = 5
	DefaultFlashcardCount = 10
)

// Artifact names accepted by Config.Generate.
const (
	ArtifactSummary    = "summary"
	ArtifactQuiz       = "quiz"
	ArtifactFlashcards = "flashcards"
)

// Config holds runtime configuration for the application.
type Config struct {
	// Kind is text, url, pdf or youtube. Empty means detect from Source.
	Kind string
	// Source is literal text, a URL, or a file path for pdf and text.
	// "-" reads stdin.
	Source string

	OutputPath    string
	OutputPDFPath string
	JSON          bool

	// ChunkMax bounds chunk length. Zero derives it from the model window.
	ChunkMax int
	Preview  bool
	Generate []string

	QuizCount      int
	FlashcardCount int

	// LLM
	LLMBaseURL      string
	LLMModel        string
	LLMAPIKey       string
	AIRatePerMinute int

	// Fetch
	UserAgent      string
	Proxies        []string
	NoProxies      bool
	TranscriptLang string
	FetchTimeout   time.Duration

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool
	// CachePurge limits age based purging to these entry kinds: pages or an
	// artifact name. Empty purges every kind.
	CachePurge []string

	Verbose bool
}

// Defaults returns the baseline configuration every other layer overrides.
func Defaults() Config {
	return Config{
		UserAgent:       DefaultUserAgent,
		Proxies:         append([]string(nil), fetch.DefaultProxies...),
		TranscriptLang:  DefaultTranscriptLang,
		FetchTimeout:    15 * time.Second,
		CacheDir:        DefaultCacheDir,
		AIRatePerMinute: ratelimit.DefaultRequests,
		QuizCount:       DefaultQuizCount,
		FlashcardCount:  DefaultFlashcardCount,
	}
}

// Wants reports whether artifact was requested.
func (c Config) Wants(artifact string) bool {
	for _, g := range c.Generate {
		if g == artifact {
			return true
		}
	}
	return false
}

// ParseGenerate splits a comma list of artifact names.
func ParseGenerate(s string) ([]string, error) {
	var out []string
	for _, part := range splitList(s) {
		switch p := strings.ToLower(part); p {
		case ArtifactSummary, ArtifactQuiz, ArtifactFlashcards:
			out = append(out, p)
		default:
			return nil, fmt.Errorf("unknown artifact %q (want summary, quiz or flashcards)", part)
		}
	}
	return out, nil
}

// ParseCacheKinds splits a comma list of cache entry kinds.
func ParseCacheKinds(s string) ([]string, error) {
	var out []string
	for _, part := range splitList(s) {
		switch k := strings.ToLower(part); k {
		case cache.PagesKind, ArtifactSummary, ArtifactQuiz, ArtifactFlashcards:
			out = append(out, k)
		default:
			return nil, fmt.Errorf("unknown cache kind %q (want pages, summary, quiz or flashcards)", part)
		}
	}
	return out, nil
}

// Validate checks settings that cannot be defaulted.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Source) == "" {
		return fmt.Errorf("no source given")
	}
	if len(c.Generate) > 0 && strings.TrimSpace(c.LLMModel) == "" {
		return fmt.Errorf("generating %s needs a model (LLM_MODEL or -llm.model)", strings.Join(c.Generate, ","))
	}
	if c.ChunkMax < 0 {
		return fmt.Errorf("chunk max must not be negative")
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
