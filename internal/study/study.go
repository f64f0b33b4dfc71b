// Package study turns extracted text into study material (summaries,
// quizzes and flashcards) through an OpenAI-compatible chat model.
package study

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/notelo/internal/cache"
	"github.com/hyperifyio/notelo/internal/llm"
	"github.com/hyperifyio/notelo/internal/ratelimit"
	"github.com/hyperifyio/notelo/internal/source"
)

// Mode selects how much of a document Summary reads.
type Mode int

const (
	// PreviewMode summarizes only the first chunk.
	PreviewMode Mode = iota
	// FullMode summarizes every chunk in order and joins the parts.
	FullMode
)

func (m Mode) String() string {
	if m == FullMode {
		return "full"
	}
	return "preview"
}

// Question is one multiple choice quiz item. Answer indexes Options.
type Question struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      int      `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

// Flashcard is a front/back pair.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

var (
	ErrNotConfigured = errors.New("study generator not configured")
	ErrEmptyResponse = errors.New("empty model response")
	ErrNoChunks      = errors.New("nothing to summarize")
)

// Generator issues study generation calls. Every call waits on Limiter and is
// cached by model and prompt when Cache is set.
type Generator struct {
	Client  llm.Client
	Model   string
	Limiter *ratelimit.Limiter
	Cache   *cache.StudyCache
	// RetryBackoff is the pause recorded on the limiter after a 429.
	// Zero means ratelimit.DefaultBackoff.
	RetryBackoff time.Duration
	Temperature  float32
}

// Summary summarizes chunks. PreviewMode reads chunk 0 only; FullMode reads
// every chunk sequentially and joins the partial summaries with blank lines.
func (g *Generator) Summary(ctx context.Context, chunks []source.Chunk, mode Mode) (string, error) {
	if len(chunks) == 0 {
		return "", ErrNoChunks
	}
	if mode == PreviewMode {
		chunks = chunks[:1]
	}
	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		out, err := g.complete(ctx, "summary", summarySystem, summaryPrompt(c, i, len(chunks)))
		if err != nil {
			return "", fmt.Errorf("summary chunk %d: %w", c.Order, err)
		}
		parts = append(parts, strings.TrimSpace(out))
	}
	log.Ctx(ctx).Debug().Str("mode", mode.String()).Int("chunks", len(chunks)).Msg("summary generated")
	return strings.Join(parts, "\n\n"), nil
}

// Quiz asks for n multiple choice questions over text. Items with fewer than
// two options or an out of range answer are dropped.
func (g *Generator) Quiz(ctx context.Context, text string, n int) ([]Question, error) {
	if n <= 0 {
		n = 5
	}
	out, err := g.complete(ctx, "quiz", quizSystem, fmt.Sprintf(quizPrompt, n, text))
	if err != nil {
		return nil, fmt.Errorf("quiz: %w", err)
	}
	var raw []Question
	if err := decodeJSON(out, &raw); err != nil {
		return nil, fmt.Errorf("quiz: %w", err)
	}
	qs := make([]Question, 0, len(raw))
	for _, q := range raw {
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" || len(q.Options) < 2 || q.Answer < 0 || q.Answer >= len(q.Options) {
			continue
		}
		qs = append(qs, q)
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("quiz: %w", ErrEmptyResponse)
	}
	if len(qs) > n {
		qs = qs[:n]
	}
	return qs, nil
}

// Flashcards asks for n front/back cards over text.
func (g *Generator) Flashcards(ctx context.Context, text string, n int) ([]Flashcard, error) {
	if n <= 0 {
		n = 10
	}
	out, err := g.complete(ctx, "flashcards", flashcardSystem, fmt.Sprintf(flashcardPrompt, n, text))
	if err != nil {
		return nil, fmt.Errorf("flashcards: %w", err)
	}
	var raw []Flashcard
	if err := decodeJSON(out, &raw); err != nil {
		return nil, fmt.Errorf("flashcards: %w", err)
	}
	cards := make([]Flashcard, 0, len(raw))
	for _, c := range raw {
		c.Front, c.Back = strings.TrimSpace(c.Front), strings.TrimSpace(c.Back)
		if c.Front == "" || c.Back == "" {
			continue
		}
		cards = append(cards, c)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("flashcards: %w", ErrEmptyResponse)
	}
	if len(cards) > n {
		cards = cards[:n]
	}
	return cards, nil
}

// complete runs one model call for artifact, which also names its cache
// bucket.
func (g *Generator) complete(ctx context.Context, artifact, system, user string) (string, error) {
	if g == nil || g.Client == nil || strings.TrimSpace(g.Model) == "" {
		return "", ErrNotConfigured
	}
	var key string
	if g.Cache != nil {
		key = cache.KeyFrom(g.Model, system+"\n\n"+user)
		if e, ok, _ := g.Cache.Get(ctx, artifact, key); ok {
			log.Ctx(ctx).Debug().Str("model", g.Model).Str("artifact", artifact).Msg("study cache hit")
			return e.Content, nil
		}
	}

	req := openai.ChatCompletionRequest{
		Model: g.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: g.Temperature,
		N:           1,
	}
	resp, err := g.call(ctx, req)
	if err != nil && llm.IsRateLimited(err) {
		log.Ctx(ctx).Warn().Err(err).Dur("backoff", g.backoff()).Msg("model rate limited; retrying once")
		if g.Limiter != nil {
			g.Limiter.Backoff(g.backoff())
		} else if err := sleep(ctx, g.backoff()); err != nil {
			return "", err
		}
		resp, err = g.call(ctx, req)
	}
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	if g.Cache != nil {
		entry := cache.StudyEntry{Artifact: artifact, Model: g.Model, Content: content}
		if err := g.Cache.Save(ctx, key, entry); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("study cache save failed")
		}
	}
	return content, nil
}

func (g *Generator) call(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if g.Limiter != nil {
		if err := g.Limiter.Wait(ctx); err != nil {
			return openai.ChatCompletionResponse{}, err
		}
	}
	return g.Client.CreateChatCompletion(ctx, req)
}

func (g *Generator) backoff() time.Duration {
	if g.RetryBackoff > 0 {
		return g.RetryBackoff
	}
	return ratelimit.DefaultBackoff
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// decodeJSON decodes a model reply into v after stripping a surrounding
// markdown code fence.
func decodeJSON(s string, v any) error {
	s = StripCodeFence(s)
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

// StripCodeFence removes a leading ``` or ```json line and a trailing ```.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
