package study

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/notelo/internal/cache"
	"github.com/hyperifyio/notelo/internal/ratelimit"
	"github.com/hyperifyio/notelo/internal/source"
)

type reply struct {
	content string
	err     error
}

type fakeClient struct {
	mu      sync.Mutex
	replies []reply
	reqs    []openai.ChatCompletionRequest
}

func (f *fakeClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	r := reply{content: "default"}
	if len(f.replies) > 0 {
		r = f.replies[0]
		f.replies = f.replies[1:]
	}
	if r.err != nil {
		return openai.ChatCompletionResponse{}, r.err
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: r.content}}}}, nil
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func chunks(texts ...string) []source.Chunk {
	out := make([]source.Chunk, len(texts))
	for i, s := range texts {
		out[i] = source.Chunk{Text: s, Order: i}
	}
	return out
}

func TestSummary_PreviewUsesFirstChunkOnly(t *testing.T) {
	fc := &fakeClient{replies: []reply{{content: "first summary"}}}
	g := &Generator{Client: fc, Model: "m"}

	got, err := g.Summary(context.Background(), chunks("alpha text", "beta text"), PreviewMode)
	require.NoError(t, err)
	assert.Equal(t, "first summary", got)
	require.Equal(t, 1, fc.calls())
	assert.Contains(t, fc.reqs[0].Messages[1].Content, "alpha text")
	assert.NotContains(t, fc.reqs[0].Messages[1].Content, "beta text")
}

func TestSummary_FullIsSequentialAndOrdered(t *testing.T) {
	fc := &fakeClient{replies: []reply{{content: "one"}, {content: "two"}, {content: "three"}}}
	g := &Generator{Client: fc, Model: "m"}

	got, err := g.Summary(context.Background(), chunks("c0", "c1", "c2"), FullMode)
	require.NoError(t, err)
	assert.Equal(t, "one\n\ntwo\n\nthree", got)
	require.Equal(t, 3, fc.calls())
	for i, want := range []string{"c0", "c1", "c2"} {
		assert.True(t, strings.HasSuffix(fc.reqs[i].Messages[1].Content, want))
		assert.Contains(t, fc.reqs[i].Messages[1].Content, "of 3")
	}
}

func TestSummary_Errors(t *testing.T) {
	_, err := (&Generator{Client: &fakeClient{}, Model: "m"}).Summary(context.Background(), nil, FullMode)
	assert.ErrorIs(t, err, ErrNoChunks)

	_, err = (&Generator{Model: "m"}).Summary(context.Background(), chunks("x"), PreviewMode)
	assert.ErrorIs(t, err, ErrNotConfigured)

	fc := &fakeClient{replies: []reply{{content: "   "}}}
	_, err = (&Generator{Client: fc, Model: "m"}).Summary(context.Background(), chunks("x"), PreviewMode)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestQuiz_StripsFenceAndDropsInvalid(t *testing.T) {
	body := "```json\n[" +
		`{"question":"Capital of France?","options":["Paris","Rome"],"answer":0},` +
		`{"question":"Broken","options":["only"],"answer":0},` +
		`{"question":"Out of range","options":["a","b"],"answer":5},` +
		`{"question":"2+2?","options":["3","4","5"],"answer":1,"explanation":"basic"}` +
		"]\n```"
	fc := &fakeClient{replies: []reply{{content: body}}}
	g := &Generator{Client: fc, Model: "m"}

	qs, err := g.Quiz(context.Background(), "material", 5)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "Capital of France?", qs[0].Question)
	assert.Equal(t, 1, qs[1].Answer)
	assert.Equal(t, "basic", qs[1].Explanation)
	assert.Contains(t, fc.reqs[0].Messages[1].Content, "Write 5 multiple choice")
}

func TestQuiz_TruncatesAndRejectsProse(t *testing.T) {
	body := `[{"question":"a","options":["x","y"],"answer":0},{"question":"b","options":["x","y"],"answer":1}]`
	g := &Generator{Client: &fakeClient{replies: []reply{{content: body}}}, Model: "m"}
	qs, err := g.Quiz(context.Background(), "material", 1)
	require.NoError(t, err)
	assert.Len(t, qs, 1)

	g = &Generator{Client: &fakeClient{replies: []reply{{content: "Sure! Here is a quiz."}}}, Model: "m"}
	_, err = g.Quiz(context.Background(), "material", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode model json")
}

func TestFlashcards(t *testing.T) {
	body := "```\n" + `[{"front":"Photosynthesis","back":"Light to sugar"},{"front":"","back":"orphan"}]` + "\n```"
	g := &Generator{Client: &fakeClient{replies: []reply{{content: body}}}, Model: "m"}
	cards, err := g.Flashcards(context.Background(), "material", 10)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, Flashcard{Front: "Photosynthesis", Back: "Light to sugar"}, cards[0])

	g = &Generator{Client: &fakeClient{replies: []reply{{content: "[]"}}}, Model: "m"}
	_, err = g.Flashcards(context.Background(), "material", 10)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestComplete_RateLimitedRetriesOnceWithBackoff(t *testing.T) {
	limited := &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}
	fc := &fakeClient{replies: []reply{{err: limited}, {content: "after retry"}}}
	lim := ratelimit.New(100, time.Second)
	g := &Generator{Client: fc, Model: "m", Limiter: lim, RetryBackoff: 30 * time.Millisecond}

	start := time.Now()
	got, err := g.Summary(context.Background(), chunks("x"), PreviewMode)
	require.NoError(t, err)
	assert.Equal(t, "after retry", got)
	assert.Equal(t, 2, fc.calls())
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestComplete_SecondRateLimitFails(t *testing.T) {
	limited := &openai.APIError{HTTPStatusCode: 429}
	fc := &fakeClient{replies: []reply{{err: limited}, {err: limited}, {content: "never"}}}
	g := &Generator{Client: fc, Model: "m", RetryBackoff: time.Millisecond}

	_, err := g.Summary(context.Background(), chunks("x"), PreviewMode)
	require.Error(t, err)
	assert.Equal(t, 2, fc.calls())
}

func TestComplete_OtherErrorsAreNotRetried(t *testing.T) {
	fc := &fakeClient{replies: []reply{{err: errors.New("boom")}, {content: "never"}}}
	g := &Generator{Client: fc, Model: "m", RetryBackoff: time.Millisecond}
	_, err := g.Summary(context.Background(), chunks("x"), PreviewMode)
	require.Error(t, err)
	assert.Equal(t, 1, fc.calls())
}

func TestComplete_CachedByModelAndPrompt(t *testing.T) {
	c := &cache.StudyCache{Dir: t.TempDir()}
	fc := &fakeClient{replies: []reply{{content: "cached answer"}, {content: "other model"}}}
	g := &Generator{Client: fc, Model: "m1", Cache: c}

	for i := 0; i < 2; i++ {
		got, err := g.Summary(context.Background(), chunks("same text"), PreviewMode)
		require.NoError(t, err)
		assert.Equal(t, "cached answer", got)
	}
	assert.Equal(t, 1, fc.calls())

	g.Model = "m2"
	got, err := g.Summary(context.Background(), chunks("same text"), PreviewMode)
	require.NoError(t, err)
	assert.Equal(t, "other model", got)
	assert.Equal(t, 2, fc.calls())
}

func TestComplete_LimiterCancelled(t *testing.T) {
	lim := ratelimit.New(1, time.Hour)
	require.True(t, lim.Allow())
	g := &Generator{Client: &fakeClient{}, Model: "m", Limiter: lim}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Summary(ctx, chunks("x"), PreviewMode)
	require.Error(t, err)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `[1]`, StripCodeFence("```json\n[1]\n```"))
	assert.Equal(t, `[1]`, StripCodeFence("  [1] "))
	assert.Equal(t, `[1]`, StripCodeFence("```\n[1]```"))
}
