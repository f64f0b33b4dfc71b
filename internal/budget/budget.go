// Package budget sizes model requests: rough token estimates, model context
// windows, and the chunk length that fits a summarization call.
package budget

import (
	"math"
	"strings"

	"github.com/hyperifyio/notelo/internal/chunk"
)

// CharsPerToken is the conservative English heuristic used for estimates.
const CharsPerToken = 4

// DefaultReservedOutput is the output allowance for a chunk summary.
const DefaultReservedOutput = 1024

// EstimateTokensFromChars converts a character count into an estimated token
// count, rounding up. The result is at least 1 when chars > 0.
func EstimateTokensFromChars(charCount int) int {
	if charCount <= 0 {
		return 0
	}
	return int(math.Ceil(float64(charCount) / CharsPerToken))
}

// EstimateTokens returns the estimated token count of s.
func EstimateTokens(s string) int {
	return EstimateTokensFromChars(len(s))
}

// EstimatePromptTokens estimates a system plus user message pair.
func EstimatePromptTokens(system, user string) int {
	return EstimateTokens(system) + EstimateTokens(user)
}

// knownModelMax holds rough context sizes for common model identifiers.
var knownModelMax = map[string]int{
	"gpt-4o":        128_000,
	"gpt-4o-mini":   128_000,
	"gpt-4-turbo":   128_000,
	"gpt-4.1":       1_000_000,
	"gpt-4.1-mini":  1_000_000,
	"gpt-3.5-turbo": 16_384,
	"llama-3":       8_192,
	"llama-3.1":     128_000,
	"gpt-oss-20b":   4_096,
}

var suffixSizes = []struct {
	suffix string
	tokens int
}{
	{"1m", 1_000_000},
	{"200k", 200_000},
	{"128k", 128_000},
	{"32k", 32_768},
	{"16k", 16_384},
}

// ModelContextTokens estimates the context window of a model. Unknown names
// get a conservative 8192.
func ModelContextTokens(model string) int {
	name := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return 8192
	}
	if v, ok := knownModelMax[name]; ok {
		return v
	}
	for _, s := range suffixSizes {
		if strings.HasSuffix(name, s.suffix) {
			return s.tokens
		}
	}
	if strings.Contains(name, "-mini") {
		return 128_000
	}
	return 8192
}

// HeadroomTokens is the safety margin subtracted from the context window:
// the larger of 5% of the window or 512 tokens.
func HeadroomTokens(model string) int {
	dyn := int(math.Ceil(float64(ModelContextTokens(model)) * 0.05))
	if dyn < 512 {
		return 512
	}
	return dyn
}

// RemainingContext is the input budget left after the output reservation,
// headroom and prompt. Never negative.
func RemainingContext(model string, reservedOutput, promptTokens int) int {
	if reservedOutput < 0 {
		reservedOutput = 0
	}
	remaining := ModelContextTokens(model) - HeadroomTokens(model) - reservedOutput - promptTokens
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ChunkChars converts the remaining context of model into a chunk length in
// characters, clamped to [chunk.PreviewMaxLength, chunk.DefaultMaxLength].
func ChunkChars(model string, reservedOutput int) int {
	chars := RemainingContext(model, reservedOutput, 0) * CharsPerToken
	switch {
	case chars < chunk.PreviewMaxLength:
		return chunk.PreviewMaxLength
	case chars > chunk.DefaultMaxLength:
		return chunk.DefaultMaxLength
	}
	return chars
}
