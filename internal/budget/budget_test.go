package budget

import (
	"testing"

	"github.com/hyperifyio/notelo/internal/chunk"
)

func TestEstimateTokensFromChars(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{0, 0},
		{1, 1},
		{3, 1},
		{4, 1},
		{5, 2},
		{400, 100},
	}
	for _, c := range cases {
		if got := EstimateTokensFromChars(c.in); got != c.want {
			t.Fatalf("EstimateTokensFromChars(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestEstimatePromptTokens(t *testing.T) {
	// system(6) -> 2, user message(12) -> 3
	if got := EstimatePromptTokens("system", "user message"); got != 5 {
		t.Fatalf("EstimatePromptTokens() = %d, want 5", got)
	}
}

func TestModelContextTokens(t *testing.T) {
	if ModelContextTokens("") != 8192 {
		t.Fatal("empty model should default to 8192")
	}
	if ModelContextTokens("GPT-4o") != 128_000 {
		t.Fatal("lookup should be case-insensitive")
	}
	if ModelContextTokens("openai/gpt-oss-20b") != 4_096 {
		t.Fatal("provider prefix should be ignored")
	}
	if ModelContextTokens("mystery-200k") != 200_000 {
		t.Fatal("size suffix heuristic")
	}
}

func TestRemainingContext(t *testing.T) {
	if got := RemainingContext("gpt-oss-20b", 4096, 0); got != 0 {
		t.Fatalf("remaining should clamp at 0, got %d", got)
	}
	// 8192 - 512 headroom - 1000 - 100
	if got := RemainingContext("unknown", 1000, 100); got != 6580 {
		t.Fatalf("RemainingContext() = %d, want 6580", got)
	}
}

func TestChunkChars(t *testing.T) {
	if got := ChunkChars("gpt-4o", DefaultReservedOutput); got != chunk.DefaultMaxLength {
		t.Fatalf("large model should cap at %d, got %d", chunk.DefaultMaxLength, got)
	}
	if got := ChunkChars("gpt-oss-20b", 4096); got != chunk.PreviewMaxLength {
		t.Fatalf("tiny window should floor at %d, got %d", chunk.PreviewMaxLength, got)
	}
	// (8192 - 512 - 2048) * 4
	if got := ChunkChars("unknown", 2048); got != 22528 {
		t.Fatalf("ChunkChars() = %d, want 22528", got)
	}
}

func BenchmarkChunkChars(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = ChunkChars("gpt-4o-mini", DefaultReservedOutput)
	}
}
