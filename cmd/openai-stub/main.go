// Command openai-stub serves a canned OpenAI-compatible API for exercising
// study generation without a real model.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}
	limited, _ := strconv.Atoi(os.Getenv("RATE_LIMIT_FIRST"))

	log.Info().Str("addr", addr).Str("model", model).Int("rateLimitFirst", limited).Msg("openai-stub listening")
	if err := http.ListenAndServe(addr, newMux(model, limited)); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}

// newMux answers /v1/models and /v1/chat/completions. The first
// rateLimitFirst completions get a 429 so callers can exercise backoff.
func newMux(model string, rateLimitFirst int) *http.ServeMux {
	var served atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if n := served.Add(1); n <= int64(rateLimitFirst) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		sys, user := "", ""
		if len(req.Messages) > 0 {
			sys = strings.TrimSpace(req.Messages[0].Content)
		}
		if len(req.Messages) > 1 {
			user = req.Messages[1].Content
		}

		var content string
		switch {
		case strings.Contains(sys, "quizzes"):
			b, _ := json.Marshal([]map[string]any{
				{"question": "What is the main topic of the material?", "options": []string{"The material", "Something else"}, "answer": 0, "explanation": "It is stated up front."},
				{"question": "Was the material summarized?", "options": []string{"No", "Yes"}, "answer": 1},
			})
			content = "```json\n" + string(b) + "\n```"
		case strings.Contains(sys, "flashcards"):
			b, _ := json.Marshal([]map[string]string{
				{"front": "Key idea", "back": firstLine(user)},
				{"front": "Source", "back": "The submitted material"},
			})
			content = string(b)
		case strings.Contains(sys, "summaries"):
			content = "- " + firstLine(user)
		default:
			http.Error(w, "unexpected system prompt", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "stub",
			"object": "chat.completion",
			"model":  model,
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
		})
	})
	return mux
}

// firstLine returns the first line of the material that follows the prompt
// header, capped at 80 runes.
func firstLine(user string) string {
	if i := strings.LastIndex(user, "Material:\n"); i >= 0 {
		user = user[i+len("Material:\n"):]
	} else if i := strings.Index(user, "\n\n"); i >= 0 {
		user = user[i+2:]
	}
	for _, l := range strings.Split(user, "\n") {
		if s := strings.TrimSpace(l); s != "" {
			if r := []rune(s); len(r) > 80 {
				s = string(r[:80])
			}
			return s
		}
	}
	return "nothing"
}
