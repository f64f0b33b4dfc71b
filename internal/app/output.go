package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperifyio/notelo/internal/source"
	"github.com/hyperifyio/notelo/internal/study"
)

// Result is everything one run produces.
type Result struct {
	Kind       source.Kind                `json:"kind"`
	Document   *source.NormalizedDocument `json:"document"`
	Chunks     []source.Chunk             `json:"chunks"`
	Summary    string                     `json:"summary,omitempty"`
	Quiz       []study.Question           `json:"quiz,omitempty"`
	Flashcards []study.Flashcard          `json:"flashcards,omitempty"`
	// Errors lists study artifacts that failed while extraction succeeded.
	Errors []string `json:"errors,omitempty"`
}

// Title is the best available heading for the result.
func (r *Result) Title() string {
	if r.Document != nil && strings.TrimSpace(r.Document.Metadata.Title) != "" {
		return strings.TrimSpace(r.Document.Metadata.Title)
	}
	return "Untitled"
}

// WriteJSON encodes r as indented JSON.
func WriteJSON(w io.Writer, r *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}

// RenderMarkdown lays r out as a study sheet. Without any generated
// artifacts it contains the metadata header and the extracted text.
func RenderMarkdown(r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Title())
	if r.Document != nil {
		m := r.Document.Metadata
		for _, kv := range [][2]string{
			{"Author", m.Author},
			{"Date", m.Date},
			{"Source", m.SourceURL},
		} {
			if strings.TrimSpace(kv[1]) != "" {
				fmt.Fprintf(&b, "- %s: %s\n", kv[0], kv[1])
			}
		}
		if m.Description != "" {
			fmt.Fprintf(&b, "\n> %s\n", m.Description)
		}
		b.WriteString("\n")
	}

	if r.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(strings.TrimSpace(r.Summary))
		b.WriteString("\n\n")
	}
	if len(r.Quiz) > 0 {
		b.WriteString("## Quiz\n\n")
		for i, q := range r.Quiz {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q.Question)
			for j, opt := range q.Options {
				fmt.Fprintf(&b, "   %c) %s\n", 'a'+rune(j), opt)
			}
		}
		b.WriteString("\n### Answers\n\n")
		for i, q := range r.Quiz {
			fmt.Fprintf(&b, "%d. %c) %s", i+1, 'a'+rune(q.Answer), q.Options[q.Answer])
			if q.Explanation != "" {
				fmt.Fprintf(&b, " - %s", q.Explanation)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if len(r.Flashcards) > 0 {
		b.WriteString("## Flashcards\n\n")
		for _, c := range r.Flashcards {
			fmt.Fprintf(&b, "- **%s**: %s\n", c.Front, c.Back)
		}
		b.WriteString("\n")
	}
	if r.Summary == "" && len(r.Quiz) == 0 && len(r.Flashcards) == 0 && r.Document != nil {
		b.WriteString("## Content\n\n")
		b.WriteString(r.Document.Text)
		b.WriteString("\n\n")
	}
	if r.Document != nil && len(r.Document.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range r.Document.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}
	if len(r.Errors) > 0 {
		b.WriteString("## Errors\n\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
