package study

import (
	"fmt"

	"github.com/hyperifyio/notelo/internal/source"
)

const summarySystem = "You write concise study summaries. Use short paragraphs and bullet points for key terms. " +
	"Keep [Page N] and [M:SS] references when they help locate a point. Reply with plain Markdown only."

const quizSystem = "You write multiple choice quizzes for students. Reply with a JSON array only, no prose."

const flashcardSystem = "You write study flashcards. Reply with a JSON array only, no prose."

const quizPrompt = `Write %d multiple choice questions about the material below.
Each item is {"question": string, "options": [string, ...], "answer": index of the correct option, "explanation": string}.

Material:
%s`

const flashcardPrompt = `Write %d flashcards about the material below.
Each item is {"front": term or question, "back": definition or answer}.

Material:
%s`

func summaryPrompt(c source.Chunk, i, total int) string {
	if total <= 1 {
		return "Summarize the following material.\n\n" + c.Text
	}
	return fmt.Sprintf("Summarize part %d of %d of the material. Do not introduce the other parts.\n\n%s", i+1, total, c.Text)
}
