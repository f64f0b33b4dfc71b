// Package chunk splits normalized text into bounded, ordered segments for
// token-limited model calls.
package chunk

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperifyio/notelo/internal/source"
)

const (
	// DefaultMaxLength sizes chunks for full-document summarization.
	DefaultMaxLength = 30000
	// PreviewMaxLength sizes the single chunk used for a quick summary preview.
	PreviewMaxLength = 2000
)

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// Options configures Split.
type Options struct {
	// MaxLength bounds each chunk in characters. Zero means DefaultMaxLength.
	MaxLength int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMaxLength sets the chunk bound.
func WithMaxLength(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.opts.MaxLength = n
		}
	}
}

// Chunker is a reusable Split with fixed options.
type Chunker struct {
	opts Options
}

// New returns a Chunker using DefaultMaxLength unless overridden.
func New(opts ...Option) *Chunker {
	c := &Chunker{opts: Options{MaxLength: DefaultMaxLength}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// MaxLength reports the configured bound.
func (c *Chunker) MaxLength() int { return c.opts.MaxLength }

// Split splits text with the chunker's options.
func (c *Chunker) Split(text string) []source.Chunk {
	return Split(text, c.opts)
}

// unit is an indivisible piece of text plus the separator that joined it to
// the previous unit in the original text.
type unit struct {
	text string
	sep  string
}

// Split breaks text into chunks of at most opts.MaxLength characters. Paragraphs
// are the primary unit; a paragraph over the limit is broken into lines and
// then sentences. A single unit longer than the limit is emitted whole.
// Chunks come back in document order and never empty.
func Split(text string, opts Options) []source.Chunk {
	max := opts.MaxLength
	if max <= 0 {
		max = DefaultMaxLength
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var units []unit
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		first := len(units)
		units = append(units, explode(para, max)...)
		if first > 0 {
			units[first].sep = "\n\n"
		}
	}

	var chunks []source.Chunk
	var cur strings.Builder
	n := 0
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, source.Chunk{Text: cur.String(), Order: len(chunks)})
		cur.Reset()
		n = 0
	}
	for _, u := range units {
		size := utf8.RuneCountInString(u.text)
		if n > 0 && n+len(u.sep)+size > max {
			flush()
		}
		if n > 0 {
			cur.WriteString(u.sep)
			n += len(u.sep)
		}
		cur.WriteString(u.text)
		n += size
	}
	flush()
	return chunks
}

// Preview returns the first chunk of text at the given bound.
func Preview(text string, max int) (source.Chunk, bool) {
	chunks := Split(text, Options{MaxLength: max})
	if len(chunks) == 0 {
		return source.Chunk{}, false
	}
	return chunks[0], true
}

// Join reassembles chunks in order with paragraph separators.
func Join(chunks []source.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n")
}

func explode(para string, max int) []unit {
	if utf8.RuneCountInString(para) <= max {
		return []unit{{text: para}}
	}
	var out []unit
	for i, line := range strings.Split(para, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sep := ""
		if i > 0 && len(out) > 0 {
			sep = "\n"
		}
		if utf8.RuneCountInString(line) <= max {
			out = append(out, unit{text: line, sep: sep})
			continue
		}
		for j, s := range Sentences(line) {
			if j > 0 {
				sep = " "
			}
			out = append(out, unit{text: s, sep: sep})
		}
	}
	return out
}

// Sentences splits s after runs of '.', '!' or '?' that are followed by
// whitespace. Closing quotes and brackets stay with their sentence. The
// returned sentences are trimmed; joining them with single spaces yields s
// with its whitespace collapsed at the cut points.
func Sentences(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && (isTerminator(runes[j]) || isCloser(runes[j])) {
			j++
		}
		if j < len(runes) && !unicode.IsSpace(runes[j]) {
			i = j - 1
			continue
		}
		if sent := strings.TrimSpace(string(runes[start:j])); sent != "" {
			out = append(out, sent)
		}
		start = j
		i = j - 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}
