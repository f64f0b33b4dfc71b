package format

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hyperifyio/notelo/internal/source"
)

// Pages joins PDF pages, each preceded by a [Page N] marker. Pages without
// any text are dropped.
func Pages(pages []source.Page) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		lines := ReadingOrder(p.Runs)
		text := strings.TrimSpace(strings.Join(lines, "\n"))
		if text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[Page %d]\n%s", p.Number, text))
	}
	return Normalize(strings.Join(parts, "\n\n"))
}

// ReadingOrder rebuilds the text lines of a page from positioned runs: lines
// top to bottom, runs left to right. Runs sharing a position keep their
// original order, which matters for parsers that do not advance X per glyph.
func ReadingOrder(runs []source.TextRun) []string {
	if len(runs) == 0 {
		return nil
	}
	sorted := make([]source.TextRun, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y > sorted[j].Y })

	var lines [][]source.TextRun
	var cur []source.TextRun
	for _, r := range sorted {
		if len(cur) > 0 && math.Abs(cur[0].Y-r.Y) > lineTolerance(cur[0]) {
			lines = append(lines, cur)
			cur = nil
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		lines = append(lines, cur)
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })
		var b strings.Builder
		for i, r := range line {
			if i > 0 && needsSpace(line[i-1], r) {
				b.WriteByte(' ')
			}
			b.WriteString(r.Text)
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lineTolerance(r source.TextRun) float64 {
	return math.Max(r.FontSize/2, 2)
}

func needsSpace(prev, next source.TextRun) bool {
	if strings.HasSuffix(prev.Text, " ") || strings.HasPrefix(next.Text, " ") {
		return false
	}
	gap := next.X - (prev.X + prev.Width)
	return gap > math.Max(prev.FontSize*0.2, 1)
}

// Transcript renders transcript segments one per line with an [M:SS] marker.
func Transcript(segs []source.Segment) string {
	var b strings.Builder
	for _, s := range segs {
		text := strings.Join(strings.Fields(s.Text), " ")
		if text == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(Timestamp(s.Offset))
		b.WriteString("] ")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return Normalize(b.String())
}

// Timestamp formats an offset as M:SS, or H:MM:SS from one hour on.
func Timestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
