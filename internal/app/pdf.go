package app

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

var linkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

var boldRe = regexp.MustCompile(`\*\*([^*]+)\*\*`)

// WriteStudyPDF renders the study sheet for r to path.
func WriteStudyPDF(r *Result, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := renderPDF(f, r.Title(), RenderMarkdown(r)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// renderPDF lays out Markdown line by line: headings get a bold font,
// links stay clickable, everything else flows as paragraphs. It is not a
// full Markdown renderer.
func renderPDF(w io.Writer, title, markdown string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.SetCreator(VersionString(), false)
	pdf.SetFont("Helvetica", "", 11)
	pdf.AddPage()

	scanner := bufio.NewScanner(strings.NewReader(markdown))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	inFence := false
	for scanner.Scan() {
		line := scanner.Text()
		s := strings.TrimSpace(line)
		if strings.HasPrefix(s, "```") {
			inFence = !inFence
			if inFence {
				pdf.SetFont("Courier", "", 9)
			} else {
				pdf.SetFont("Helvetica", "", 11)
			}
			continue
		}
		if inFence {
			pdf.MultiCell(0, 4, tr(line), "", "L", false)
			continue
		}
		if s == "" {
			pdf.Ln(4)
			continue
		}
		if strings.HasPrefix(s, "#") {
			i := 0
			for i < len(s) && s[i] == '#' {
				i++
			}
			text := strings.TrimSpace(s[i:])
			if text == "" {
				continue
			}
			size := 16.0
			switch {
			case i == 2:
				size = 13
			case i >= 3:
				size = 11.5
			}
			pdf.SetFont("Helvetica", "B", size)
			pdf.MultiCell(0, 8, tr(text), "", "L", false)
			pdf.SetFont("Helvetica", "", 11)
			continue
		}
		s = boldRe.ReplaceAllString(s, "$1")
		parts := linkRe.FindAllStringSubmatchIndex(s, -1)
		if len(parts) == 0 {
			pdf.MultiCell(0, 5, tr(s), "", "L", false)
			continue
		}
		pos := 0
		for _, m := range parts {
			if m[0] > pos {
				pdf.Write(5, tr(s[pos:m[0]]))
			}
			pdf.WriteLinkString(5, tr(s[m[2]:m[3]]), s[m[4]:m[5]])
			pos = m[1]
		}
		if pos < len(s) {
			pdf.Write(5, tr(s[pos:]))
		}
		pdf.Ln(6)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return pdf.Output(w)
}
