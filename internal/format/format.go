// Package format turns selected content into normalized plain text with
// lightweight structure markers: "# " headings, "• " list items, "> " quotes,
// fenced code, [Page N] and [M:SS] markers.
package format

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

var inlineSpace = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ")

// Nodes renders the given content nodes, in order, as normalized text.
func Nodes(nodes []*html.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		if n == nil {
			continue
		}
		render(&b, n)
		b.WriteString("\n\n")
	}
	return Normalize(b.String())
}

// Plain normalizes user pasted text.
func Plain(text string) string {
	return Normalize(text)
}

// Normalize applies the final whitespace rules: NFC, whitespace runs collapsed
// to one space inside a line (fenced code is left alone), at most one blank
// line between blocks, and the result trimmed. Normalize(Normalize(s)) ==
// Normalize(s).
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")

	lines := strings.Split(s, "\n")
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			lines[i] = trimmed
			continue
		}
		if inFence {
			lines[i] = strings.TrimRight(line, " \t")
			continue
		}
		lines[i] = collapseSpaces(trimmed)
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func collapseSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\f' || r == '\v' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}

func render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(inlineSpace.Replace(n.Data))
		return
	case html.DocumentNode:
		renderChildren(b, n)
		return
	case html.ElementNode:
	default:
		return
	}

	switch tag := strings.ToLower(n.Data); tag {
	case "head", "script", "style", "noscript", "template", "svg", "img", "picture",
		"iframe", "video", "audio", "canvas", "button", "input", "select", "textarea":
		return
	case "br":
		b.WriteString("\n")
	case "hr":
		b.WriteString("\n\n")
	case "h1", "h2", "h3", "h4", "h5", "h6":
		if text := inline(n); text != "" {
			block(b, "# "+text)
		}
	case "li":
		inner := strings.Split(Normalize(childrenText(n)), "\n")
		lines := make([]string, 0, len(inner))
		for _, l := range inner {
			if l != "" {
				lines = append(lines, l)
			}
		}
		if len(lines) == 0 {
			return
		}
		lines[0] = "• " + lines[0]
		newline(b)
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	case "blockquote":
		inner := Normalize(childrenText(n))
		if inner == "" {
			return
		}
		lines := strings.Split(inner, "\n")
		for i, l := range lines {
			lines[i] = strings.TrimRight("> "+l, " ")
		}
		block(b, strings.Join(lines, "\n"))
	case "pre":
		fence(b, rawText(n))
	case "code":
		raw := rawText(n)
		if strings.Contains(strings.Trim(raw, "\n"), "\n") {
			fence(b, raw)
			return
		}
		renderChildren(b, n)
	case "td", "th":
		if hasPrevCell(n) {
			b.WriteString(" | ")
		}
		renderChildren(b, n)
	case "tr":
		b.WriteString("\n")
		renderChildren(b, n)
		b.WriteString("\n")
	case "p", "div", "section", "article", "main", "aside", "header", "footer", "nav",
		"figure", "figcaption", "table", "thead", "tbody", "tfoot", "ul", "ol", "dl",
		"dt", "dd", "address", "details", "summary", "form", "fieldset", "caption":
		b.WriteString("\n\n")
		renderChildren(b, n)
		b.WriteString("\n\n")
	default:
		renderChildren(b, n)
	}
}

func renderChildren(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(b, c)
	}
}

func childrenText(n *html.Node) string {
	var b strings.Builder
	renderChildren(&b, n)
	return b.String()
}

// inline renders n onto a single line.
func inline(n *html.Node) string {
	return strings.Join(strings.Fields(childrenText(n)), " ")
}

// newline starts a new line unless b already ends with one, so consecutive
// list items stay on adjacent lines.
func newline(b *strings.Builder) {
	if s := b.String(); s != "" && !strings.HasSuffix(s, "\n") {
		b.WriteString("\n")
	}
}

func block(b *strings.Builder, s string) {
	b.WriteString("\n\n")
	b.WriteString(s)
	b.WriteString("\n\n")
}

func fence(b *strings.Builder, code string) {
	code = strings.Trim(code, "\n")
	if strings.TrimSpace(code) == "" {
		return
	}
	block(b, "```\n"+code+"\n```")
}

func rawText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
		}
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, "br") {
			b.WriteString("\n")
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func hasPrevCell(n *html.Node) bool {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && (s.Data == "td" || s.Data == "th") {
			return true
		}
	}
	return false
}
