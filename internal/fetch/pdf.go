package fetch

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hyperifyio/notelo/internal/source"
)

// PDFTypes is the allowlist used for PDF downloads.
var PDFTypes = []string{"application/pdf", "application/octet-stream"}

var pdfMagic = []byte("%PDF-")

// FetchPDF downloads a PDF file.
func FetchPDF(ctx context.Context, c *Client, target string) ([]byte, error) {
	data, _, err := c.WithAllowedTypes(PDFTypes...).Get(ctx, target)
	if err != nil {
		return nil, source.FetchFailure(target, "download PDF", err)
	}
	return data, nil
}

// ParsePDF reads every page of a PDF into positioned text runs and returns
// the document info dictionary as metadata. Any reader failure, including a
// panic inside the parser, is a ParseFailure.
func ParsePDF(data []byte) (pages []source.Page, meta source.Metadata, err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return nil, meta, source.ParseFailure("", "not a PDF file", nil)
	}
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = source.ParseFailure("", "malformed PDF", fmt.Errorf("%v", r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, meta, source.ParseFailure("", "open PDF", err)
	}
	meta = pdfInfo(r.Trailer().Key("Info"))

	n := r.NumPage()
	pages = make([]source.Page, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		page := source.Page{Number: i}
		if !p.V.IsNull() {
			for _, t := range p.Content().Text {
				if t.S == "" {
					continue
				}
				page.Runs = append(page.Runs, source.TextRun{
					X:        t.X,
					Y:        t.Y,
					Width:    t.W,
					FontSize: t.FontSize,
					Text:     t.S,
				})
			}
		}
		pages = append(pages, page)
	}
	return pages, meta, nil
}

func pdfInfo(info pdf.Value) source.Metadata {
	if info.IsNull() {
		return source.Metadata{}
	}
	return source.Metadata{
		Title:       strings.TrimSpace(info.Key("Title").Text()),
		Author:      strings.TrimSpace(info.Key("Author").Text()),
		Description: strings.TrimSpace(info.Key("Subject").Text()),
		Date:        PDFDate(info.Key("CreationDate").Text()),
	}
}

// PDFDate renders a PDF date string (D:YYYYMMDDHHmmSS...) as YYYY-MM-DD.
// Missing month or day default to 01; anything unparseable yields "".
func PDFDate(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "D:")
	if len(s) < 4 || !digits(s[:4]) {
		return ""
	}
	year, month, day := s[:4], "01", "01"
	if len(s) >= 6 && digits(s[4:6]) {
		month = s[4:6]
		if len(s) >= 8 && digits(s[6:8]) {
			day = s[6:8]
		}
	}
	return year + "-" + month + "-" + day
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// PDFDownloader adapts FetchPDF to an interface.
type PDFDownloader struct {
	Client *Client
}

// PDF downloads target.
func (d *PDFDownloader) PDF(ctx context.Context, target string) ([]byte, error) {
	return FetchPDF(ctx, d.Client, target)
}
