// Package source defines the values that flow through the content pipeline:
// what the user submitted, what was fetched, and what comes out.
package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Kind tags the shape of a submitted source.
type Kind string

const (
	KindText    Kind = "text"
	KindURL     Kind = "url"
	KindPDF     Kind = "pdf"
	KindYouTube Kind = "youtube"
)

// ParseKind maps a user supplied string onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindText, KindURL, KindPDF, KindYouTube:
		return k, nil
	}
	return "", InvalidSource("", fmt.Sprintf("unknown source kind %q", s), nil)
}

// Descriptor is the pipeline input. Exactly one payload field is set and it
// must agree with Kind: Text for text, URL for url and youtube, Data or URL
// for pdf.
type Descriptor struct {
	Kind Kind
	Text string
	URL  string
	Data []byte
}

// Validate checks the payload/kind invariant.
func (d Descriptor) Validate() error {
	set := 0
	if d.Text != "" {
		set++
	}
	if strings.TrimSpace(d.URL) != "" {
		set++
	}
	if len(d.Data) > 0 {
		set++
	}
	loc := d.Locator()
	if set != 1 {
		return InvalidSource(loc, fmt.Sprintf("expected exactly one payload, got %d", set), nil)
	}
	switch d.Kind {
	case KindText:
		if strings.TrimSpace(d.Text) == "" {
			return InvalidSource(loc, "empty text payload", nil)
		}
	case KindURL, KindYouTube:
		if strings.TrimSpace(d.URL) == "" {
			return InvalidSource(loc, "missing URL payload", nil)
		}
	case KindPDF:
		if len(d.Data) == 0 && strings.TrimSpace(d.URL) == "" {
			return InvalidSource(loc, "missing PDF payload", nil)
		}
	default:
		return InvalidSource(loc, fmt.Sprintf("unknown source kind %q", d.Kind), nil)
	}
	return nil
}

// Locator returns the provenance string kept alongside every result. Inline
// payloads get a pseudo-locator built from a short content digest.
func (d Descriptor) Locator() string {
	if u := strings.TrimSpace(d.URL); u != "" {
		return u
	}
	var payload []byte
	switch {
	case len(d.Data) > 0:
		payload = d.Data
	default:
		payload = []byte(d.Text)
	}
	sum := sha256.Sum256(payload)
	kind := d.Kind
	if kind == "" {
		kind = KindText
	}
	return string(kind) + ":" + hex.EncodeToString(sum[:6])
}

// TextRun is one positioned piece of text on a PDF page. Coordinates are in
// PDF user space, so Y grows towards the top of the page.
type TextRun struct {
	X        float64
	Y        float64
	Width    float64
	FontSize float64
	Text     string
}

// Page is one PDF page in document order, 1-based.
type Page struct {
	Number int
	Runs   []TextRun
}

// Segment is one timed transcript line.
type Segment struct {
	Text   string
	Offset time.Duration
}

// RawDocument is fetched but unprocessed content. Only the field matching Kind
// is populated.
type RawDocument struct {
	Kind      Kind
	SourceURL string
	Markup    string
	Pages     []Page
	Segments  []Segment
	Metadata  Metadata
}

// Metadata holds document level descriptive fields. Everything except
// SourceURL is optional.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
	SourceURL   string `json:"source_url"`
}

// Merge fills empty fields of m from other and returns the result.
func (m Metadata) Merge(other Metadata) Metadata {
	if m.Title == "" {
		m.Title = other.Title
	}
	if m.Author == "" {
		m.Author = other.Author
	}
	if m.Date == "" {
		m.Date = other.Date
	}
	if m.Description == "" {
		m.Description = other.Description
	}
	if m.SourceURL == "" {
		m.SourceURL = other.SourceURL
	}
	return m
}

// Complete reports whether every optional field is already filled.
func (m Metadata) Complete() bool {
	return m.Title != "" && m.Author != "" && m.Date != "" && m.Description != ""
}

// NormalizedDocument is the pipeline output.
type NormalizedDocument struct {
	Metadata Metadata `json:"metadata"`
	Text     string   `json:"text"`
	// Strategy names the extraction tier that produced Text.
	Strategy string `json:"strategy"`
	// Warnings carries non-fatal diagnostics such as failed metadata lookups.
	Warnings []string `json:"warnings,omitempty"`
}

// Chunk is a bounded slice of normalized text. Order is 0-based.
type Chunk struct {
	Text  string `json:"text"`
	Order int    `json:"order"`
}
