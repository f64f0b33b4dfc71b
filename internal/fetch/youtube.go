package fetch

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hyperifyio/notelo/internal/source"
)

// DefaultYouTubeBase hosts both the timedtext and oEmbed endpoints.
const DefaultYouTubeBase = "https://www.youtube.com"

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var youtubeHosts = map[string]bool{
	"youtube.com":              true,
	"www.youtube.com":          true,
	"m.youtube.com":            true,
	"music.youtube.com":        true,
	"youtube-nocookie.com":     true,
	"www.youtube-nocookie.com": true,
}

// VideoID extracts the 11 character video id from a YouTube link or accepts
// a bare id.
func VideoID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if videoIDPattern.MatchString(s) {
		return s, nil
	}
	raw := s
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", source.InvalidSource(s, "not a YouTube link", err)
	}
	host := strings.ToLower(u.Hostname())
	var id string
	switch {
	case host == "youtu.be" || host == "www.youtu.be":
		id = firstSegment(u.Path)
	case youtubeHosts[host]:
		if u.Path == "/watch" {
			id = u.Query().Get("v")
			break
		}
		for _, prefix := range []string{"/embed/", "/v/", "/shorts/", "/live/"} {
			if strings.HasPrefix(u.Path, prefix) {
				id = firstSegment(strings.TrimPrefix(u.Path, prefix))
				break
			}
		}
	}
	if !videoIDPattern.MatchString(id) {
		return "", source.InvalidSource(s, "unrecognized YouTube link", nil)
	}
	return id, nil
}

// WatchURL is the canonical link for a video id.
func WatchURL(id string) string {
	return DefaultYouTubeBase + "/watch?v=" + id
}

func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}

// Transcripts retrieves timed caption segments for a video.
type Transcripts interface {
	Transcript(ctx context.Context, videoID string) ([]source.Segment, error)
}

// TimedText fetches captions from the timedtext XML endpoint.
type TimedText struct {
	Client  *Client
	BaseURL string
	// Lang selects the caption track. Empty means "en".
	Lang string
}

type timedTextDoc struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

// Transcript returns the caption segments in playback order. A missing or
// empty caption track is a ParseFailure.
func (t *TimedText) Transcript(ctx context.Context, videoID string) ([]source.Segment, error) {
	base := strings.TrimRight(t.BaseURL, "/")
	if base == "" {
		base = DefaultYouTubeBase
	}
	lang := t.Lang
	if lang == "" {
		lang = "en"
	}
	q := url.Values{"v": {videoID}, "lang": {lang}}
	endpoint := base + "/api/timedtext?" + q.Encode()
	loc := WatchURL(videoID)

	body, _, err := t.Client.WithAllowedTypes("text/xml", "application/xml").Get(ctx, endpoint)
	if err != nil {
		return nil, source.FetchFailure(loc, "fetch transcript", err)
	}
	if strings.TrimSpace(string(body)) == "" {
		return nil, source.ParseFailure(loc, "transcript unavailable or disabled", nil)
	}
	segs, err := ParseTimedText(body)
	if err != nil {
		return nil, source.ParseFailure(loc, "decode transcript", err)
	}
	if len(segs) == 0 {
		return nil, source.ParseFailure(loc, "transcript unavailable or disabled", nil)
	}
	return segs, nil
}

// ParseTimedText decodes a <transcript><text start=".." dur="..">
// document. Entities are unescaped twice because captions arrive HTML escaped
// inside XML. Empty lines are dropped.
func ParseTimedText(data []byte) ([]source.Segment, error) {
	var doc timedTextDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	segs := make([]source.Segment, 0, len(doc.Texts))
	for _, tx := range doc.Texts {
		text := strings.Join(strings.Fields(html.UnescapeString(tx.Body)), " ")
		if text == "" {
			continue
		}
		start, err := strconv.ParseFloat(strings.TrimSpace(tx.Start), 64)
		if err != nil || start < 0 {
			start = 0
		}
		segs = append(segs, source.Segment{
			Text:   text,
			Offset: time.Duration(start * float64(time.Second)),
		})
	}
	return segs, nil
}

// OEmbed looks up video title and channel through the oEmbed endpoint.
type OEmbed struct {
	Client  *Client
	BaseURL string
}

type oembedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// Lookup returns title and author for videoURL.
func (o *OEmbed) Lookup(ctx context.Context, videoURL string) (source.Metadata, error) {
	base := strings.TrimRight(o.BaseURL, "/")
	if base == "" {
		base = DefaultYouTubeBase
	}
	q := url.Values{"url": {videoURL}, "format": {"json"}}
	body, _, err := o.Client.WithAllowedTypes("application/json", "text/json", "text/javascript").Get(ctx, base+"/oembed?"+q.Encode())
	if err != nil {
		return source.Metadata{}, fmt.Errorf("oembed: %w", err)
	}
	var r oembedResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return source.Metadata{}, fmt.Errorf("oembed decode: %w", err)
	}
	return source.Metadata{
		Title:     strings.TrimSpace(r.Title),
		Author:    strings.TrimSpace(r.AuthorName),
		SourceURL: videoURL,
	}, nil
}
