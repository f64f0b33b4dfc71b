package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/notelo/internal/source"
)

func TestVideoID(t *testing.T) {
	const id = "dQw4w9WgXcQ"
	valid := []string{
		id,
		"https://www.youtube.com/watch?v=" + id,
		"https://youtube.com/watch?v=" + id + "&t=42s",
		"https://m.youtube.com/watch?v=" + id,
		"https://music.youtube.com/watch?v=" + id + "&list=RD",
		"https://youtu.be/" + id,
		"https://youtu.be/" + id + "?si=abc",
		"youtu.be/" + id,
		"https://www.youtube.com/embed/" + id,
		"https://www.youtube-nocookie.com/embed/" + id,
		"https://www.youtube.com/v/" + id,
		"https://www.youtube.com/shorts/" + id,
		"  www.youtube.com/watch?v=" + id + "  ",
	}
	for _, in := range valid {
		got, err := VideoID(in)
		if assert.NoError(t, err, in) {
			assert.Equal(t, id, got, in)
		}
	}

	invalid := []string{
		"",
		"not a video",
		"https://vimeo.com/123456",
		"https://www.youtube.com/watch?v=short",
		"https://www.youtube.com/channel/UC123",
		"https://evil.example/watch?v=" + id,
	}
	for _, in := range invalid {
		_, err := VideoID(in)
		assert.ErrorIs(t, err, source.ErrInvalidSource, in)
	}
}

const sampleTimedText = `<?xml version="1.0" encoding="utf-8" ?>
<transcript>
  <text start="0" dur="1.2">Hello</text>
  <text start="2.5" dur="1"> </text>
  <text start="65.4" dur="2">World &amp;amp; friends</text>
</transcript>`

func TestTimedText_Transcript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/timedtext", r.URL.Path)
		assert.Equal(t, "de", r.URL.Query().Get("lang"))
		switch r.URL.Query().Get("v") {
		case "dQw4w9WgXcQ":
			w.Header().Set("Content-Type", "text/xml; charset=UTF-8")
			_, _ = w.Write([]byte(sampleTimedText))
		default:
			w.Header().Set("Content-Type", "text/xml; charset=UTF-8")
		}
	}))
	defer srv.Close()

	tt := &TimedText{Client: &Client{MaxAttempts: 1}, BaseURL: srv.URL, Lang: "de"}
	segs, err := tt.Transcript(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, []source.Segment{
		{Text: "Hello", Offset: 0},
		{Text: "World & friends", Offset: 65400 * time.Millisecond},
	}, segs)

	_, err = tt.Transcript(context.Background(), "xxxxxxxxxxx")
	assert.ErrorIs(t, err, source.ErrParseFailure)
}

func TestTimedText_FetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tt := &TimedText{Client: &Client{MaxAttempts: 1}, BaseURL: srv.URL}
	_, err := tt.Transcript(context.Background(), "dQw4w9WgXcQ")
	assert.ErrorIs(t, err, source.ErrFetchFailure)
}

func TestOEmbed_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oembed", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, WatchURL("dQw4w9WgXcQ"), r.URL.Query().Get("url"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":" Never Gonna Give You Up ","author_name":"Rick Astley","type":"video"}`))
	}))
	defer srv.Close()

	o := &OEmbed{Client: &Client{MaxAttempts: 1}, BaseURL: srv.URL}
	meta, err := o.Lookup(context.Background(), WatchURL("dQw4w9WgXcQ"))
	require.NoError(t, err)
	assert.Equal(t, "Never Gonna Give You Up", meta.Title)
	assert.Equal(t, "Rick Astley", meta.Author)
	assert.Equal(t, WatchURL("dQw4w9WgXcQ"), meta.SourceURL)
}
