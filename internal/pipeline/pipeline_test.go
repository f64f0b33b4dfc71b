package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/notelo/internal/extract"
	"github.com/hyperifyio/notelo/internal/source"
)

type fakePages struct {
	markup string
	err    error
}

func (f fakePages) Page(context.Context, string) (string, error) { return f.markup, f.err }

type fakePDFs struct{ data []byte }

func (f fakePDFs) PDF(context.Context, string) ([]byte, error) { return f.data, nil }

type fakeTranscripts struct {
	segs []source.Segment
	err  error
	ids  chan string
}

func (f fakeTranscripts) Transcript(_ context.Context, id string) ([]source.Segment, error) {
	if f.ids != nil {
		f.ids <- id
	}
	return f.segs, f.err
}

type fakeMeta struct {
	meta source.Metadata
	err  error
}

func (f fakeMeta) Lookup(context.Context, string) (source.Metadata, error) { return f.meta, f.err }

func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func TestExtract_TextBelowFloor(t *testing.T) {
	p := New()
	text := strings.Repeat("x", 50)
	_, err := p.Extract(context.Background(), source.Descriptor{Kind: source.KindText, Text: text})
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrTooShort)
	assert.Contains(t, err.Error(), "extracted 50 characters")
}

func TestExtract_MinimumLengthHolds(t *testing.T) {
	p := New()
	for _, n := range []int{0, 1, 50, 99, 100, 101, 150, 1000} {
		text := strings.Repeat("a", n)
		doc, err := p.Extract(context.Background(), source.Descriptor{Kind: source.KindText, Text: text})
		if err != nil {
			kind, ok := source.KindOf(err)
			require.True(t, ok, "n=%d: %v", n, err)
			assert.Contains(t, []source.ErrorKind{source.TooShortKind, source.InvalidSourceKind}, kind)
			assert.Less(t, n, 100)
			continue
		}
		assert.GreaterOrEqual(t, utf8.RuneCountInString(doc.Text), 100, "n=%d", n)
	}
}

func TestExtract_TextNormalized(t *testing.T) {
	in := "  Title line  \r\n\r\n\r\n" + words("w", 30) + "   \n"
	doc, err := New().Extract(context.Background(), source.Descriptor{Kind: source.KindText, Text: in})
	require.NoError(t, err)
	assert.Equal(t, "Title line\n\n"+words("w", 30), doc.Text)
	assert.Equal(t, StrategyPlain, doc.Strategy)
	assert.True(t, strings.HasPrefix(doc.Metadata.SourceURL, "text:"))
}

func TestExtract_InvalidDescriptor(t *testing.T) {
	_, err := New().Extract(context.Background(), source.Descriptor{Kind: source.KindURL})
	assert.ErrorIs(t, err, source.ErrInvalidSource)
}

func TestExtract_ArticlePage(t *testing.T) {
	p1, p2, p3 := words("alpha", 50), words("beta", 50), words("gamma", 50)
	markup := `<!doctype html><html><head><title>Story</title>
	<meta name="author" content="Reporter"></head><body>
	<header>Masthead header text</header>
	<nav><a href="/">Home</a> <a href="/about">About us</a></nav>
	<article><p>` + p1 + `</p><p>` + p2 + `</p><p>` + p3 + `</p></article>
	<footer>Copyright footer text</footer>
	</body></html>`

	p := New(WithPages(fakePages{markup: markup}))
	doc, err := p.Extract(context.Background(), source.Descriptor{Kind: source.KindURL, URL: "https://news.example/story"})
	require.NoError(t, err)
	assert.Equal(t, p1+"\n\n"+p2+"\n\n"+p3, doc.Text)
	assert.Equal(t, extract.StrategySelector, doc.Strategy)
	for _, gone := range []string{"Masthead", "Home", "About us", "Copyright"} {
		assert.NotContains(t, doc.Text, gone)
	}
	assert.Equal(t, "Story", doc.Metadata.Title)
	assert.Equal(t, "Reporter", doc.Metadata.Author)
	assert.Equal(t, "https://news.example/story", doc.Metadata.SourceURL)
}

func TestExtract_FormWrappedPage(t *testing.T) {
	markup := `<html><head><title>Intranet</title></head><body>
	<form id="aspnetForm" method="post" action="./page.aspx">
	<div class="site-sidebar">Quick links and sidebar widgets</div>
	<div class="main"><h1>Quarterly report</h1>
	<p>` + words("alpha", 60) + `</p>
	<p>` + words("beta", 60) + `</p></div>
	<div id="comments-list">First comment text</div>
	</form></body></html>`

	doc, err := New(WithPages(fakePages{markup: markup})).Extract(context.Background(),
		source.Descriptor{Kind: source.KindURL, URL: "https://intranet.example/page.aspx"})
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "alpha59")
	assert.NotContains(t, doc.Text, "sidebar widgets")
	assert.NotContains(t, doc.Text, "First comment")
}

func TestExtract_URLFetchFailure(t *testing.T) {
	p := New(WithPages(fakePages{err: errors.New("connection refused")}))
	_, err := p.Extract(context.Background(), source.Descriptor{Kind: source.KindURL, URL: "https://down.example"})
	assert.ErrorIs(t, err, source.ErrFetchFailure)

	var ee *source.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "https://down.example", ee.Source)
}

// recordingStrategy reports every invocation and returns body content when hit.
type recordingStrategy struct {
	name  string
	hit   bool
	calls *[]string
	mu    *sync.Mutex
}

func (r recordingStrategy) Name() string { return r.name }

func (r recordingStrategy) Select(doc *goquery.Document) (extract.Candidate, bool) {
	r.mu.Lock()
	*r.calls = append(*r.calls, r.name)
	r.mu.Unlock()
	if !r.hit {
		return extract.Candidate{}, false
	}
	return extract.Candidate{Nodes: doc.Find("body").Nodes}, true
}

func TestExtractHTML_TiersInOrder(t *testing.T) {
	var calls []string
	var mu sync.Mutex
	mk := func(name string, hit bool) extract.Strategy {
		return recordingStrategy{name: name, hit: hit, calls: &calls, mu: &mu}
	}
	p := New(WithStrategies(mk("selector", false), mk("scoring", false), mk("paragraphs", false), mk("body", true)))

	markup := "<html><body><div>" + words("loose", 60) + "</div></body></html>"
	doc, err := p.ExtractHTML(context.Background(), markup, "https://x.example", 100)
	require.NoError(t, err)
	assert.Equal(t, "body", doc.Strategy)
	assert.Equal(t, []string{"selector", "scoring", "paragraphs", "body"}, calls)
}

func TestExtractHTML_ShortCandidateFallsThrough(t *testing.T) {
	// The article qualifies for the selector tier but formats below the
	// 200 character web floor, so the body tier supplies the text.
	markup := `<html><body><article><p>` + words("a", 40) + `</p></article>
	<div><p>` + words("more", 30) + `</p></div></body></html>`
	doc, err := New().ExtractHTML(context.Background(), markup, "https://x.example", 200)
	require.NoError(t, err)
	assert.NotEqual(t, extract.StrategySelector, doc.Strategy)
	assert.Contains(t, doc.Text, "more29")
	assert.GreaterOrEqual(t, utf8.RuneCountInString(doc.Text), 200)
}

func TestExtractHTML_AllTiersExhausted(t *testing.T) {
	_, err := New().ExtractHTML(context.Background(), `<html><body><p>Sign in</p></body></html>`, "https://x.example", 200)
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrTooShort)
	assert.Contains(t, err.Error(), "extracted 7 characters, need at least 200")
}

func TestExtractHTML_FloorNeverBelowMinimum(t *testing.T) {
	_, err := New().ExtractHTML(context.Background(), `<html><body><p>`+strings.Repeat("z", 60)+`</p></body></html>`, "u", 10)
	assert.ErrorIs(t, err, source.ErrTooShort)
}

func lecturePDF(t *testing.T, title string) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	if title != "" {
		doc.SetTitle(title, false)
	}
	doc.SetFont("Helvetica", "", 12)
	doc.AddPage()
	doc.Text(20, 30, "Introduction to thermodynamics")
	doc.Text(20, 45, "Energy is conserved in a closed system")
	doc.AddPage()
	doc.Text(20, 30, "Entropy of an isolated system never decreases")
	doc.Text(20, 45, "Heat flows from hot to cold bodies")
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func TestExtract_PDFPagesInReadingOrder(t *testing.T) {
	data := lecturePDF(t, "Lecture 4")
	for name, desc := range map[string]source.Descriptor{
		"upload": {Kind: source.KindPDF, Data: data},
		"remote": {Kind: source.KindPDF, URL: "https://uni.example/lecture4.pdf"},
	} {
		t.Run(name, func(t *testing.T) {
			p := New(WithPDFs(fakePDFs{data: data}))
			doc, err := p.Extract(context.Background(), desc)
			require.NoError(t, err)
			assert.Equal(t, StrategyPDF, doc.Strategy)
			assert.Equal(t, "Lecture 4", doc.Metadata.Title)
			assert.Empty(t, doc.Warnings)

			text := doc.Text
			i1 := strings.Index(text, "[Page 1]")
			i2 := strings.Index(text, "[Page 2]")
			require.True(t, i1 >= 0 && i2 > i1, text)
			intro := strings.Index(text, "Introduction to thermodynamics")
			energy := strings.Index(text, "Energy is conserved")
			entropy := strings.Index(text, "Entropy of an isolated system")
			assert.True(t, i1 < intro && intro < energy && energy < i2 && i2 < entropy, text)
		})
	}
}

func TestExtract_PDFWithoutTitleWarns(t *testing.T) {
	doc, err := New().Extract(context.Background(), source.Descriptor{Kind: source.KindPDF, Data: lecturePDF(t, "")})
	require.NoError(t, err)
	assert.Empty(t, doc.Metadata.Title)
	assert.Equal(t, []string{"pdf metadata: no document title"}, doc.Warnings)
}

func TestExtract_PDFUnreadable(t *testing.T) {
	_, err := New().Extract(context.Background(), source.Descriptor{Kind: source.KindPDF, Data: []byte("<html>")})
	assert.ErrorIs(t, err, source.ErrParseFailure)

	var ee *source.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.True(t, strings.HasPrefix(ee.Source, "pdf:"))
}

func transcriptSegs() []source.Segment {
	segs := []source.Segment{
		{Text: "Hello", Offset: 0},
		{Text: "World", Offset: 65000 * time.Millisecond},
	}
	for i := 0; i < 10; i++ {
		segs = append(segs, source.Segment{Text: "more narration here", Offset: time.Duration(70+i) * time.Second})
	}
	return segs
}

func TestExtract_YouTube(t *testing.T) {
	ids := make(chan string, 1)
	p := New(
		WithTranscripts(fakeTranscripts{segs: transcriptSegs(), ids: ids}),
		WithMetadata(fakeMeta{meta: source.Metadata{Title: "Video", Author: "Channel"}}),
	)
	doc, err := p.Extract(context.Background(), source.Descriptor{Kind: source.KindYouTube, URL: "https://youtu.be/dQw4w9WgXcQ"})
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", <-ids)
	assert.Contains(t, doc.Text, "[0:00] Hello")
	assert.Contains(t, doc.Text, "[1:05] World")
	assert.Equal(t, StrategyTranscript, doc.Strategy)
	assert.Equal(t, "Video", doc.Metadata.Title)
	assert.Equal(t, "Channel", doc.Metadata.Author)
	assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", doc.Metadata.SourceURL)
	assert.Empty(t, doc.Warnings)
}

func TestExtract_YouTubeMetadataFailureIsWarning(t *testing.T) {
	p := New(
		WithTranscripts(fakeTranscripts{segs: transcriptSegs()}),
		WithMetadata(fakeMeta{err: errors.New("oembed: unexpected status: 401")}),
	)
	doc, err := p.Extract(context.Background(), source.Descriptor{Kind: source.KindYouTube, URL: "dQw4w9WgXcQ"})
	require.NoError(t, err)
	require.Len(t, doc.Warnings, 1)
	assert.Contains(t, doc.Warnings[0], "401")
	assert.Empty(t, doc.Metadata.Title)
}

func TestExtract_YouTubeFailures(t *testing.T) {
	p := New(WithTranscripts(fakeTranscripts{segs: transcriptSegs()}))
	_, err := p.Extract(context.Background(), source.Descriptor{Kind: source.KindYouTube, URL: "https://vimeo.com/1234"})
	assert.ErrorIs(t, err, source.ErrInvalidSource)

	p = New(WithTranscripts(fakeTranscripts{err: source.ParseFailure("", "transcript unavailable or disabled", nil)}))
	_, err = p.Extract(context.Background(), source.Descriptor{Kind: source.KindYouTube, URL: "https://youtu.be/dQw4w9WgXcQ"})
	assert.ErrorIs(t, err, source.ErrParseFailure)

	p = New(WithTranscripts(fakeTranscripts{segs: []source.Segment{{Text: "Hi"}}}))
	_, err = p.Extract(context.Background(), source.Descriptor{Kind: source.KindYouTube, URL: "https://youtu.be/dQw4w9WgXcQ"})
	assert.ErrorIs(t, err, source.ErrTooShort)
}

func TestWithFloor(t *testing.T) {
	p := New(WithFloor(source.KindText, 500), WithFloor(source.KindPDF, 5))
	assert.Equal(t, 500, p.Floor(source.KindText))
	assert.Equal(t, MinFloor, p.Floor(source.KindPDF))
	assert.Equal(t, 200, p.Floor(source.KindURL))
	assert.Equal(t, 100, DefaultFloors[source.KindText], "defaults must not be mutated")
}

func TestExtract_ConcurrentUse(t *testing.T) {
	markup := `<html><body><article><p>` + words("w", 80) + `</p></article></body></html>`
	p := New(WithPages(fakePages{markup: markup}))
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.Extract(context.Background(), source.Descriptor{Kind: source.KindURL, URL: fmt.Sprintf("https://x.example/%d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func BenchmarkExtractHTML(b *testing.B) {
	var sb strings.Builder
	sb.WriteString("<html><head><title>Bench</title></head><body><nav>n</nav><article>")
	for i := 0; i < 100; i++ {
		sb.WriteString("<h2>Section</h2><p>" + words("lorem", 40) + "</p>")
	}
	sb.WriteString("</article></body></html>")
	markup := sb.String()
	p := New(WithReadability(false))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.ExtractHTML(context.Background(), markup, "https://bench.example", 200); err != nil {
			b.Fatal(err)
		}
	}
}
