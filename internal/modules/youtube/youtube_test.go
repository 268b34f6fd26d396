package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"watch with params", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=123", "dQw4w9WgXcQ"},
		{"watch v not first", "https://youtube.com/watch?feature=share&v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"no scheme", "youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"mobile", "https://m.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"short link", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"short link with time", "https://youtu.be/dQw4w9WgXcQ?t=42", "dQw4w9WgXcQ"},
		{"embed", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"v path", "http://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"shorts", "https://www.youtube.com/shorts/abc_DEF-123", "abc_DEF-123"},
		{"live", "https://www.youtube.com/live/abc_DEF-123/", "abc_DEF-123"},
		{"query beats path", "https://www.youtube.com/embed/aaaaaaaaaaa?v=bbbbbbbbbbb", "bbbbbbbbbbb"},
		{"fragment ignored", "https://youtube.com/embed/AAAAAAAAAAA#&v=BBBBBBBBBBB", "AAAAAAAAAAA"},
		{"watch with fragment", "https://www.youtube.com/watch?v=dQw4w9WgXcQ#t=30&v=BBBBBBBBBBB", "dQw4w9WgXcQ"},
		{"short link with fragment", "https://youtu.be/dQw4w9WgXcQ#v=BBBBBBBBBBB", "dQw4w9WgXcQ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, IsValidURL(tt.input))
			id, ok := ExtractVideoID(tt.input)
			require.True(t, ok)
			assert.Equal(t, tt.want, id)
			assert.Len(t, id, 11)
		})
	}
}

func TestRejectsUnacceptedShapes(t *testing.T) {
	for _, input := range []string{
		"",
		"dQw4w9WgXcQ",
		"https://vimeo.com/123456789",
		"https://www.youtube.com/watch?v=short",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQX",
		"https://www.youtube.com/channel/UCabcdefghijk",
		"https://youtu.be/",
		"https://notyoutube.com/watch?v=dQw4w9WgXcQ",
		"ftp://youtube.com/watch?v=dQw4w9WgXcQ",
	} {
		t.Run(input, func(t *testing.T) {
			assert.False(t, IsValidURL(input))
			id, ok := ExtractVideoID(input)
			assert.False(t, ok)
			assert.Empty(t, id)
		})
	}
}

func TestThumbnailURL(t *testing.T) {
	assert.Equal(t, "http://img.youtube.com/vi/dQw4w9WgXcQ/0.jpg", ThumbnailURL("dQw4w9WgXcQ"))
}

func TestJoinFragments(t *testing.T) {
	assert.Equal(t, "Hello world", JoinFragments([]string{"Hello", "world"}))
	assert.Equal(t, "it's a \"test\" here", JoinFragments([]string{" it&amp;#39;s a ", "", "&quot;test&quot;\nhere"}))
	assert.Empty(t, JoinFragments(nil))
}

func TestPickBestTrack(t *testing.T) {
	tracks := []captionTrack{
		{BaseURL: "fr-asr", LanguageCode: "fr", Kind: "asr"},
		{BaseURL: "en-asr", LanguageCode: "en", Kind: "asr"},
		{BaseURL: "fr", LanguageCode: "fr"},
		{BaseURL: "de", LanguageCode: "de-DE"},
	}
	tests := []struct {
		name  string
		langs []string
		want  string
		ok    bool
	}{
		{"first language wins over manual in later one", []string{"en", "fr"}, "en-asr", true},
		{"manual before generated", []string{"fr"}, "fr", true},
		{"regional variant", []string{"de"}, "de", true},
		{"not found", []string{"it", "ar"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickBestTrack(tracks, tt.langs)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.BaseURL)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	in := []byte(`{"a":"}\\","b":{"c":"\"{"}};var x = 1;`)
	assert.Equal(t, `{"a":"}\\","b":{"c":"\"{"}}`, string(extractJSON(in)))
	assert.Nil(t, extractJSON([]byte(`{"open":`)))
	assert.Nil(t, extractJSON([]byte(`[1]`)))
}

// captionsServer serves a watch page whose tracks point back at itself.
func captionsServer(t *testing.T, captionsJSON string, timedText string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/watch":
			assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("v"))
			body := strings.ReplaceAll(captionsJSON, "BASE", srv.URL)
			fmt.Fprintf(w, `<html><script>var ytInitialPlayerResponse = {"playabilityStatus":{"status":"OK"}%s};var meta = {};</script></html>`, body)
		case "/timedtext":
			w.Header().Set("Content-Type", "text/xml")
			fmt.Fprint(w, timedText)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchCaptions(t *testing.T) {
	srv := captionsServer(t,
		`,"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[{"baseUrl":"BASE/timedtext?lang=en","languageCode":"en","kind":"asr"}]}}`,
		`<?xml version="1.0" encoding="utf-8" ?><transcript><text start="0" dur="1">Hello</text><text start="1" dur="1">world</text></transcript>`,
	)
	client := NewCaptionsClient(srv.Client(), srv.URL+"/watch")

	got, err := client.FetchCaptions(context.Background(), "dQw4w9WgXcQ", []string{"en", "fr"})
	require.NoError(t, err)
	assert.Equal(t, Captions{Text: "Hello world", Language: "en", Generated: true}, got)
}

func TestFetchCaptionsDisabled(t *testing.T) {
	srv := captionsServer(t, ``, ``)
	client := NewCaptionsClient(srv.Client(), srv.URL+"/watch")

	_, err := client.FetchCaptions(context.Background(), "dQw4w9WgXcQ", []string{"en"})
	assert.ErrorIs(t, err, ErrTranscriptsDisabled)
}

func TestFetchCaptionsNotFound(t *testing.T) {
	srv := captionsServer(t,
		`,"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[{"baseUrl":"BASE/timedtext","languageCode":"ja"}]}}`,
		``,
	)
	client := NewCaptionsClient(srv.Client(), srv.URL+"/watch")

	_, err := client.FetchCaptions(context.Background(), "dQw4w9WgXcQ", []string{"en", "de"})
	assert.ErrorIs(t, err, ErrNoTranscriptFound)
}

func TestFetchCaptionsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	client := NewCaptionsClient(srv.Client(), srv.URL+"/watch")

	_, err := client.FetchCaptions(context.Background(), "dQw4w9WgXcQ", []string{"en"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTranscriptsDisabled))
	assert.False(t, errors.Is(err, ErrNoTranscriptFound))
	assert.Contains(t, err.Error(), "HTTP 429")
}

func TestPurgeStale(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.mp3")
	fresh := filepath.Join(dir, "fresh.mp3")
	require.NoError(t, os.WriteFile(old, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("b"), 0o644))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	d := NewAudioDownloader("", dir, 0)
	n, err := d.PurgeStale(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)

	n, err = NewAudioDownloader("", filepath.Join(dir, "missing"), 0).PurgeStale(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPurgeStaleSkipsHeldFiles(t *testing.T) {
	dir := t.TempDir()
	d := NewAudioDownloader("", dir, 0)
	base := filepath.Join(dir, "dQw4w9WgXcQ-run")
	d.hold(base)

	past := time.Now().Add(-3 * time.Hour)
	partial := base + ".f251.webm.part"
	final := base + ".mp3"
	other := filepath.Join(dir, "dQw4w9WgXcQ-runner.mp3")
	for _, p := range []string{partial, final, other} {
		require.NoError(t, os.WriteFile(p, []byte("a"), 0o644))
		require.NoError(t, os.Chtimes(p, past, past))
	}

	n, err := d.PurgeStale(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.FileExists(t, partial)
	assert.FileExists(t, final)
	assert.NoFileExists(t, other)

	require.NoError(t, d.Release(partial))
	assert.NoFileExists(t, final)
	assert.NoFileExists(t, partial)
	assert.False(t, d.isHeld(final))
	require.NoError(t, d.Release(final))
}
