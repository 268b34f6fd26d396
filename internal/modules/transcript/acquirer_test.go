package transcript

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartnotes/core/internal/modules/transcribe"
	"github.com/smartnotes/core/internal/modules/youtube"
	"github.com/smartnotes/core/internal/pkg/apperror"
)

type fakeCaptions struct {
	captions youtube.Captions
	err      error
	gotLangs []string
}

func (f *fakeCaptions) FetchCaptions(_ context.Context, _ string, langs []string) (youtube.Captions, error) {
	f.gotLangs = langs
	return f.captions, f.err
}

type fakeAudio struct {
	dir      string
	calls    int
	err      error
	path     string
	released []string
}

func (f *fakeAudio) DownloadAudio(_ context.Context, videoID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	f.path = filepath.Join(f.dir, videoID+".mp3")
	return f.path, os.WriteFile(f.path, []byte("audio"), 0o644)
}

func (f *fakeAudio) Release(path string) error {
	f.released = append(f.released, path)
	return os.Remove(path)
}

type fakeSTT struct {
	text    string
	err     error
	calls   int
	gotLang string
}

func (f *fakeSTT) Transcribe(_ context.Context, _ string, opts transcribe.Options) (*transcribe.Result, error) {
	f.calls++
	f.gotLang = opts.Language
	if f.err != nil {
		return nil, f.err
	}
	return &transcribe.Result{Text: f.text, Language: opts.Language}, nil
}

func (f *fakeSTT) Model() string { return "fake" }

func TestLanguages(t *testing.T) {
	assert.Equal(t, []string{"en"}, Languages("en"))
	assert.Equal(t, []string{"en", "fr"}, Languages("fr"))
	assert.Equal(t, []string{"en", "de"}, Languages(" DE "))
}

func TestAcquireFromCaptions(t *testing.T) {
	captions := &fakeCaptions{captions: youtube.Captions{Text: "Hello world", Language: "en"}}
	audio := &fakeAudio{dir: t.TempDir()}
	stt := &fakeSTT{}

	got, err := NewAcquirer(captions, audio, stt, nil).Acquire(context.Background(), "dQw4w9WgXcQ", "it")
	require.NoError(t, err)
	assert.Equal(t, Transcript{Text: "Hello world", Language: "en", Source: SourceCaptions}, got)
	assert.Equal(t, []string{"en", "it"}, captions.gotLangs)
	assert.Zero(t, audio.calls)
	assert.Zero(t, stt.calls)
}

func TestAcquireFallsBackExactlyOnce(t *testing.T) {
	for _, sentinel := range []error{youtube.ErrTranscriptsDisabled, youtube.ErrNoTranscriptFound} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			captions := &fakeCaptions{err: fmt.Errorf("video x: %w", sentinel)}
			audio := &fakeAudio{dir: t.TempDir()}
			stt := &fakeSTT{text: " Guten Tag "}

			got, err := NewAcquirer(captions, audio, stt, nil).Acquire(context.Background(), "dQw4w9WgXcQ", "de")
			require.NoError(t, err)
			assert.Equal(t, Transcript{Text: "Guten Tag", Language: "de", Source: SourceSpeechToText}, got)
			assert.Equal(t, 1, audio.calls)
			assert.Equal(t, 1, stt.calls)
			assert.Equal(t, "de", stt.gotLang)
			assert.NoFileExists(t, audio.path)
			assert.Equal(t, []string{audio.path}, audio.released)
		})
	}
}

func TestAcquireOtherCaptionErrorsPropagate(t *testing.T) {
	captions := &fakeCaptions{err: errors.New("fetch watch page: HTTP 500")}
	audio := &fakeAudio{dir: t.TempDir()}
	stt := &fakeSTT{text: "unused"}

	_, err := NewAcquirer(captions, audio, stt, nil).Acquire(context.Background(), "dQw4w9WgXcQ", "en")
	require.Error(t, err)
	assert.Equal(t, apperror.KindUpstream, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "HTTP 500")
	assert.Zero(t, audio.calls)
	assert.Zero(t, stt.calls)
}

func TestAcquireFallbackFailures(t *testing.T) {
	noCaptions := &fakeCaptions{err: youtube.ErrTranscriptsDisabled}
	tests := []struct {
		name  string
		audio *fakeAudio
		stt   *fakeSTT
	}{
		{"download fails", &fakeAudio{err: errors.New("yt-dlp exited 1")}, &fakeSTT{text: "x"}},
		{"model fails", &fakeAudio{}, &fakeSTT{err: errors.New("model not loaded")}},
		{"empty output", &fakeAudio{}, &fakeSTT{text: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.audio.dir = t.TempDir()
			_, err := NewAcquirer(noCaptions, tt.audio, tt.stt, nil).Acquire(context.Background(), "dQw4w9WgXcQ", "en")
			require.Error(t, err)
			assert.Equal(t, apperror.KindTranscriptionFailed, apperror.KindOf(err))
			assert.Equal(t, 1, tt.audio.calls)
		})
	}
}

func TestAcquireWithoutFallback(t *testing.T) {
	_, err := NewAcquirer(&fakeCaptions{err: youtube.ErrNoTranscriptFound}, nil, nil, nil).
		Acquire(context.Background(), "dQw4w9WgXcQ", "ar")
	assert.Equal(t, apperror.KindTranscriptUnavailable, apperror.KindOf(err))
}
