package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/smartnotes/core/internal/modules/transcribe"
	"github.com/smartnotes/core/internal/modules/youtube"
	"github.com/smartnotes/core/internal/pkg/apperror"
)

type Source string

const (
	SourceCaptions     Source = "captions"
	SourceSpeechToText Source = "speech_to_text"
)

// Transcript is one text blob plus the language it was produced in.
type Transcript struct {
	Text     string
	Language string
	Source   Source
}

type CaptionsFetcher interface {
	FetchCaptions(ctx context.Context, videoID string, langs []string) (youtube.Captions, error)
}

// AudioDownloader hands out a scratch audio file that stays reserved until
// Release deletes it.
type AudioDownloader interface {
	DownloadAudio(ctx context.Context, videoID string) (string, error)
	Release(path string) error
}

// Acquirer gets a transcript from captions and falls back to speech-to-text
// only when the video has no usable captions.
type Acquirer struct {
	captions CaptionsFetcher
	audio    AudioDownloader
	stt      transcribe.Provider
	logger   *zap.Logger
}

// NewAcquirer builds an Acquirer. audio and stt may both be nil, which turns
// the fallback off.
func NewAcquirer(captions CaptionsFetcher, audio AudioDownloader, stt transcribe.Provider, logger *zap.Logger) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acquirer{captions: captions, audio: audio, stt: stt, logger: logger.Named("transcript")}
}

// Languages is the caption preference list for a target language: English
// first, then the target, without duplicates.
func Languages(target string) []string {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" || target == "en" {
		return []string{"en"}
	}
	return []string{"en", target}
}

// IsNoCaptions reports whether err is the expected "no captions" condition.
func IsNoCaptions(err error) bool {
	return errors.Is(err, youtube.ErrTranscriptsDisabled) || errors.Is(err, youtube.ErrNoTranscriptFound)
}

func (a *Acquirer) Acquire(ctx context.Context, videoID, targetLang string) (Transcript, error) {
	langs := Languages(targetLang)
	captions, err := a.captions.FetchCaptions(ctx, videoID, langs)
	if err == nil {
		a.logger.Info("captions fetched",
			zap.String("video_id", videoID),
			zap.String("language", captions.Language),
			zap.Bool("generated", captions.Generated),
			zap.Int("chars", len(captions.Text)))
		return Transcript{Text: captions.Text, Language: captions.Language, Source: SourceCaptions}, nil
	}
	if !IsNoCaptions(err) {
		return Transcript{}, apperror.Wrap(apperror.KindUpstream, "captions service failed", err)
	}

	a.logger.Info("no captions, falling back to speech-to-text",
		zap.String("video_id", videoID), zap.Strings("languages", langs), zap.Error(err))
	if a.audio == nil || a.stt == nil {
		return Transcript{}, apperror.TranscriptUnavailable("no captions and speech-to-text is disabled", err)
	}
	return a.transcribe(ctx, videoID, targetLang)
}

func (a *Acquirer) transcribe(ctx context.Context, videoID, lang string) (Transcript, error) {
	path, err := a.audio.DownloadAudio(ctx, videoID)
	if err != nil {
		return Transcript{}, apperror.TranscriptionFailed(fmt.Errorf("download audio: %w", err))
	}
	defer func() {
		if rmErr := a.audio.Release(path); rmErr != nil {
			a.logger.Warn("remove temp audio failed", zap.String("path", path), zap.Error(rmErr))
		}
	}()

	res, err := a.stt.Transcribe(ctx, path, transcribe.Options{Language: lang})
	if err != nil {
		return Transcript{}, apperror.TranscriptionFailed(err)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return Transcript{}, apperror.TranscriptionFailed(errors.New("empty transcription"))
	}
	a.logger.Info("speech-to-text finished",
		zap.String("video_id", videoID), zap.String("model", a.stt.Model()), zap.Int("chars", len(text)))
	return Transcript{Text: text, Language: lang, Source: SourceSpeechToText}, nil
}
