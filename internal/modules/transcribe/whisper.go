package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
)

// WhisperClient talks to any server exposing the OpenAI audio
// transcription route, e.g. a local faster-whisper deployment.
type WhisperClient struct {
	client openaiclient.Client
	model  string
}

func NewWhisperClient(endpoint, apiKey, model string, timeout time.Duration) *WhisperClient {
	opts := []openaioption.RequestOption{
		openaioption.WithMaxRetries(0),
		openaioption.WithBaseURL(normalizeBaseURL(endpoint)),
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		opts = append(opts, openaioption.WithAPIKey(key))
	} else {
		opts = append(opts, openaioption.WithAPIKey("local"))
	}
	if timeout > 0 {
		opts = append(opts, openaioption.WithRequestTimeout(timeout))
	}
	return &WhisperClient{client: openaiclient.NewClient(opts...), model: model}
}

func (w *WhisperClient) Model() string { return w.model }

func (w *WhisperClient) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()

	params := openaiclient.AudioTranscriptionNewParams{
		File:  file,
		Model: openaiclient.AudioModel(w.model),
	}
	if lang := strings.TrimSpace(opts.Language); lang != "" {
		params.Language = openaiclient.String(lang)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("whisper %s: %w", w.model, err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, errors.New("whisper returned empty text")
	}
	return &Result{Text: text, Language: opts.Language}, nil
}

func normalizeBaseURL(endpoint string) string {
	base := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/"
}
