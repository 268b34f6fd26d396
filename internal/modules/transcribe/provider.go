package transcribe

import "context"

// Provider is a speech-to-text backend.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)
	Model() string
}

type Options struct {
	// Language is the ISO-639-1 code the audio should be transcribed in.
	Language string
}

type Result struct {
	Text     string
	Language string
}
