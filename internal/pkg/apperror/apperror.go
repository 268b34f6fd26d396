package apperror

import (
	"errors"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindConfiguration         Kind = "configuration"
	KindTranscriptUnavailable Kind = "transcript_unavailable"
	KindTranscriptionFailed   Kind = "transcription_failed"
	KindGenerationFailed      Kind = "generation_failed"
	KindUpstream              Kind = "upstream"
	KindInternal              Kind = "internal"
)

// Error is a classified failure with a message fit for end users.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindValidation}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error { return New(KindValidation, message) }

func Configuration(message string) *Error { return New(KindConfiguration, message) }

func TranscriptUnavailable(message string, err error) *Error {
	return Wrap(KindTranscriptUnavailable, message, err)
}

func TranscriptionFailed(err error) *Error {
	return Wrap(KindTranscriptionFailed, "speech-to-text transcription failed", err)
}

func GenerationFailed(err error) *Error {
	return Wrap(KindGenerationFailed, "notes generation failed", err)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// UserMessage returns the message shown to end users. Internal details stay in the logs.
func UserMessage(err error) string {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return "internal error"
	}
	switch appErr.Kind {
	case KindValidation, KindConfiguration:
		return appErr.Message
	case KindTranscriptUnavailable:
		return "no transcript is available for this video"
	case KindTranscriptionFailed:
		return appErr.Error()
	case KindGenerationFailed:
		return appErr.Error()
	case KindUpstream:
		return appErr.Error()
	}
	return "internal error"
}

// HTTPStatus maps a kind to the response status used by the API.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConfiguration:
		return http.StatusServiceUnavailable
	case KindTranscriptUnavailable:
		return http.StatusNotFound
	case KindTranscriptionFailed, KindGenerationFailed, KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
