package notes

import (
	"github.com/smartnotes/core/internal/modules/ai"
	"github.com/smartnotes/core/internal/modules/transcript"
)

// Stage names a step of a pipeline run as reported to clients.
type Stage string

const (
	StageValidated  Stage = "validated"
	StageTranscript Stage = "transcript"
	StageNotes      Stage = "notes"
	StageDone       Stage = "done"
	StageError      Stage = "error"
)

// Event is one progress report. Progress runs from 0 to 100.
type Event struct {
	Stage    Stage  `json:"stage"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	Kind     string `json:"kind,omitempty"`
	RecordID string `json:"record_id,omitempty"`
	VideoID  string `json:"video_id,omitempty"`
}

// ProgressFunc receives events in order. It may be nil.
type ProgressFunc func(Event)

// Request is the user input of one run.
type Request struct {
	URL      string `json:"url"`
	Language string `json:"language"`
}

// Run carries everything one pipeline execution produces. It is created per
// request and never shared.
type Run struct {
	URL          string
	Language     string // two-letter code
	VideoID      string
	ThumbnailURL string

	Transcript     transcript.Transcript
	TranscriptFile string
	Notes          ai.NotesDocument

	progress ProgressFunc
}

func (r *Run) emit(ev Event) {
	if r.progress == nil {
		return
	}
	if ev.VideoID == "" {
		ev.VideoID = r.VideoID
	}
	r.progress(ev)
}
