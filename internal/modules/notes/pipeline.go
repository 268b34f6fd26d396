package notes

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smartnotes/core/internal/models"
	"github.com/smartnotes/core/internal/modules/ai"
	"github.com/smartnotes/core/internal/modules/transcript"
	"github.com/smartnotes/core/internal/modules/youtube"
	"github.com/smartnotes/core/internal/pkg/apperror"
	"github.com/smartnotes/core/internal/pkg/storage"
)

const (
	NotesFilename      = "smart_notes.md"
	TranscriptFilename = "transcript.txt"

	notesContentType      = "text/markdown; charset=utf-8"
	transcriptContentType = "text/plain; charset=utf-8"
)

type TranscriptSource interface {
	Acquire(ctx context.Context, videoID, targetLang string) (transcript.Transcript, error)
}

type NotesWriter interface {
	Generate(ctx context.Context, transcript, languageCode string) (ai.NotesDocument, error)
}

// Journal keeps the processing log and the transcript files.
type Journal interface {
	LogProcessing(url, language string) error
	SaveTranscript(videoID, text string) (string, error)
}

// ArtifactStore uploads finished documents and signs download links for them.
type ArtifactStore interface {
	ObjectKey(parts ...string) string
	Put(ctx context.Context, key string, payload []byte, contentType, filename string) (storage.Artifact, error)
	PresignDownload(ctx context.Context, key, filename string) (string, error)
}

// Pipeline sequences one run: validation, transcript, notes, persistence.
// Every stage runs once; the first failure ends the run.
type Pipeline struct {
	transcripts TranscriptSource
	writer      NotesWriter
	journal     Journal
	store       Store
	artifacts   ArtifactStore
	logger      *zap.Logger
}

// NewPipeline wires the stages. journal and artifacts may be nil.
func NewPipeline(transcripts TranscriptSource, writer NotesWriter, journal Journal, store Store, artifacts ArtifactStore, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		transcripts: transcripts,
		writer:      writer,
		journal:     journal,
		store:       store,
		artifacts:   artifacts,
		logger:      logger.Named("pipeline"),
	}
}

// Prepare validates the request and builds the run context. It touches
// nothing outside the process.
func (p *Pipeline) Prepare(req Request, progress ProgressFunc) (*Run, error) {
	code, ok := ai.LookupLanguage(req.Language)
	if !ok {
		return nil, apperror.Validation("Unsupported language: " + strings.TrimSpace(req.Language))
	}
	url := strings.TrimSpace(req.URL)
	if !youtube.IsValidURL(url) {
		return nil, apperror.Validation("Invalid YouTube URL")
	}
	videoID, ok := youtube.ExtractVideoID(url)
	if !ok {
		return nil, apperror.Validation("Could not extract video ID")
	}
	return &Run{
		URL:          url,
		Language:     code,
		VideoID:      videoID,
		ThumbnailURL: youtube.ThumbnailURL(videoID),
		progress:     progress,
	}, nil
}

// Execute validates req and runs every stage, reporting progress.
func (p *Pipeline) Execute(ctx context.Context, req Request, progress ProgressFunc) (*models.NotesRecord, error) {
	run, err := p.Prepare(req, progress)
	if err != nil {
		if progress != nil {
			progress(errorEvent(err))
		}
		return nil, err
	}
	return p.ExecuteRun(ctx, run)
}

// ExecuteRun runs the stages after Prepare.
func (p *Pipeline) ExecuteRun(ctx context.Context, run *Run) (*models.NotesRecord, error) {
	rec, err := p.execute(ctx, run)
	if err != nil {
		p.logger.Warn("run failed",
			zap.String("video_id", run.VideoID),
			zap.String("language", run.Language),
			zap.String("kind", string(apperror.KindOf(err))),
			zap.Error(err))
		run.emit(errorEvent(err))
		return nil, err
	}
	run.emit(Event{Stage: StageDone, Progress: 100, RecordID: rec.ID})
	return rec, nil
}

func (p *Pipeline) execute(ctx context.Context, run *Run) (*models.NotesRecord, error) {
	start := time.Now()
	run.emit(Event{Stage: StageValidated, Progress: 0})

	if p.journal != nil {
		if err := p.journal.LogProcessing(run.URL, strings.ToLower(ai.LanguageName(run.Language))); err != nil {
			p.logger.Warn("write processing log failed", zap.Error(err))
		}
	}

	run.emit(Event{Stage: StageTranscript, Progress: 0, Message: "Fetching transcript"})
	tr, err := p.transcripts.Acquire(ctx, run.VideoID, run.Language)
	if err != nil {
		return nil, err
	}
	run.Transcript = tr
	run.emit(Event{Stage: StageTranscript, Progress: 50, Message: "Transcript ready (" + string(tr.Source) + ")"})

	if p.journal != nil {
		path, err := p.journal.SaveTranscript(run.VideoID, tr.Text)
		if err != nil {
			p.logger.Warn("save transcript file failed", zap.Error(err))
		}
		run.TranscriptFile = path
	}

	run.emit(Event{Stage: StageNotes, Progress: 50, Message: "Generating notes"})
	doc, err := p.writer.Generate(ctx, tr.Text, run.Language)
	if err != nil {
		return nil, err
	}
	run.Notes = doc
	run.emit(Event{Stage: StageNotes, Progress: 100, Message: "Notes ready"})

	rec := &models.NotesRecord{
		Hash:           models.NotesHash(run.VideoID, run.Language),
		VideoID:        run.VideoID,
		URL:            run.URL,
		Language:       run.Language,
		Source:         string(tr.Source),
		Transcript:     tr.Text,
		Notes:          doc.Markdown,
		ThumbnailURL:   run.ThumbnailURL,
		TranscriptFile: run.TranscriptFile,
	}
	p.uploadArtifacts(ctx, run, rec)

	if err := p.store.Save(ctx, rec); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "save notes record", err)
	}
	p.logger.Info("run finished",
		zap.String("video_id", run.VideoID),
		zap.String("language", run.Language),
		zap.String("source", string(tr.Source)),
		zap.String("record_id", rec.ID),
		zap.Duration("took", time.Since(start)))
	return rec, nil
}

// uploadArtifacts stores both documents when artifact storage is configured.
// A failed upload leaves the links empty; the record is still saved.
func (p *Pipeline) uploadArtifacts(ctx context.Context, run *Run, rec *models.NotesRecord) {
	if p.artifacts == nil {
		return
	}
	stamp := time.Now().UTC().Format("20060102T150405Z")

	notesKey := p.artifacts.ObjectKey(run.VideoID, run.Language, stamp, NotesFilename)
	if a, err := p.artifacts.Put(ctx, notesKey, []byte(rec.Notes), notesContentType, NotesFilename); err != nil {
		p.logger.Warn("upload notes failed", zap.String("key", notesKey), zap.Error(err))
	} else {
		rec.NotesKey, rec.NotesURL = a.Key, a.URL
	}

	transcriptKey := p.artifacts.ObjectKey(run.VideoID, run.Language, stamp, TranscriptFilename)
	if a, err := p.artifacts.Put(ctx, transcriptKey, []byte(rec.Transcript), transcriptContentType, TranscriptFilename); err != nil {
		p.logger.Warn("upload transcript failed", zap.String("key", transcriptKey), zap.Error(err))
	} else {
		rec.TranscriptKey, rec.TranscriptURL = a.Key, a.URL
	}
}

// AttachLinks signs fresh download links for the artifacts of recs. Records
// without uploaded artifacts, or a pipeline without artifact storage, get none.
func (p *Pipeline) AttachLinks(ctx context.Context, recs ...*models.NotesRecord) {
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		rec.NotesURL = p.presign(ctx, rec.NotesKey, NotesFilename)
		rec.TranscriptURL = p.presign(ctx, rec.TranscriptKey, TranscriptFilename)
	}
}

func (p *Pipeline) presign(ctx context.Context, key, filename string) string {
	if p.artifacts == nil || key == "" {
		return ""
	}
	url, err := p.artifacts.PresignDownload(ctx, key, filename)
	if err != nil {
		p.logger.Warn("presign download failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	return url
}

func errorEvent(err error) Event {
	return Event{
		Stage:   StageError,
		Message: apperror.UserMessage(err),
		Kind:    string(apperror.KindOf(err)),
	}
}
