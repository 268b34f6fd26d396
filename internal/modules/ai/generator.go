package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smartnotes/core/internal/pkg/apperror"
)

// NotesDocument is the generated markdown plus the language it was written in.
type NotesDocument struct {
	Markdown string
	Language string
}

// DiscussionRecorder keeps every prompt/response exchange with the model.
type DiscussionRecorder interface {
	RecordDiscussion(prompt, response string) error
}

// Generator turns a transcript into structured notes.
type Generator struct {
	completer  Completer
	template   string
	discussion DiscussionRecorder
	logger     *zap.Logger
}

// NewGenerator validates template up front; an empty template selects
// DefaultPromptTemplate. discussion may be nil.
func NewGenerator(completer Completer, template string, discussion DiscussionRecorder, logger *zap.Logger) (*Generator, error) {
	if strings.TrimSpace(template) == "" {
		template = DefaultPromptTemplate
	}
	if err := ValidateTemplate(template); err != nil {
		return nil, apperror.Configuration(err.Error())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		completer:  completer,
		template:   template,
		discussion: discussion,
		logger:     logger.Named("notes-generator"),
	}, nil
}

// Generate makes one blocking model call. The answer is never empty on success.
func (g *Generator) Generate(ctx context.Context, transcript, languageCode string) (NotesDocument, error) {
	if strings.TrimSpace(transcript) == "" {
		return NotesDocument{}, apperror.GenerationFailed(errors.New("transcript is empty"))
	}
	prompt := RenderPrompt(g.template, LanguageName(languageCode), transcript)

	start := time.Now()
	raw, err := g.completer.Complete(ctx, "", prompt)
	if err != nil {
		g.logger.Warn("generation failed", zap.String("language", languageCode), zap.Error(err))
		return NotesDocument{}, apperror.GenerationFailed(err)
	}
	g.record(prompt, raw)

	notes := stripFences(raw)
	if notes == "" {
		return NotesDocument{}, apperror.GenerationFailed(errors.New("model returned empty text"))
	}
	g.logger.Info("notes generated",
		zap.String("language", languageCode),
		zap.Int("chars", len(notes)),
		zap.Duration("took", time.Since(start)))
	return NotesDocument{Markdown: notes, Language: languageCode}, nil
}

func (g *Generator) record(prompt, response string) {
	if g.discussion == nil {
		return
	}
	if err := g.discussion.RecordDiscussion(prompt, response); err != nil {
		g.logger.Warn("write discussion log failed", zap.Error(err))
	}
}

// stripFences removes a code fence wrapping the whole answer, which some
// models add around markdown output.
func stripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") || !strings.HasSuffix(cleaned, "```") || len(cleaned) < 6 {
		return cleaned
	}
	body := strings.TrimSuffix(cleaned, "```")
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return cleaned
	}
	// the opening fence may carry an info string such as "markdown"
	if info := strings.TrimSpace(body[3:nl]); strings.ContainsAny(info, " `") {
		return cleaned
	}
	return strings.TrimSpace(body[nl+1:])
}
