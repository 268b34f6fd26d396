package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smartnotes/core/internal/models"
	"github.com/smartnotes/core/internal/modules/ai"
	"github.com/smartnotes/core/internal/modules/markdown"
	"github.com/smartnotes/core/internal/modules/youtube"
	"github.com/smartnotes/core/internal/pkg/apperror"
	"github.com/smartnotes/core/internal/pkg/pagination"
	"github.com/smartnotes/core/internal/pkg/response"
	"github.com/smartnotes/core/internal/pkg/taskqueue"
)

type Handler struct {
	pipeline *Pipeline
	store    Store
	tasks    *Tasks
}

// NewHandler builds the HTTP surface. tasks is nil when no Redis is
// configured; the task routes are then not registered.
func NewHandler(pipeline *Pipeline, store Store, tasks *Tasks) *Handler {
	return &Handler{pipeline: pipeline, store: store, tasks: tasks}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/languages", h.languages)
	rg.GET("/videos/validate", h.validate)

	g := rg.Group("/notes")
	g.POST("", h.create)
	g.POST("/stream", h.stream)
	g.GET("", h.find)
	g.GET("/:id", h.get)
	g.GET("/:id/html", h.html)
	g.GET("/:id/download/notes", h.downloadNotes)
	g.GET("/:id/download/transcript", h.downloadTranscript)

	if h.tasks != nil {
		g.POST("/tasks", h.enqueueTask)
		g.GET("/tasks", h.listTasks)
		g.GET("/tasks/:id", h.getTask)
		g.POST("/tasks/:id/cancel", h.cancelTask)
		g.DELETE("/tasks/:id", h.deleteTask)
	}
}

// GET /languages
func (h *Handler) languages(c *gin.Context) {
	response.OK(c, ai.SupportedLanguages)
}

// GET /videos/validate?url=
func (h *Handler) validate(c *gin.Context) {
	url := strings.TrimSpace(c.Query("url"))
	id, ok := youtube.ExtractVideoID(url)
	if !ok {
		response.OK(c, gin.H{"valid": false})
		return
	}
	response.OK(c, gin.H{
		"valid":         true,
		"video_id":      id,
		"thumbnail_url": youtube.ThumbnailURL(id),
	})
}

func bindRequest(c *gin.Context) (Request, bool) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return Request{}, false
	}
	return req, true
}

// POST /notes
func (h *Handler) create(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}
	rec, err := h.pipeline.Execute(c.Request.Context(), req, nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rec)
}

// POST /notes/stream
// Input errors are answered as JSON; once the run starts, progress and the
// outcome are sent as server-sent events.
func (h *Handler) stream(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}

	sendEvent := func(ev Event) {
		data, _ := json.Marshal(ev)
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Stage, data)
		c.Writer.Flush()
	}

	run, err := h.pipeline.Prepare(req, sendEvent)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if _, err := h.pipeline.ExecuteRun(c.Request.Context(), run); err != nil {
		_ = c.Error(err)
	}
}

// GET /notes?video_id=&language=  latest record
// GET /notes?page=&size=           newest first
func (h *Handler) find(c *gin.Context) {
	videoID := strings.TrimSpace(c.Query("video_id"))
	if videoID == "" {
		recs, meta, err := h.store.List(c.Request.Context(), pagination.FromContext(c))
		if err != nil {
			response.InternalError(c, err)
			return
		}
		for i := range recs {
			h.pipeline.AttachLinks(c.Request.Context(), &recs[i])
		}
		response.Paged(c, recs, meta)
		return
	}

	code, ok := ai.LookupLanguage(c.Query("language"))
	if !ok {
		response.Error(c, apperror.Validation("Unsupported language: "+c.Query("language")))
		return
	}
	rec, err := h.store.Latest(c.Request.Context(), videoID, code)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if rec == nil {
		response.NotFoundMsg(c, "no notes for this video and language yet")
		return
	}
	h.pipeline.AttachLinks(c.Request.Context(), rec)
	response.OK(c, rec)
}

func (h *Handler) loadRecord(c *gin.Context) (*models.NotesRecord, bool) {
	rec, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return nil, false
	}
	if rec == nil {
		response.NotFound(c)
		return nil, false
	}
	return rec, true
}

// GET /notes/:id
func (h *Handler) get(c *gin.Context) {
	if rec, ok := h.loadRecord(c); ok {
		h.pipeline.AttachLinks(c.Request.Context(), rec)
		response.OK(c, rec)
	}
}

// GET /notes/:id/html
func (h *Handler) html(c *gin.Context) {
	rec, ok := h.loadRecord(c)
	if !ok {
		return
	}
	page := markdown.RenderDocument(rec.Notes, markdown.DocumentOptions{
		Language:     rec.Language,
		SourceURL:    rec.URL,
		ThumbnailURL: rec.ThumbnailURL,
	})
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

// GET /notes/:id/download/notes
func (h *Handler) downloadNotes(c *gin.Context) {
	if rec, ok := h.loadRecord(c); ok {
		attachment(c, NotesFilename, notesContentType, rec.Notes)
	}
}

// GET /notes/:id/download/transcript
func (h *Handler) downloadTranscript(c *gin.Context) {
	if rec, ok := h.loadRecord(c); ok {
		attachment(c, TranscriptFilename, transcriptContentType, rec.Transcript)
	}
}

func attachment(c *gin.Context, filename, contentType, body string) {
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	c.Data(http.StatusOK, contentType, []byte(body))
}

// POST /notes/tasks
func (h *Handler) enqueueTask(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}
	task, err := h.tasks.Enqueue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, task)
}

// GET /notes/tasks?status=&page=&size=
func (h *Handler) listTasks(c *gin.Context) {
	q := pagination.FromContext(c)
	var statusPtr *taskqueue.TaskStatus
	if raw := c.Query("status"); raw != "" {
		s := taskqueue.TaskStatus(raw)
		statusPtr = &s
	}
	tasks, total, err := h.tasks.List(c.Request.Context(), q.Page, q.Size, statusPtr)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, tasks, pagination.Meta(total, q))
}

// GET /notes/tasks/:id
func (h *Handler) getTask(c *gin.Context) {
	task, err := h.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, task)
}

// POST /notes/tasks/:id/cancel
func (h *Handler) cancelTask(c *gin.Context) {
	err := h.tasks.Cancel(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, taskqueue.ErrTaskNotFound):
		response.NotFound(c)
	case errors.Is(err, taskqueue.ErrTaskFinished):
		response.Conflict(c, "task already finished")
	case err != nil:
		response.InternalError(c, err)
	default:
		response.NoContent(c)
	}
}

// DELETE /notes/tasks/:id
func (h *Handler) deleteTask(c *gin.Context) {
	err := h.tasks.Delete(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, taskqueue.ErrTaskNotFound):
		response.NotFound(c)
	case err != nil:
		response.InternalError(c, err)
	default:
		response.NoContent(c)
	}
}
