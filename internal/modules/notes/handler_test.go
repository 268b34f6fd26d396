package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisc "github.com/smartnotes/core/internal/pkg/redis"
	"github.com/smartnotes/core/internal/pkg/taskqueue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(h *harness, tasks *Tasks) *gin.Engine {
	r := gin.New()
	NewHandler(h.pipeline, h.store, tasks).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestLanguagesAndValidate(t *testing.T) {
	r := newRouter(newHarness(t, nil), nil)

	w := doJSON(r, http.MethodGet, "/api/v1/languages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].([]any)
	require.Len(t, data, 5)
	assert.Equal(t, map[string]any{"name": "english", "code": "en"}, data[0])

	w = doJSON(r, http.MethodGet, "/api/v1/videos/validate?url=https://youtu.be/dQw4w9WgXcQ", nil)
	body := decode(t, w)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "dQw4w9WgXcQ", body["video_id"])
	assert.Equal(t, "http://img.youtube.com/vi/dQw4w9WgXcQ/0.jpg", body["thumbnail_url"])

	w = doJSON(r, http.MethodGet, "/api/v1/videos/validate?url=nope", nil)
	assert.Equal(t, map[string]any{"valid": false}, decode(t, w))
}

func TestCreateAndFetchNotes(t *testing.T) {
	h := newHarness(t, nil)
	r := newRouter(h, nil)

	w := doJSON(r, http.MethodPost, "/api/v1/notes", Request{URL: testURL, Language: "fr"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	id := created["id"].(string)
	assert.Equal(t, "fr", created["language"])
	assert.NotContains(t, created, "hash")

	w = doJSON(r, http.MethodGet, "/api/v1/notes/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode(t, w)["id"])

	w = doJSON(r, http.MethodGet, "/api/v1/notes?video_id=dQw4w9WgXcQ&language=french", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode(t, w)["id"])

	w = doJSON(r, http.MethodGet, "/api/v1/notes?video_id=dQw4w9WgXcQ&language=de", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/notes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)
	assert.Len(t, list["data"], 1)
	assert.EqualValues(t, 1, list["pagination"].(map[string]any)["total"])

	w = doJSON(r, http.MethodGet, "/api/v1/notes/"+id+"/download/notes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=smart_notes.md", w.Header().Get("Content-Disposition"))
	assert.Equal(t, "# Notes\n\n**Key** point", w.Body.String())

	w = doJSON(r, http.MethodGet, "/api/v1/notes/"+id+"/download/transcript", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment; filename=transcript.txt", w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Hello world", w.Body.String())

	w = doJSON(r, http.MethodGet, "/api/v1/notes/"+id+"/html", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<html lang="fr" dir="ltr">`)
	assert.Contains(t, w.Body.String(), "<strong>Key</strong>")

	w = doJSON(r, http.MethodGet, "/api/v1/notes/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFetchedNotesCarryFreshDownloadLinks(t *testing.T) {
	artifacts := &fakeArtifacts{}
	h := newHarness(t, artifacts)
	r := newRouter(h, nil)

	w := doJSON(r, http.MethodPost, "/api/v1/notes", Request{URL: testURL, Language: "fr"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	id := created["id"].(string)
	assert.NotContains(t, created, "transcript_file")
	assert.NotContains(t, created, "notes_key")
	require.Len(t, artifacts.keys, 2)

	w = doJSON(r, http.MethodGet, "/api/v1/notes/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	first := decode(t, w)
	assert.Equal(t, "https://cdn.example/"+artifacts.keys[0]+"?name=smart_notes.md&sig=1", first["notes_url"])
	assert.Equal(t, "https://cdn.example/"+artifacts.keys[1]+"?name=transcript.txt&sig=2", first["transcript_url"])
	assert.NotContains(t, first, "transcript_file")

	w = doJSON(r, http.MethodGet, "/api/v1/notes?video_id=dQw4w9WgXcQ&language=fr", nil)
	require.Equal(t, http.StatusOK, w.Code)
	latest := decode(t, w)
	assert.Equal(t, "https://cdn.example/"+artifacts.keys[0]+"?name=smart_notes.md&sig=3", latest["notes_url"])

	artifacts.signErr = errors.New("signer down")
	w = doJSON(r, http.MethodGet, "/api/v1/notes/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decode(t, w), "notes_url")
}

func TestCreateNotesErrors(t *testing.T) {
	r := newRouter(newHarness(t, nil), nil)

	w := doJSON(r, http.MethodPost, "/api/v1/notes", Request{URL: "https://example.com", Language: "en"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "validation", body["kind"])
	assert.Equal(t, "Invalid YouTube URL", body["message"])

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notes", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/api/v1/notes?video_id=dQw4w9WgXcQ&language=xx", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamSendsProgressEvents(t *testing.T) {
	r := newRouter(newHarness(t, nil), nil)

	w := doJSON(r, http.MethodPost, "/api/v1/notes/stream", Request{URL: testURL, Language: "en"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	validated := strings.Index(body, "event: validated")
	done := strings.Index(body, "event: done")
	assert.GreaterOrEqual(t, validated, 0)
	assert.Greater(t, done, validated)
	assert.Contains(t, body, `"stage":"transcript","progress":50`)

	w = doJSON(r, http.MethodPost, "/api/v1/notes/stream", Request{URL: testURL, Language: "klingon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamReportsPipelineError(t *testing.T) {
	h := newHarness(t, nil)
	h.source.err = context.DeadlineExceeded
	r := newRouter(h, nil)

	w := doJSON(r, http.MethodPost, "/api/v1/notes/stream", Request{URL: testURL, Language: "en"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event: error")
	assert.Contains(t, w.Body.String(), `"message":"internal error"`)
	assert.NotContains(t, w.Body.String(), "event: done")
}

func TestTaskRoutesNeedQueue(t *testing.T) {
	r := newRouter(newHarness(t, nil), nil)
	w := doJSON(r, http.MethodPost, "/api/v1/notes/tasks", Request{URL: testURL, Language: "en"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func newQueueClient(t *testing.T) *redisc.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redisc.Wrap(rdb)
}

func newTasks(t *testing.T, h *harness) *Tasks {
	t.Helper()
	return NewTasks(taskqueue.NewService(newQueueClient(t)), h.pipeline, time.Minute, nil)
}

func TestTaskLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	tasks := newTasks(t, h)
	r := newRouter(h, tasks)

	w := doJSON(r, http.MethodPost, "/api/v1/notes/tasks", Request{URL: testURL, Language: "german"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)
	tasks.Wait()

	w = doJSON(r, http.MethodGet, "/api/v1/notes/tasks/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	task := decode(t, w)
	assert.Equal(t, "completed", task["status"])
	recordID := task["result"].(map[string]any)["record_id"].(string)

	w = doJSON(r, http.MethodGet, "/api/v1/notes/"+recordID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "de", decode(t, w)["language"])

	w = doJSON(r, http.MethodGet, "/api/v1/notes/tasks?status=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)

	w = doJSON(r, http.MethodPost, "/api/v1/notes/tasks/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, http.MethodDelete, "/api/v1/notes/tasks/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(r, http.MethodGet, "/api/v1/notes/tasks/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTaskDedupAndCancel(t *testing.T) {
	h := newHarness(t, nil)
	h.source.block = make(chan struct{})
	tasks := newTasks(t, h)
	ctx := context.Background()

	first, err := tasks.Enqueue(ctx, Request{URL: testURL, Language: "en"})
	require.NoError(t, err)
	second, err := tasks.Enqueue(ctx, Request{URL: "https://youtu.be/dQw4w9WgXcQ", Language: "english"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	require.Eventually(t, func() bool { return h.source.Calls() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, tasks.Cancel(ctx, first.ID))
	close(h.source.block)
	tasks.Wait()

	got, err := tasks.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskCancelled, got.Status)
	assert.Equal(t, 1, h.source.Calls())
}

func TestTaskFailureIsRecorded(t *testing.T) {
	h := newHarness(t, nil)
	h.source.err = context.Canceled
	tasks := newTasks(t, h)
	ctx := context.Background()

	task, err := tasks.Enqueue(ctx, Request{URL: testURL, Language: "it"})
	require.NoError(t, err)
	tasks.Wait()

	got, err := tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskFailed, got.Status)
	assert.NotEmpty(t, got.Error)

	_, err = tasks.Enqueue(ctx, Request{URL: "bad", Language: "it"})
	assert.Error(t, err)
}

func TestInterruptedTaskIsFailedAndRequeued(t *testing.T) {
	h := newHarness(t, nil)
	rc := newQueueClient(t)
	ctx := context.Background()

	// A task left running by a previous process.
	previous := taskqueue.NewService(rc)
	run, err := h.pipeline.Prepare(Request{URL: testURL, Language: "en"}, nil)
	require.NoError(t, err)
	orphan, created, err := previous.Enqueue(ctx, TaskTypeGenerate, Request{URL: run.URL, Language: run.Language}, dedupKey(run))
	require.NoError(t, err)
	require.True(t, created)
	ok, err := previous.Claim(ctx, orphan.ID)
	require.NoError(t, err)
	require.True(t, ok)

	tasks := NewTasks(taskqueue.NewService(rc), h.pipeline, time.Minute, nil)
	n, err := tasks.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := tasks.Get(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskFailed, got.Status)
	assert.Equal(t, InterruptedMessage, got.Error)

	task, err := tasks.Enqueue(ctx, Request{URL: testURL, Language: "en"})
	require.NoError(t, err)
	assert.NotEqual(t, orphan.ID, task.ID)
	tasks.Wait()
	assert.Equal(t, 1, h.source.Calls())

	got, err = tasks.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskCompleted, got.Status)
}
