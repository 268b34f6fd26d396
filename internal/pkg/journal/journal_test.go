package journal

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	dir := t.TempDir()
	j, err := New(
		filepath.Join(dir, "logs", "processing.log"),
		filepath.Join(dir, "logs", "discussion.log"),
		filepath.Join(dir, "transcripts"),
	)
	require.NoError(t, err)
	j.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }
	return j, dir
}

func TestLogProcessing(t *testing.T) {
	j, dir := newTestJournal(t)
	require.NoError(t, j.LogProcessing("https://youtu.be/dQw4w9WgXcQ", "fr"))
	require.NoError(t, j.LogProcessing("https://youtu.be/aaaaaaaaaaa", "de"))

	data, err := os.ReadFile(filepath.Join(dir, "logs", "processing.log"))
	require.NoError(t, err)
	assert.Equal(t,
		"\n\n[2026-03-14 09:26:53] Processing: https://youtu.be/dQw4w9WgXcQ | Language: fr\n"+
			"\n\n[2026-03-14 09:26:53] Processing: https://youtu.be/aaaaaaaaaaa | Language: de\n",
		string(data))
}

func TestRecordDiscussion(t *testing.T) {
	j, dir := newTestJournal(t)
	require.NoError(t, j.RecordDiscussion("the prompt", "the answer"))

	data, err := os.ReadFile(filepath.Join(dir, "logs", "discussion.log"))
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "[2026-03-14 09:26:53]\nPROMPT:\nthe prompt\n\nRESPONSE:\nthe answer\n"))
	assert.Contains(t, text, discussionSeparator)
}

func TestSaveTranscriptNeverOverwrites(t *testing.T) {
	j, dir := newTestJournal(t)
	first, err := j.SaveTranscript("dQw4w9WgXcQ", "one")
	require.NoError(t, err)
	second, err := j.SaveTranscript("dQw4w9WgXcQ", "two")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "transcripts", "transcript_20260314_092653_dQw4w9WgXcQ.txt"), first)
	assert.Equal(t, filepath.Join(dir, "transcripts", "transcript_20260314_092653_dQw4w9WgXcQ_1.txt"), second)
	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
}

func TestConcurrentAppends(t *testing.T) {
	j, dir := newTestJournal(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, j.LogProcessing("https://youtu.be/dQw4w9WgXcQ", "en"))
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(filepath.Join(dir, "logs", "processing.log"))
	require.NoError(t, err)
	assert.Equal(t, 20, strings.Count(string(data), "Processing: "))
}

func TestDisabledFiles(t *testing.T) {
	j, err := New("", "", "")
	require.NoError(t, err)
	assert.NoError(t, j.LogProcessing("u", "en"))
	assert.NoError(t, j.RecordDiscussion("p", "r"))
	path, err := j.SaveTranscript("id", "text")
	assert.NoError(t, err)
	assert.Empty(t, path)
}
