// Package journal keeps the flat side files of the notes pipeline: the
// processing log, the model discussion log and one text file per transcript.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultFilePerm = 0o644
	defaultDirPerm  = 0o755

	processingTimeLayout = "2006-01-02 15:04:05"
	transcriptTimeLayout = "20060102_150405"
	discussionSeparator  = "----------------------------------------"
)

// Journal appends to its files under a mutex, so concurrent requests never
// interleave half-written entries.
type Journal struct {
	mu             sync.Mutex
	processingPath string
	discussionPath string
	transcriptDir  string
	now            func() time.Time
}

// New prepares the directories for every non-empty path. An empty path turns
// that file off.
func New(processingPath, discussionPath, transcriptDir string) (*Journal, error) {
	for _, dir := range []string{parentDir(processingPath), parentDir(discussionPath), transcriptDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
			return nil, fmt.Errorf("create journal dir %q: %w", dir, err)
		}
	}
	return &Journal{
		processingPath: processingPath,
		discussionPath: discussionPath,
		transcriptDir:  transcriptDir,
		now:            time.Now,
	}, nil
}

func parentDir(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	return filepath.Dir(path)
}

// LogProcessing appends one timestamped line for a pipeline run.
func (j *Journal) LogProcessing(url, language string) error {
	if j.processingPath == "" {
		return nil
	}
	entry := fmt.Sprintf("\n\n[%s] Processing: %s | Language: %s\n", j.now().Format(processingTimeLayout), url, language)
	return j.append(j.processingPath, entry)
}

// RecordDiscussion appends one prompt/response pair.
func (j *Journal) RecordDiscussion(prompt, response string) error {
	if j.discussionPath == "" {
		return nil
	}
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(j.now().Format(processingTimeLayout))
	b.WriteString("]\nPROMPT:\n")
	b.WriteString(prompt)
	b.WriteString("\n\nRESPONSE:\n")
	b.WriteString(response)
	b.WriteString("\n")
	b.WriteString(discussionSeparator)
	b.WriteString("\n")
	return j.append(j.discussionPath, b.String())
}

// SaveTranscript writes text to a new timestamped file and returns its path.
func (j *Journal) SaveTranscript(videoID, text string) (string, error) {
	if j.transcriptDir == "" {
		return "", nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	base := "transcript_" + j.now().Format(transcriptTimeLayout)
	if videoID != "" {
		base += "_" + videoID
	}
	for i := 0; ; i++ {
		name := base + ".txt"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.txt", base, i)
		}
		path := filepath.Join(j.transcriptDir, name)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, defaultFilePerm)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create transcript file: %w", err)
		}
		_, writeErr := file.WriteString(text)
		closeErr := file.Close()
		if writeErr != nil {
			return "", writeErr
		}
		if closeErr != nil {
			return "", closeErr
		}
		return path, nil
	}
}

func (j *Journal) append(path, entry string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return err
	}
	_, writeErr := file.WriteString(entry)
	closeErr := file.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}
