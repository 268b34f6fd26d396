package youtube

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/go-ytdlp"
)

const audioFormat = "mp3"

// AudioDownloader fetches a video's audio track into a scratch directory
// through yt-dlp. Each download gets its own file name, so concurrent
// requests never share a file. Files stay held from the start of a download
// until Release, and PurgeStale never touches a held file.
type AudioDownloader struct {
	executable string
	dir        string
	timeout    time.Duration

	mu   sync.Mutex
	held map[string]struct{} // base paths without extension
}

// NewAudioDownloader builds a downloader. A positive timeout bounds each
// yt-dlp run.
func NewAudioDownloader(executable, dir string, timeout time.Duration) *AudioDownloader {
	return &AudioDownloader{
		executable: strings.TrimSpace(executable),
		dir:        dir,
		timeout:    timeout,
		held:       make(map[string]struct{}),
	}
}

func (d *AudioDownloader) Dir() string { return d.dir }

// DownloadAudio stores the audio of videoID and returns the file path. The
// caller must Release the path when done.
func (d *AudioDownloader) DownloadAudio(ctx context.Context, videoID string) (string, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	base := filepath.Join(d.dir, videoID+"-"+uuid.NewString())
	d.hold(base)

	path, err := d.download(ctx, videoID, base)
	if err != nil {
		d.unhold(base)
		return "", err
	}
	return path, nil
}

// Release deletes a file returned by DownloadAudio and lets PurgeStale see
// the name again.
func (d *AudioDownloader) Release(path string) error {
	base := baseOf(path)
	defer d.unhold(base)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	removeMatching(base)
	return nil
}

func (d *AudioDownloader) hold(base string) {
	d.mu.Lock()
	d.held[base] = struct{}{}
	d.mu.Unlock()
}

func (d *AudioDownloader) unhold(base string) {
	d.mu.Lock()
	delete(d.held, base)
	d.mu.Unlock()
}

// isHeld also matches yt-dlp's intermediate files (base.f251.webm.part, ...).
func (d *AudioDownloader) isHeld(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for base := range d.held {
		if strings.HasPrefix(path, base+".") {
			return true
		}
	}
	return false
}

func (d *AudioDownloader) download(ctx context.Context, videoID, base string) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	cmd := ytdlp.New().
		ExtractAudio().
		AudioFormat(audioFormat).
		NoPlaylist().
		Output(base + ".%(ext)s")
	if d.executable != "" {
		cmd = cmd.SetExecutable(d.executable)
	}

	if _, err := cmd.Run(ctx, CanonicalURL(videoID)); err != nil {
		removeMatching(base)
		return "", fmt.Errorf("yt-dlp %s: %w", videoID, err)
	}

	path := base + "." + audioFormat
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	// yt-dlp keeps the source container when post-processing is unavailable.
	matches, _ := filepath.Glob(base + ".*")
	if len(matches) == 0 {
		return "", fmt.Errorf("yt-dlp %s: no audio file produced", videoID)
	}
	return matches[0], nil
}

// PurgeStale removes scratch files older than maxAge that no run holds and
// reports how many went.
func (d *AudioDownloader) PurgeStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(d.dir, entry.Name())
		if d.isHeld(path) {
			continue
		}
		if os.Remove(path) == nil {
			removed++
		}
	}
	return removed, nil
}

// baseOf drops every extension, since neither video IDs nor UUIDs contain dots.
func baseOf(path string) string {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return filepath.Join(filepath.Dir(path), name)
}

func removeMatching(base string) {
	matches, _ := filepath.Glob(base + ".*")
	for _, m := range matches {
		_ = os.Remove(m)
	}
}
