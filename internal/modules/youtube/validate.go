package youtube

import (
	"fmt"
	"regexp"
	"strings"
)

const thumbnailURLPattern = "http://img.youtube.com/vi/%s/0.jpg"

// urlPattern is the single accepted link grammar. The identifier must be
// followed by the end of input or by one of ?&#/.
var urlPattern = regexp.MustCompile(
	`^(?:https?://)?(?:(?:www|m|music)\.)?` +
		`(?:youtube\.com/(?:watch\?(?:[^#\s]*&)?v=|embed/|v/|shorts/|live/)|youtu\.be/)` +
		`[A-Za-z0-9_-]{11}(?:[?&#/]\S*)?$`,
)

// Extraction forms in priority order: query parameter, short link, path.
var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]{11})(?:[?&#/]|$)`),
	regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{11})(?:[?&#/]|$)`),
	regexp.MustCompile(`/(?:embed|v|shorts|live)/([A-Za-z0-9_-]{11})(?:[?&#/]|$)`),
}

// IsValidURL reports whether s is a YouTube video link this service accepts.
func IsValidURL(s string) bool {
	return urlPattern.MatchString(s)
}

// ExtractVideoID returns the 11-character identifier embedded in s, or
// ("", false) when s is not an accepted link.
func ExtractVideoID(s string) (string, bool) {
	if !IsValidURL(s) {
		return "", false
	}
	// The fragment never names the video.
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	for _, re := range idPatterns {
		if m := re.FindStringSubmatch(s); len(m) == 2 {
			return m[1], true
		}
	}
	return "", false
}

func ThumbnailURL(videoID string) string {
	return fmt.Sprintf(thumbnailURLPattern, videoID)
}

// CanonicalURL is the watch URL handed to the audio downloader.
func CanonicalURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
