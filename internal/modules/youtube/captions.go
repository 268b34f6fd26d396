package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrTranscriptsDisabled means the video carries no caption tracks at all.
	ErrTranscriptsDisabled = errors.New("transcripts are disabled for this video")
	// ErrNoTranscriptFound means tracks exist but none in a requested language.
	ErrNoTranscriptFound = errors.New("no transcript found in the requested languages")
)

const (
	defaultWatchURL  = "https://www.youtube.com/watch"
	userAgentChrome  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	playerRespMarker = "ytInitialPlayerResponse = "
	maxWatchPageSize = 8 << 20
	maxTimedTextSize = 2 << 20
)

// Captions is the text of one caption track.
type Captions struct {
	Text      string
	Language  string
	Generated bool
}

// CaptionsClient reads caption tracks the way the watch page exposes them.
type CaptionsClient struct {
	httpClient *http.Client
	watchURL   string
}

func NewCaptionsClient(httpClient *http.Client, watchURL string) *CaptionsClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if strings.TrimSpace(watchURL) == "" {
		watchURL = defaultWatchURL
	}
	return &CaptionsClient{httpClient: httpClient, watchURL: watchURL}
}

// FetchCaptions returns the caption text for videoID in the first of langs
// that has a track. It returns ErrTranscriptsDisabled or ErrNoTranscriptFound
// (wrapped) when no captions are usable; any other error is an upstream failure.
func (c *CaptionsClient) FetchCaptions(ctx context.Context, videoID string, langs []string) (Captions, error) {
	tracks, err := c.listTracks(ctx, videoID)
	if err != nil {
		return Captions{}, err
	}
	if len(tracks) == 0 {
		return Captions{}, fmt.Errorf("video %s: %w", videoID, ErrTranscriptsDisabled)
	}

	track, ok := pickBestTrack(tracks, langs)
	if !ok {
		return Captions{}, fmt.Errorf("video %s, languages %v: %w", videoID, langs, ErrNoTranscriptFound)
	}

	text, err := c.fetchTimedText(ctx, track.BaseURL)
	if err != nil {
		return Captions{}, err
	}
	if text == "" {
		return Captions{}, fmt.Errorf("video %s: empty %s track: %w", videoID, track.LanguageCode, ErrNoTranscriptFound)
	}
	return Captions{Text: text, Language: track.LanguageCode, Generated: track.Kind == "asr"}, nil
}

func (c *CaptionsClient) listTracks(ctx context.Context, videoID string) ([]captionTrack, error) {
	u, err := url.Parse(c.watchURL)
	if err != nil {
		return nil, fmt.Errorf("parse watch url: %w", err)
	}
	q := u.Query()
	q.Set("v", videoID)
	q.Set("hl", "en")
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, u.String(), maxWatchPageSize)
	if err != nil {
		return nil, fmt.Errorf("fetch watch page: %w", err)
	}

	idx := bytes.Index(body, []byte(playerRespMarker))
	if idx < 0 {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	raw := extractJSON(body[idx+len(playerRespMarker):])
	if raw == nil {
		return nil, errors.New("failed to extract ytInitialPlayerResponse JSON")
	}

	var resp playerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	if st := resp.PlayabilityStatus; st != nil && st.Status != "" && st.Status != "OK" {
		return nil, fmt.Errorf("video %s is not playable: %s %s", videoID, st.Status, st.Reason)
	}
	if resp.Captions == nil {
		return nil, nil
	}
	return resp.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks, nil
}

func (c *CaptionsClient) fetchTimedText(ctx context.Context, baseURL string) (string, error) {
	body, err := c.get(ctx, baseURL, maxTimedTextSize)
	if err != nil {
		return "", fmt.Errorf("fetch timedtext: %w", err)
	}
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", fmt.Errorf("parse timedtext XML: %w", err)
	}
	fragments := make([]string, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		fragments = append(fragments, line.Text)
	}
	return JoinFragments(fragments), nil
}

func (c *CaptionsClient) get(ctx context.Context, target string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgentChrome)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

// JoinFragments unescapes and trims caption fragments and joins the
// non-empty ones with single spaces, keeping their order.
func JoinFragments(fragments []string) string {
	var sb strings.Builder
	for _, fragment := range fragments {
		text := cleanFragment(fragment)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}
	return sb.String()
}

func cleanFragment(s string) string {
	// timedtext double-escapes entities such as &amp;#39;
	s = html.UnescapeString(html.UnescapeString(s))
	return strings.Join(strings.Fields(s), " ")
}

// pickBestTrack walks langs in priority order and, for each language, prefers
// a manual track over an auto-generated one.
func pickBestTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	for _, lang := range langs {
		var generated *captionTrack
		for i, t := range tracks {
			if !matchesLanguage(t.LanguageCode, lang) {
				continue
			}
			if t.Kind != "asr" {
				return t, true
			}
			if generated == nil {
				generated = &tracks[i]
			}
		}
		if generated != nil {
			return *generated, true
		}
	}
	return captionTrack{}, false
}

// matchesLanguage treats regional variants (en-US, pt-BR) as their base code.
func matchesLanguage(trackCode, want string) bool {
	if strings.EqualFold(trackCode, want) {
		return true
	}
	base, _, found := strings.Cut(trackCode, "-")
	return found && strings.EqualFold(base, want)
}

// extractJSON returns the balanced JSON object at the start of b.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}
