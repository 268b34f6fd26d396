package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NotesRecord is one finished pipeline run.
type NotesRecord struct {
	Base
	Hash           string `json:"-"             gorm:"size:64;index;not null"` // NotesHash(video_id, language)
	VideoID        string `json:"video_id"      gorm:"size:16;index;not null"`
	URL            string `json:"url"           gorm:"type:text;not null"`
	Language       string `json:"language"      gorm:"size:8;not null"`
	Source         string `json:"source"        gorm:"size:32"`
	Transcript     string `json:"transcript"    gorm:"type:longtext"`
	Notes          string `json:"notes"         gorm:"type:longtext;not null"`
	ThumbnailURL   string `json:"thumbnail_url" gorm:"size:255"`
	TranscriptFile string `json:"-"             gorm:"size:512"`
	NotesKey       string `json:"-"             gorm:"size:512"`
	TranscriptKey  string `json:"-"             gorm:"size:512"`

	// Download links are presigned per response from the keys above.
	NotesURL      string `json:"notes_url,omitempty"      gorm:"-"`
	TranscriptURL string `json:"transcript_url,omitempty" gorm:"-"`
}

func (NotesRecord) TableName() string { return "notes_records" }

// NotesHash keys the latest record for a video and language.
func NotesHash(videoID, language string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(videoID) + ":" + strings.ToLower(strings.TrimSpace(language))))
	return hex.EncodeToString(sum[:])
}
