package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderNotes(t *testing.T) {
	html := RenderNotes("# Main Points\n\n- **Go** is fast\n- ~~slow~~\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
	assert.Contains(t, html, "<h1>Main Points</h1>")
	assert.Contains(t, html, "<strong>Go</strong>")
	assert.Contains(t, html, "<del>slow</del>")
	assert.Contains(t, html, "<table>")
	assert.Empty(t, RenderNotes("  \n "))
}

func TestRenderNotesDropsRawHTML(t *testing.T) {
	html := RenderNotes("hello <script>alert(1)</script>")
	assert.NotContains(t, html, "<script>")
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Key Ideas", Title("intro\n\n## **Key Ideas** ##\n# Later", "x"))
	assert.Equal(t, "fallback", Title("no headings here", "fallback"))
}

func TestRenderDocument(t *testing.T) {
	doc := RenderDocument("# Notes Title\n\nBody", DocumentOptions{
		Language:     "ar",
		SourceURL:    "https://youtu.be/dQw4w9WgXcQ",
		ThumbnailURL: "http://img.youtube.com/vi/dQw4w9WgXcQ/0.jpg",
	})
	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
	assert.Contains(t, doc, `<html lang="ar" dir="rtl">`)
	assert.Contains(t, doc, "<title>Notes Title</title>")
	assert.Contains(t, doc, `<img src="http://img.youtube.com/vi/dQw4w9WgXcQ/0.jpg"`)
	assert.Contains(t, doc, "<h1>Notes Title</h1>")

	plain := RenderDocument("Body", DocumentOptions{Title: "A & B"})
	assert.Contains(t, plain, `<html lang="en" dir="ltr">`)
	assert.Contains(t, plain, "<title>A &amp; B</title>")
	assert.NotContains(t, plain, "<header>")
}
