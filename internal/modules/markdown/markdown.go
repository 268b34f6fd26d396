// Package markdown renders generated notes into standalone HTML pages.
package markdown

import (
	"bytes"
	"html/template"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Table,
		extension.Strikethrough,
		extension.TaskList,
		extension.Linkify,
		extension.Typographer,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
		htmlrenderer.WithXHTML(),
	),
)

var headingPattern = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+(.+?)\s*#*\s*$`)

// rtlLanguages are written right to left.
var rtlLanguages = map[string]bool{"ar": true}

const notesStyle = `
      body { margin: 0 auto; max-width: 860px; padding: 2em 1.5em; color: #222;
        font: 16px/1.7 -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; }
      h1, h2, h3 { line-height: 1.3; margin-top: 1.6em; }
      h1 { border-bottom: 1px solid #eee; padding-bottom: .3em; }
      blockquote { margin: 1em 0; padding: 0 1em; color: #555; border-left: 4px solid #ddd; }
      [dir="rtl"] blockquote { border-left: 0; border-right: 4px solid #ddd; }
      code { background: #f5f5f5; padding: .1em .3em; border-radius: 3px; }
      pre code { display: block; padding: 1em; overflow-x: auto; }
      table { border-collapse: collapse; }
      th, td { border: 1px solid #ddd; padding: .4em .8em; }
      header img { max-width: 100%; border-radius: 6px; }`

// DocumentOptions describes the page wrapped around rendered notes.
type DocumentOptions struct {
	Title        string
	Language     string
	SourceURL    string
	ThumbnailURL string
}

// RenderNotes converts notes markdown to an HTML fragment. Raw HTML in the
// input is dropped.
func RenderNotes(markdownText string) string {
	text := strings.TrimSpace(markdownText)
	if text == "" {
		return ""
	}
	var out bytes.Buffer
	if err := markdownEngine.Convert([]byte(text), &out); err != nil {
		return "<pre>" + template.HTMLEscapeString(text) + "</pre>"
	}
	return out.String()
}

// Title returns the text of the first markdown heading, or fallback.
func Title(markdownText, fallback string) string {
	match := headingPattern.FindStringSubmatch(markdownText)
	if len(match) < 2 {
		return fallback
	}
	title := strings.Trim(strings.TrimSpace(match[1]), "*_")
	if title == "" {
		return fallback
	}
	return title
}

// RenderDocument wraps the rendered notes into a full HTML page.
func RenderDocument(markdownText string, options DocumentOptions) string {
	var b strings.Builder
	b.Grow(4096)

	lang := strings.TrimSpace(options.Language)
	if lang == "" {
		lang = "en"
	}
	dir := "ltr"
	if rtlLanguages[lang] {
		dir = "rtl"
	}
	title := strings.TrimSpace(options.Title)
	if title == "" {
		title = Title(markdownText, "Smart Notes")
	}

	b.WriteString("<!DOCTYPE html>\n<html lang=\"")
	b.WriteString(template.HTMLEscapeString(lang))
	b.WriteString("\" dir=\"")
	b.WriteString(dir)
	b.WriteString("\">\n")
	b.WriteString("  <head>\n")
	b.WriteString("    <meta charset=\"UTF-8\" />\n")
	b.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\" />\n")
	b.WriteString("    <meta name=\"referrer\" content=\"no-referrer\" />\n")
	b.WriteString("    <style>")
	b.WriteString(notesStyle)
	b.WriteString("\n    </style>\n")
	b.WriteString("    <title>")
	b.WriteString(template.HTMLEscapeString(title))
	b.WriteString("</title>\n")
	b.WriteString("  </head>\n")
	b.WriteString("  <body>\n")

	if options.ThumbnailURL != "" || options.SourceURL != "" {
		b.WriteString("    <header>\n")
		if thumb := strings.TrimSpace(options.ThumbnailURL); thumb != "" {
			b.WriteString("      <img src=\"")
			b.WriteString(template.HTMLEscapeString(thumb))
			b.WriteString("\" alt=\"\" />\n")
		}
		if src := strings.TrimSpace(options.SourceURL); src != "" {
			escaped := template.HTMLEscapeString(src)
			b.WriteString("      <p><a href=\"")
			b.WriteString(escaped)
			b.WriteString("\" rel=\"noreferrer nofollow\" target=\"_blank\">")
			b.WriteString(escaped)
			b.WriteString("</a></p>\n")
		}
		b.WriteString("    </header>\n")
	}

	b.WriteString("    <article>\n")
	b.WriteString(RenderNotes(markdownText))
	b.WriteString("    </article>\n")
	b.WriteString("  </body>\n")
	b.WriteString("</html>")
	return b.String()
}
