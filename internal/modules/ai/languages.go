package ai

import "strings"

// Language is one selectable output language.
type Language struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// SupportedLanguages is the closed set offered to users, in display order.
var SupportedLanguages = []Language{
	{Name: "english", Code: "en"},
	{Name: "arabic", Code: "ar"},
	{Name: "french", Code: "fr"},
	{Name: "german", Code: "de"},
	{Name: "italian", Code: "it"},
}

var languageCodeToName = map[string]string{
	"ar": "Arabic",
	"de": "German",
	"en": "English",
	"fr": "French",
	"it": "Italian",
}

// LookupLanguage accepts a selection by name ("french") or code ("fr") and
// returns its two-letter code.
func LookupLanguage(selection string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(selection))
	for _, lang := range SupportedLanguages {
		if s == lang.Name || s == lang.Code {
			return lang.Code, true
		}
	}
	return "", false
}

// LanguageName returns the display name used inside prompts.
func LanguageName(code string) string {
	if name, ok := languageCodeToName[strings.ToLower(strings.TrimSpace(code))]; ok {
		return name
	}
	return code
}
