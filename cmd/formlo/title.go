package main

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"formlo/internal/api"
)

// displayTitle prefers the backend's title and falls back to a cleaned-up
// version of the source filename for records created before titles existed.
func displayTitle(record api.FormRecord) string {
	if title := strings.TrimSpace(record.FormTitle); title != "" {
		return title
	}
	return titleFromFilename(record.OriginalFilename)
}

func titleFromFilename(filename string) string {
	if filename == "" {
		return "Untitled Form"
	}
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return "Untitled Form"
	}
	return cases.Title(language.Und).String(title)
}
