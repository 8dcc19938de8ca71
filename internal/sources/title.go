package sources

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// InferTitle derives a human-readable piece title from the session directory
// name. Separators collapse to single spaces and the result is title-cased.
func InferTitle(sessionPath string) string {
	if sessionPath == "" {
		return "Untitled Piece"
	}
	base := filepath.Base(filepath.Clean(sessionPath))
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
		return "Untitled Piece"
	}
	return cases.Title(language.Und).String(title)
}
