package queue

import (
	"fmt"
	"path/filepath"
	"strings"
)

// StagingRoot returns the per-item staging directory rooted at base. The
// segment is keyed on the item ID so reruns of the same session never collide,
// with the piece title appended for operator readability.
func (i Item) StagingRoot(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	segment := fmt.Sprintf("item-%d", i.ID)
	if slug := sanitizeSegment(i.PieceTitle); slug != "" {
		segment = segment + "-" + slug
	}
	return filepath.Join(base, segment)
}

func sanitizeSegment(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(value))
	lastDash := false
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
