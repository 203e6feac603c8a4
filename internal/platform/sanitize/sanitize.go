// Package sanitize normalizes user-supplied text before it is stored.
package sanitize

import (
	"regexp"
	"strings"
)

const (
	// MaxTags is the most tags a layout may carry.
	MaxTags = 8
	// MaxTagLength is the longest tag kept after normalization.
	MaxTagLength = 24
)

var (
	htmlTag    = regexp.MustCompile(`<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
	tagInvalid = regexp.MustCompile(`[^a-z0-9-]`)
)

// Text strips markup, collapses runs of whitespace into single spaces and
// truncates the result to maxRunes.
func Text(s string, maxRunes int) string {
	s = whitespace.ReplaceAllString(htmlTag.ReplaceAllString(s, ""), " ")
	return truncate(strings.TrimSpace(s), maxRunes)
}

// MultilineText is Text applied per line; blank lines are dropped.
func MultilineText(s string, maxRunes int) string {
	s = htmlTag.ReplaceAllString(s, "")
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(whitespace.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return truncate(strings.Join(kept, "\n"), maxRunes)
}

// Tag lowercases a tag and keeps only [a-z0-9-].
func Tag(s string) string {
	return tagInvalid.ReplaceAllString(strings.ToLower(Text(s, MaxTagLength)), "")
}

// Tags normalizes each tag, drops empties and duplicates (first wins) and keeps
// at most MaxTags. The result is never nil.
func Tags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		t := Tag(raw)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) >= MaxTags {
			break
		}
	}
	return out
}

func truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes])
}
