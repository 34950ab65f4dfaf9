// Package tags pulls #hashtags out of free-text activity descriptions.
package tags

import "strings"

// Marker introduces a tag token.
const Marker = '#'

// Result holds the description with tags removed and the tags in order of
// appearance. Duplicates are kept.
type Result struct {
	Text string
	Tags []string
}

// Extractor is a stateless tag extractor, usable where an interface value is needed.
type Extractor struct{}

// Extract implements tag extraction; see the package-level Extract.
func (Extractor) Extract(raw string) Result {
	return Extract(raw)
}

// Extract splits raw into words, treating every word that starts with Marker
// and has at least one more character as a tag. When tags are found the
// remaining words are re-joined with single spaces; otherwise the text is
// only trimmed.
func Extract(raw string) Result {
	words := strings.Fields(raw)
	tags := make([]string, 0, 2)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) > 1 && w[0] == Marker {
			tags = append(tags, w[1:])
			continue
		}
		kept = append(kept, w)
	}
	if len(tags) == 0 {
		return Result{Text: strings.TrimSpace(raw), Tags: tags}
	}
	return Result{Text: strings.Join(kept, " "), Tags: tags}
}
