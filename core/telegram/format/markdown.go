// Package format escapes user text for Telegram parse modes.
package format

import (
	"fmt"
	"strings"
)

// Telegram markdown versions.
const (
	MarkdownV1 = 1
	MarkdownV2 = 2
)

var escapers = map[int]*strings.Replacer{
	MarkdownV1: escaper("_*`["),
	MarkdownV2: escaper("_*[]()~`>#+-=|{}.!\\"),
}

func escaper(specials string) *strings.Replacer {
	pairs := make([]string, 0, 2*len(specials))
	for _, r := range specials {
		pairs = append(pairs, string(r), `\`+string(r))
	}
	return strings.NewReplacer(pairs...)
}

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
func EscapeMarkdown(text string, version int) (string, error) {
	r, ok := escapers[version]
	if !ok {
		return "", fmt.Errorf("unsupported markdown version: %d", version)
	}
	return r.Replace(text), nil
}

// MD escapes user supplied text for legacy Markdown messages.
func MD(text string) string {
	return escapers[MarkdownV1].Replace(text)
}
