package telegram

import (
	"fmt"
	"strings"

	"feed_notifier/internal/model"
)

const messageLimit = 4096

// FormatDigest renders the new entries of a tag as plain text.
func FormatDigest(bucket model.TagBucket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %d new\n", bucket.Tag, len(bucket.Entries))
	for _, e := range bucket.Entries {
		fmt.Fprintf(&b, "\n%s\n%s\n%s\n", e.Title, e.Updated, e.URL)
	}
	return b.String()
}

// SplitMessage breaks text into parts within Telegram's message size limit,
// preferring newline boundaries.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= messageLimit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + messageLimit
		if end >= len(runes) {
			if chunk := strings.Trim(string(runes[start:]), "\n"); chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}

		split := -1
		for i := end; i > start; i-- {
			if runes[i-1] == '\n' {
				split = i
				break
			}
		}
		if split == -1 {
			split = end
		}

		if chunk := strings.Trim(string(runes[start:split]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}

		start = split
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}
	return parts
}
