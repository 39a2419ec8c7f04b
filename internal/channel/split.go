package channel

import (
	"strings"
	"unicode/utf8"
)

// splitMessage cuts msg into parts of at most maxLen characters, preferring
// to break after a newline in the second half of a part.
func splitMessage(msg string, maxLen int) []string {
	if maxLen <= 0 || utf8.RuneCountInString(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for msg != "" {
		if utf8.RuneCountInString(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		limit := byteOffset(msg, maxLen)
		cut := limit
		if idx := strings.LastIndex(msg[:limit], "\n"); idx > limit/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

// byteOffset returns the byte index just past the first n runes of s.
func byteOffset(s string, n int) int {
	i := 0
	for range n {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}
