package format

import (
	"strings"
	"unicode/utf8"
)

// MessageLimit is the longest text Telegram accepts in one message.
const MessageLimit = 4096

// SplitPages cuts text into pages of at most limit runes, breaking on line
// boundaries. Lines longer than limit are cut mid-line.
func SplitPages(text string, limit int) []string {
	if limit <= 0 {
		limit = MessageLimit
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		pages []string
		lines []string
		size  int
	)
	flush := func() {
		if len(lines) > 0 {
			pages = append(pages, strings.Join(lines, "\n"))
			lines, size = nil, 0
		}
	}
	for _, line := range strings.Split(text, "\n") {
		for utf8.RuneCountInString(line) > limit {
			flush()
			cut := byteOffset(line, limit)
			pages = append(pages, line[:cut])
			line = line[cut:]
		}
		n := utf8.RuneCountInString(line)
		if len(lines) > 0 && size+1+n > limit {
			flush()
		}
		if len(lines) > 0 {
			size++
		}
		size += n
		lines = append(lines, line)
	}
	flush()
	return pages
}

func byteOffset(s string, runes int) int {
	i := 0
	for pos := range s {
		if i == runes {
			return pos
		}
		i++
	}
	return len(s)
}
