package segment

import (
	"regexp"
	"unicode/utf8"

	"github.com/apresai/paperq/internal/question"
)

var (
	// writtenMarkerRe matches "Question 3:", "Q3." or a bare "3" in front of a
	// question body.
	writtenMarkerRe = regexp.MustCompile(`(?i)(?:Question\s*)?Q?(\d+)[:.]?\s*`)
	// writtenBoundaryRe is the stricter form that ends a body: the number
	// must be followed by ':' or '.'.
	writtenBoundaryRe = regexp.MustCompile(`(?i)(?:Question\s*)?Q?\d+[:.]`)
)

// ParseGroupB parses the short-answer section.
func ParseGroupB(section string) []question.Record {
	return parseWritten(section, question.GroupB, MaxShortAnswer)
}

// ParseGroupC parses the long-answer section.
func ParseGroupC(section string) []question.Record {
	return parseWritten(section, question.GroupC, MaxLongAnswer)
}

// parseWritten sweeps the section for question markers. Each body runs from
// its marker to the next boundary or the end of the section.
func parseWritten(section string, g question.Group, limit int) []question.Record {
	out := newCollector(g, limit)
	pos := 0
	for pos < len(section) {
		m := writtenMarkerRe.FindStringIndex(section[pos:])
		if m == nil {
			break
		}
		bodyStart := pos + m[1]
		if bodyStart >= len(section) {
			break
		}
		// A body is at least one character long, so the search for the
		// next boundary starts after its first rune.
		_, size := utf8.DecodeRuneInString(section[bodyStart:])
		end := len(section)
		if b := writtenBoundaryRe.FindStringIndex(section[bodyStart+size:]); b != nil {
			end = bodyStart + size + b[0]
		}
		if !out.add(section[bodyStart:end], nil) {
			break
		}
		pos = end
	}
	return out.records()
}
