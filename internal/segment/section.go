package segment

import (
	"regexp"
	"strings"
)

// Marker texts for the section boundaries of a paper.
const (
	MarkerGroupA     = "Group-A"
	MarkerGroupB     = "Group-B"
	MarkerGroupC     = "Group-C"
	MarkerEndOfPaper = "END OF PAPER"
)

// groupAHeaderRe covers a Group-A header broken across lines with its
// instruction text, e.g. "Group - A\n( Very Short Answer Type Question)".
var groupAHeaderRe = regexp.MustCompile(`(?is)Group\s*-?\s*A.*?Question\)`)

// instructionRes are skipped when they directly follow a start marker.
var instructionRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^Answer any \w+ of the following\s*:?`),
	regexp.MustCompile(`(?i)^\[\s*\d+\s*x\s*\d+\s*=\s*\d+\s*\]`),
	regexp.MustCompile(`(?i)^\(?\s*Very Short Answer Type Questions?\s*\)?`),
	regexp.MustCompile(`(?i)^\(?\s*Short Answer Type Questions?\s*\)?`),
	regexp.MustCompile(`(?i)^\(?\s*Long Answer Type Questions?\s*\)?`),
}

// markerVariants lists the literal spellings tried for a marker, in order.
func markerVariants(marker string) []string {
	return []string{
		marker,
		strings.ReplaceAll(marker, "-", ""),
		strings.ReplaceAll(marker, "-", " "),
		strings.ToUpper(marker),
		strings.ToLower(marker),
	}
}

// findMarker returns the byte span of the first variant of marker found in
// text. The first variant that matches wins, not the earliest position.
func findMarker(text, marker string) (start, end int, ok bool) {
	for _, v := range markerVariants(marker) {
		if i := strings.Index(text, v); i >= 0 {
			return i, i + len(v), true
		}
	}
	if marker == MarkerGroupA {
		if loc := groupAHeaderRe.FindStringIndex(text); loc != nil {
			return loc[0], loc[1], true
		}
	}
	return 0, 0, false
}

// skipInstructions advances past instruction phrases sitting between a group
// marker and its first question.
func skipInstructions(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n:-–.")
		advanced := false
		for _, re := range instructionRes {
			if loc := re.FindStringIndex(s); loc != nil && loc[1] > 0 {
				s = s[loc[1]:]
				advanced = true
			}
		}
		if !advanced {
			return s
		}
	}
}

// sectionSpan is the outcome of locating one section.
type sectionSpan struct {
	text       string
	startFound bool
	endFound   bool
}

func locateSection(text, startMarker, endMarker string) sectionSpan {
	_, markEnd, ok := findMarker(text, startMarker)
	if !ok {
		return sectionSpan{text: text}
	}
	rest := skipInstructions(text[markEnd:])
	span := sectionSpan{startFound: true}
	if i, _, found := findMarker(rest, endMarker); found {
		rest = rest[:i]
		span.endFound = true
	}
	span.text = strings.TrimSpace(rest)
	return span
}

// ExtractSection returns the text between startMarker and endMarker, with the
// group header and its instructions skipped. A missing start marker yields
// the whole input unchanged; a missing end marker runs the section to the end
// of the input.
func ExtractSection(text, startMarker, endMarker string) string {
	return locateSection(text, startMarker, endMarker).text
}
