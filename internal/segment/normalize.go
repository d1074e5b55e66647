package segment

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// rewrite is one ordered boilerplate rule.
type rewrite struct {
	re   *regexp.Regexp
	with string
}

// deletions builds rules that replace each match with a space. Patterns that
// start with a letter only match at a word start, so a removal can never
// splice two word halves into a new match.
func deletions(patterns ...string) []rewrite {
	out := make([]rewrite, len(patterns))
	for i, p := range patterns {
		if unicode.IsLetter(rune(p[0])) {
			p = `\b` + p
		}
		out[i] = rewrite{re: regexp.MustCompile(`(?i)` + p), with: " "}
	}
	return out
}

// maxNormalizePasses bounds the fixed-point loop in Normalize. Ordinary
// papers settle in two passes; only deliberately nested boilerplate needs
// more.
const maxNormalizePasses = 8

// Group headers keep their bare marker so the section splitter can still find
// them; only the parenthetical instruction is dropped.
var boilerplate = concat(
	[]rewrite{
		{re: regexp.MustCompile(`(?i)\bGroup\s*-\s*A\s*\(Very Short Answer Type Question\)`), with: " Group-A "},
		{re: regexp.MustCompile(`(?i)\bGroup\s*-\s*B\s*\([^)]+\)`), with: " Group-B "},
		{re: regexp.MustCompile(`(?i)\bGroup\s*-\s*C\s*\([^)]+\)`), with: " Group-C "},
	},
	// Maximum and Full Marks run before the bare Marks rule so their
	// qualifier is removed with them.
	deletions(
		`Answer any ten of the following\s*:?`,
		`Answer any \w+ of the following\s*:?`,
		`\[\s*\d+\s*x\s*\d+\s*=\s*\d+\s*\]`,
		`End of paper`,
		`Time\s*:\s*\d+\s*hours?`,
		`Maximum Marks?\s*:\s*\d+`,
		`Full Marks?\s*:\s*\d+`,
		`Marks?\s*:\s*\d+`,
		`Instructions?\s*:`,
		`Note\s*:`,
		`Attempt any \w+ questions?`,
		`All questions? are compulsory`,
		`Page\s*\d+\s*of\s*\d+`,
		`---\s*Page\s*\d+\s*---`,
		`Question Paper Code\s*:`,
		`Roll No\.?\s*:`,
		`Name\s*:`,
		`Subject\s*:`,
		`Course\s*:`,
		`Semester\s*:`,
		`Date\s*:`,
		`Duration\s*:`,
	),
)

var (
	blankLinesRe = regexp.MustCompile(`\n\s*\n`)
	spaceRunRe   = regexp.MustCompile(`\s+`)
)

// Normalize strips administrative boilerplate from raw paper text and
// collapses whitespace. The passes repeat until the text stops changing, so
// Normalize(Normalize(x)) == Normalize(x) for any text that settles within
// maxNormalizePasses.
func Normalize(raw string) string {
	s, _ := normalize(raw)
	return s
}

// normalize is Normalize that also reports whether a fixed point was reached.
func normalize(raw string) (string, bool) {
	s := raw
	for range maxNormalizePasses {
		next := normalizeOnce(s)
		if next == s {
			return next, true
		}
		s = next
	}
	return s, normalizeOnce(s) == s
}

func normalizeOnce(s string) string {
	for _, rw := range boilerplate {
		s = rw.re.ReplaceAllString(s, rw.with)
	}
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// collapse joins all whitespace runs into single spaces and trims the ends.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// isUpper reports whether s has at least one cased letter and no lower-case
// letters.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}

func concat(lists ...[]rewrite) []rewrite {
	var out []rewrite
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
