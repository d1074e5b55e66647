package segment

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/apresai/paperq/internal/question"
)

// groupANoise is residual header text that survives Normalize inside the
// MCQ section: institution banners, paper codes and answer-format hints.
var groupANoise = []*regexp.Regexp{
	regexp.MustCompile(`(?is)Group\s*-?\s*A.*?Question\)`),
	regexp.MustCompile(`(?i)Answer any \w+ of the following\s*:?`),
	regexp.MustCompile(`(?i)\[\s*\d+\s*x\s*\d+\s*=\s*\d+\s*\]`),
	regexp.MustCompile(`(?i)Choose the correct option`),
	regexp.MustCompile(`(?i)Select the correct answer`),
	regexp.MustCompile(`(?i)Tick the correct option`),
	regexp.MustCompile(`(?i)The Figures in the margin indicate full marks`),
	regexp.MustCompile(`(?i)Candidates? are required to give their answers`),
	regexp.MustCompile(`(?i)Time Allotted\s*:\s*\d+\s*Hours?`),
	regexp.MustCompile(`(?i)Full Marks\s*:\s*\d+`),
	regexp.MustCompile(`(?i)Paper Code\s*:`),
	regexp.MustCompile(`(?i)UPID\s*:`),
	regexp.MustCompile(`(?i)MAULANA ABUL KALAM AZAD UNIVERSITY`),
	regexp.MustCompile(`(?i)CS/B\.TECH`),
	regexp.MustCompile(`(?i)---\s*Page\s*\d+\s*---`),
}

func cleanGroupA(section string) string {
	for _, re := range groupANoise {
		section = re.ReplaceAllString(section, "")
	}
	return section
}

var (
	reflowQuestionRe = regexp.MustCompile(`(^|\s+)((?:Q\.?\s*\d{1,2}\s*[.:]?|\(\d{1,2}\)|\d{1,2}[.)]))\s`)
	reflowOptionRe   = regexp.MustCompile(`\s+(\(?[a-dA-D]\))`)
	headerNumberRe   = regexp.MustCompile(`\d{1,2}`)
)

// reflow restores line structure in a section that Normalize flattened to a
// single line, putting each question header and option label on its own
// line so the line scanner can see them. A number only counts as a header
// when it continues the sequence (1, 2, 3...), or opens the section, so
// figures in the question body ("costs 10. The") stay inline.
func reflow(section string) string {
	if strings.Contains(section, "\n") {
		return section
	}
	var b strings.Builder
	next, last := 1, 0
	for _, m := range reflowQuestionRe.FindAllStringSubmatchIndex(section, -1) {
		header := section[m[4]:m[5]]
		n, _ := strconv.Atoi(headerNumberRe.FindString(header))
		if n != next && m[0] > 0 {
			continue
		}
		next = n + 1
		b.WriteString(section[last:m[0]])
		if m[0] > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(header)
		b.WriteByte(' ')
		last = m[1]
	}
	b.WriteString(section[last:])
	return reflowOptionRe.ReplaceAllString(b.String(), "\n$1")
}

// ParseGroupA parses the multiple-choice section. Strategies run in order
// and the first one to produce records wins.
func ParseGroupA(section string) []question.Record {
	recs, _ := parseGroupA(section)
	return recs
}

func parseGroupA(section string) ([]question.Record, string) {
	return runCascade(reflow(cleanGroupA(section)), mcqStrategies)
}

var mcqStrategies = []Strategy{
	{Name: "numbered", Parse: parseNumbered},
	{Name: "sentence", Parse: parseSentences},
	{Name: "line", Parse: parseLines},
}

var (
	headerRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(\d+)\.\s*(.+)`),
		regexp.MustCompile(`(?i)^(\d+)\)\s*(.+)`),
		regexp.MustCompile(`(?i)^\((\d+)\)\s*(.+)`),
		regexp.MustCompile(`(?i)^Q\.?\s*(\d+)\s*[.:]?\s*(.+)`),
	}
	optionRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^[()]*[a-d][)(]\s*(.+)`),
		regexp.MustCompile(`(?i)^[a-d][.:\-]\s*(.+)`),
		regexp.MustCompile(`(?i)^\([a-d]\)\s*(.+)`),
		regexp.MustCompile(`(?i)^[a-d]\s+(.+)`),
	}
)

// matchHeader returns the question body when line starts a numbered question.
func matchHeader(line string) (string, bool) {
	for _, re := range headerRes {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[2], true
		}
	}
	return "", false
}

func isOption(line string) bool {
	for _, re := range optionRes {
		if m := re.FindStringSubmatch(line); m != nil && runeLen(strings.TrimSpace(m[1])) > 2 {
			return true
		}
	}
	return false
}

type scanState int

const (
	idle scanState = iota
	accumulating
)

// mcqScanner assembles numbered questions line by line. It starts idle; a
// header line flushes any pending question and moves it to accumulating.
type mcqScanner struct {
	state   scanState
	text    string
	options []string
	out     *collector
}

func (s *mcqScanner) line(line string) {
	if body, ok := matchHeader(line); ok {
		if s.state == accumulating && s.text != "" {
			s.out.add(s.text, s.options)
		}
		s.state = accumulating
		s.text = body
		s.options = nil
		return
	}
	if s.state != accumulating {
		return
	}
	switch {
	case isOption(line):
		s.options = append(s.options, line)
	case runeLen(line) > 5:
		s.text += " " + line
	}
}

func (s *mcqScanner) finish() {
	if s.state == accumulating && runeLen(strings.TrimSpace(s.text)) > 10 {
		s.out.add(s.text, s.options)
	}
	s.state = idle
}

func parseNumbered(section string) []question.Record {
	sc := &mcqScanner{out: newCollector(question.GroupA, MaxMultipleChoice)}
	for _, raw := range strings.Split(section, "\n") {
		line := strings.TrimSpace(raw)
		if runeLen(line) < 3 {
			continue
		}
		sc.line(line)
	}
	sc.finish()
	if recs := sc.out.records(); len(recs) > 0 {
		return recs
	}
	return parseNumberedLoose(section)
}

var (
	numberDelimRe = regexp.MustCompile(`\d+\.\s*`)
	optionLabelRe = regexp.MustCompile(`(?:^|\s)([()]*[a-dA-D][)(])`)
)

// parseNumberedLoose handles numbered questions that are not at line starts:
// the text is cut at every "N." and each chunk's option runs are lifted out.
func parseNumberedLoose(section string) []question.Record {
	delims := numberDelimRe.FindAllStringIndex(section, -1)
	out := newCollector(question.GroupA, MaxMultipleChoice)
	for i, d := range delims {
		end := len(section)
		if i+1 < len(delims) {
			end = delims[i+1][0]
		}
		chunk := strings.TrimSpace(section[d[1]:end])
		if runeLen(chunk) <= 10 {
			continue
		}
		body, options := splitOptions(chunk)
		if runeLen(body) <= 5 {
			continue
		}
		if !out.add(body, options) {
			break
		}
	}
	return out.records()
}

// splitOptions removes labelled option runs from chunk. Each option runs from
// its label to the next label or the end of the line.
func splitOptions(chunk string) (string, []string) {
	labels := optionLabelRe.FindAllStringSubmatchIndex(chunk, -1)
	if len(labels) == 0 {
		return collapse(chunk), nil
	}
	var (
		body    strings.Builder
		options []string
		prev    int
	)
	for i, l := range labels {
		start := l[2]
		if start < prev {
			continue
		}
		end := len(chunk)
		if i+1 < len(labels) {
			end = labels[i+1][2]
		}
		if nl := strings.IndexAny(chunk[start:end], "\r\n"); nl >= 0 {
			end = start + nl
		}
		body.WriteString(chunk[prev:start])
		body.WriteByte(' ')
		if opt := collapse(chunk[start:end]); opt != "" {
			options = append(options, opt)
		}
		prev = end
	}
	body.WriteString(chunk[prev:])
	return collapse(body.String()), options
}

var sentenceSplitRe = regexp.MustCompile(`[.!]+`)

// parseSentences keeps one question per fragment long enough to be a real
// sentence: its text up to and including the first question mark.
func parseSentences(section string) []question.Record {
	out := newCollector(question.GroupA, MaxMultipleChoice)
	for _, frag := range sentenceSplitRe.Split(section, -1) {
		frag = strings.TrimSpace(frag)
		if runeLen(frag) <= 20 {
			continue
		}
		i := strings.IndexByte(frag, '?')
		if i < 0 {
			continue
		}
		clause := strings.TrimSpace(frag[:i])
		if clause == "" {
			continue
		}
		if !out.add(clause+"?", nil) {
			break
		}
	}
	return out.records()
}

var optionLineRe = regexp.MustCompile(`^[a-dA-D][)(]`)

// parseLines treats any longer punctuated line as a question, skipping lines
// that look like headers or options.
func parseLines(section string) []question.Record {
	out := newCollector(question.GroupA, MaxMultipleChoice)
	for _, raw := range strings.Split(section, "\n") {
		line := strings.TrimSpace(raw)
		if runeLen(line) <= 15 || !strings.ContainsAny(line, "?.:") {
			continue
		}
		if isUpper(line) || optionLineRe.MatchString(line) {
			continue
		}
		if !out.add(line, nil) {
			break
		}
	}
	return out.records()
}
