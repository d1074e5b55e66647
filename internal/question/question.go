package question

import (
	"fmt"
	"strings"
)

// Group identifies the exam section a question was found in.
type Group string

const (
	GroupA Group = "A"
	GroupB Group = "B"
	GroupC Group = "C"
)

// Groups lists the exam sections in emission order.
var Groups = []Group{GroupA, GroupB, GroupC}

// Label returns the marker form used in papers, e.g. "Group-A".
func (g Group) Label() string {
	return "Group-" + string(g)
}

func (g Group) String() string {
	return string(g)
}

// Kind returns the question type implied by the group.
func (g Group) Kind() Kind {
	switch g {
	case GroupA:
		return MultipleChoice
	case GroupB:
		return ShortAnswer
	default:
		return LongAnswer
	}
}

// ParseGroup accepts "A", "a", "Group-A" or "Group A".
func ParseGroup(s string) (Group, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "GROUP")
	v = strings.TrimLeft(v, "-_ ")
	switch Group(v) {
	case GroupA, GroupB, GroupC:
		return Group(v), nil
	}
	return "", fmt.Errorf("unknown group %q", s)
}

// Kind is the question type.
type Kind string

const (
	MultipleChoice Kind = "MCQ"
	ShortAnswer    Kind = "Short Answer"
	LongAnswer     Kind = "Long Answer"
)

// Record is one extracted question. Number is 1-based within its group and
// reflects emission order, not any number printed in the paper.
type Record struct {
	Group   Group    `json:"group"`
	Number  int      `json:"question_number"`
	Kind    Kind     `json:"type"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// New builds a record for group g. The options slice is copied so the
// record does not share backing storage with the caller.
func New(g Group, number int, text string, options []string) Record {
	var opts []string
	if len(options) > 0 {
		opts = make([]string, len(options))
		copy(opts, options)
	}
	return Record{
		Group:   g,
		Number:  number,
		Kind:    g.Kind(),
		Text:    text,
		Options: opts,
	}
}

// ID is a stable key for the record inside one paper, e.g. "A-03".
func (r Record) ID() string {
	return fmt.Sprintf("%s-%02d", r.Group, r.Number)
}

// Prompt renders the record the way answer generators receive it.
func (r Record) Prompt() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\nQuestion %d:\n%s", r.Group.Label(), r.Number, r.Text)
	if len(r.Options) > 0 {
		sb.WriteString("\nOptions:\n")
		sb.WriteString(strings.Join(r.Options, "\n"))
	}
	return sb.String()
}

// CountByGroup tallies records per group.
func CountByGroup(records []Record) map[Group]int {
	counts := make(map[Group]int, len(Groups))
	for _, r := range records {
		counts[r.Group]++
	}
	return counts
}
