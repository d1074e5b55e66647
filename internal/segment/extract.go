// Package segment turns the extracted text of an exam paper into question
// records. It normalises the text, splits it into the Group-A/B/C sections
// and runs a parser per section. Nothing in this package performs I/O or
// returns an error: missing markers and unrecognised layouts degrade to
// fewer records.
package segment

import (
	"fmt"

	"github.com/apresai/paperq/internal/question"
)

// EventKind names a diagnostic event.
type EventKind string

const (
	SectionFound      EventKind = "section_found"
	SectionMissing    EventKind = "section_missing"
	StrategySelected  EventKind = "strategy_selected"
	StrategyExhausted EventKind = "strategy_exhausted"
	GroupParsed       EventKind = "group_parsed"
)

// Event is a diagnostic emitted while extracting. Count is the number of
// records for the group; Chars is the section length.
type Event struct {
	Kind     EventKind
	Group    question.Group
	Strategy string
	Count    int
	Chars    int
	Detail   string
}

// Observer receives diagnostic events. It must not retain or modify the
// records it is told about.
type Observer func(Event)

// NopObserver discards all events.
func NopObserver(Event) {}

type groupPlan struct {
	group question.Group
	start string
	end   string
	parse func(string) ([]question.Record, string)
}

var plans = []groupPlan{
	{question.GroupA, MarkerGroupA, MarkerGroupB, parseGroupA},
	{question.GroupB, MarkerGroupB, MarkerGroupC, single("regex", ParseGroupB)},
	{question.GroupC, MarkerGroupC, MarkerEndOfPaper, single("regex", ParseGroupC)},
}

func single(name string, fn func(string) []question.Record) func(string) ([]question.Record, string) {
	return func(s string) ([]question.Record, string) {
		if recs := fn(s); len(recs) > 0 {
			return recs, name
		}
		return nil, ""
	}
}

// Extractor runs the full extraction. The zero value is ready to use.
type Extractor struct {
	Observer Observer
}

// Extract is shorthand for a zero Extractor.
func Extract(text string) []question.Record {
	return Extractor{}.Extract(text)
}

// Extract normalises text and returns the records of groups A, B and C in
// that order. An empty result means no questions were recognised.
func (e Extractor) Extract(text string) []question.Record {
	emit := e.Observer
	if emit == nil {
		emit = NopObserver
	}
	clean := Normalize(text)
	var out []question.Record
	for _, p := range plans {
		span := locateSection(clean, p.start, p.end)
		if span.startFound {
			emit(Event{Kind: SectionFound, Group: p.group, Chars: len(span.text)})
		} else {
			emit(Event{Kind: SectionMissing, Group: p.group, Chars: len(span.text), Detail: "start marker " + p.start + " not found"})
		}
		if span.text == "" {
			continue
		}
		recs := parseGuarded(p, span.text, emit)
		emit(Event{Kind: GroupParsed, Group: p.group, Count: len(recs)})
		out = append(out, recs...)
	}
	return out
}

// parseGuarded isolates one group's parser so a fault there leaves the other
// groups intact.
func parseGuarded(p groupPlan, section string, emit Observer) (recs []question.Record) {
	defer func() {
		if r := recover(); r != nil {
			emit(Event{Kind: StrategyExhausted, Group: p.group, Detail: fmt.Sprintf("parser panic: %v", r)})
			recs = nil
		}
	}()
	recs, name := p.parse(section)
	if len(recs) == 0 {
		emit(Event{Kind: StrategyExhausted, Group: p.group, Chars: len(section)})
		return nil
	}
	emit(Event{Kind: StrategySelected, Group: p.group, Strategy: name, Count: len(recs)})
	return recs
}

// Sections returns the text of each group's section after normalisation, as
// the parsers would see it.
func Sections(text string) map[question.Group]string {
	clean := Normalize(text)
	out := make(map[question.Group]string, len(plans))
	for _, p := range plans {
		out[p.group] = ExtractSection(clean, p.start, p.end)
	}
	return out
}
