package segment

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/apresai/paperq/internal/question"
)

func TestParseGroupANumbered(t *testing.T) {
	section := "1. What is TCP?\na) Layer3\nb) Layer4\n2. What is UDP?\na) Stateful\nb) Stateless"
	got := ParseGroupA(section)
	want := []question.Record{
		question.New(question.GroupA, 1, "What is TCP?", []string{"a) Layer3", "b) Layer4"}),
		question.New(question.GroupA, 2, "What is UDP?", []string{"a) Stateful", "b) Stateless"}),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseGroupA() =\n%+v\nwant\n%+v", got, want)
	}
	for _, r := range got {
		if r.Kind != question.MultipleChoice {
			t.Errorf("record %d kind = %q, want %q", r.Number, r.Kind, question.MultipleChoice)
		}
	}
}

func TestParseGroupAHeaderForms(t *testing.T) {
	tests := []struct {
		name    string
		section string
		texts   []string
		options [][]string
	}{
		{
			name:    "Q prefix",
			section: "Q1: Which device works at layer 2?\n(a) Switch\n(b) Hub\nQ.2 Which protocol resolves addresses?\n(a) ARP\n(b) DNS",
			texts:   []string{"Which device works at layer 2?", "Which protocol resolves addresses?"},
			options: [][]string{{"(a) Switch", "(b) Hub"}, {"(a) ARP", "(b) DNS"}},
		},
		{
			name:    "parenthesised numbers",
			section: "(1) Which layer encrypts data?\na. Session\nb. Presentation\n(2) Which port does HTTP use?\na: 80\nb: 21",
			texts:   []string{"Which layer encrypts data?", "Which port does HTTP use?"},
			options: [][]string{{"a. Session", "b. Presentation"}, nil},
		},
		{
			name:    "multi-line body",
			section: "1. Which of the following\nis a transport protocol?\na) TCP/IP\nb) UDP",
			texts:   []string{"Which of the following is a transport protocol?"},
			options: [][]string{{"a) TCP/IP", "b) UDP"}},
		},
		{
			name:    "short option bodies are not options",
			section: "1) Which cable is fastest here?\na) X\nb) Fibre optic",
			texts:   []string{"Which cable is fastest here?"},
			options: [][]string{{"b) Fibre optic"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseGroupA(tt.section)
			if len(got) != len(tt.texts) {
				t.Fatalf("got %d records, want %d: %+v", len(got), len(tt.texts), got)
			}
			for i, r := range got {
				if r.Text != tt.texts[i] {
					t.Errorf("record %d text = %q, want %q", i+1, r.Text, tt.texts[i])
				}
				if !reflect.DeepEqual(r.Options, tt.options[i]) {
					t.Errorf("record %d options = %q, want %q", i+1, r.Options, tt.options[i])
				}
			}
		})
	}
}

func TestParseGroupACap(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 14; i++ {
		fmt.Fprintf(&sb, "%d. Question number %d about networks?\n", i, i)
	}
	got := ParseGroupA(sb.String())
	if len(got) != MaxMultipleChoice {
		t.Fatalf("got %d records, want %d", len(got), MaxMultipleChoice)
	}
	if got[9].Text != "Question number 10 about networks?" {
		t.Errorf("last record = %q", got[9].Text)
	}
}

func TestParseGroupALooseNumbering(t *testing.T) {
	section := "Intro 1.What is a router used for (a) forwarding (b) storing 2.Which layer handles routing a) network b) transport"
	got, strategy := parseGroupA(section)
	if strategy != "numbered" {
		t.Errorf("strategy = %q, want numbered", strategy)
	}
	want := []question.Record{
		question.New(question.GroupA, 1, "What is a router used for", []string{"(a) forwarding", "(b) storing"}),
		question.New(question.GroupA, 2, "Which layer handles routing", []string{"a) network", "b) transport"}),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseGroupA() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestParseGroupASentenceFallback(t *testing.T) {
	section := "Explain OSI layers? This is filler text exceeding twenty chars."
	got, strategy := parseGroupA(section)
	if strategy != "sentence" {
		t.Fatalf("strategy = %q, want sentence", strategy)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1: %+v", len(got), got)
	}
	if got[0].Text != "Explain OSI layers?" || len(got[0].Options) != 0 || got[0].Number != 1 {
		t.Errorf("record = %+v", got[0])
	}
}

func TestParseSentences(t *testing.T) {
	tests := []struct {
		name    string
		section string
		want    []string
	}{
		{"first clause of a fragment", "Explain OSI layers? This is filler text exceeding twenty chars.", []string{"Explain OSI layers?"}},
		{"one record per fragment", "Explain the OSI model in detail? Why? It has seven layers in total", []string{"Explain the OSI model in detail?"}},
		{"each long fragment counts", "What does a router forward? Packets. Which layer does IP live in? Network.", []string{"What does a router forward?", "Which layer does IP live in?"}},
		{"short fragment skipped", "Why? Because. What is TCP!", nil},
		{"fragment without question mark", "This sentence is long enough but asks nothing.", nil},
		{"leading question mark", "? and then a long tail without another mark", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSentences(tt.section)
			var texts []string
			for i, r := range got {
				if r.Number != i+1 || len(r.Options) != 0 {
					t.Errorf("record %d = %+v", i, r)
				}
				texts = append(texts, r.Text)
			}
			if !reflect.DeepEqual(texts, tt.want) {
				t.Errorf("parseSentences() = %q, want %q", texts, tt.want)
			}
		})
	}
}

func TestCascadeStopsAtFirstHit(t *testing.T) {
	// The second line would satisfy the line strategy but not the sentence one.
	section := "Explain OSI layers? This is filler text exceeding twenty chars.\nWhat is routing: a long line here"
	got, strategy := parseGroupA(section)
	if strategy != "sentence" {
		t.Fatalf("strategy = %q, want sentence", strategy)
	}
	if want := parseSentences(section); !reflect.DeepEqual(got, want) {
		t.Errorf("result %+v differs from sentence strategy %+v", got, want)
	}
	if lines := parseLines(section); len(lines) == len(got) {
		t.Fatalf("test section does not separate the strategies")
	}
}

func TestParseGroupALineFallback(t *testing.T) {
	section := "THIS IS A HEADER LINE: X\nDefine bandwidth: the rate\na) some option here:\nshort."
	got, strategy := parseGroupA(section)
	if strategy != "line" {
		t.Fatalf("strategy = %q, want line", strategy)
	}
	if len(got) != 1 || got[0].Text != "Define bandwidth: the rate" {
		t.Errorf("got %+v", got)
	}
}

func TestParseGroupANothing(t *testing.T) {
	for _, section := range []string{"", "   ", "short", "ALL CAPS HEADER TEXT: NOTHING"} {
		if got := ParseGroupA(section); len(got) != 0 {
			t.Errorf("ParseGroupA(%q) = %+v, want none", section, got)
		}
	}
}

func TestReflow(t *testing.T) {
	in := "1. What is TCP? a) Layer3 b) Layer4 2. What is UDP? (a) Stateful (b) Stateless"
	want := "1. What is TCP?\na) Layer3\nb) Layer4\n2. What is UDP?\n(a) Stateful\n(b) Stateless"
	if got := reflow(in); got != want {
		t.Errorf("reflow() = %q, want %q", got, want)
	}
	// Figures in the body do not break a question unless they continue the
	// numbering.
	in = "1. A bond costs 10. The yield is? a) 5 b) 6 2. What is UDP? a) x b) y"
	want = "1. A bond costs 10. The yield is?\na) 5\nb) 6\n2. What is UDP?\na) x\nb) y"
	if got := reflow(in); got != want {
		t.Errorf("reflow() = %q, want %q", got, want)
	}
	in = "Q.1 Define IP. Q.2 Define TCP port 80. Q.3 Define UDP."
	want = "Q.1 Define IP.\nQ.2 Define TCP port 80.\nQ.3 Define UDP."
	if got := reflow(in); got != want {
		t.Errorf("reflow() = %q, want %q", got, want)
	}
	multi := "1. A\nb) B"
	if got := reflow(multi); got != multi {
		t.Errorf("reflow changed text that already has lines: %q", got)
	}
}

func TestCleanGroupA(t *testing.T) {
	in := "Choose the correct option Paper Code: CS-401 --- Page 2 --- 1. What is a hub?"
	got := collapse(cleanGroupA(in))
	if got != "CS-401 1. What is a hub?" {
		t.Errorf("cleanGroupA() = %q", got)
	}
}
