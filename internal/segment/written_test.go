package segment

import (
	"fmt"
	"strings"
	"testing"

	"github.com/apresai/paperq/internal/question"
)

func TestParseWritten(t *testing.T) {
	tests := []struct {
		name    string
		section string
		want    []string
	}{
		{"numbered", "3. Explain the OSI model. 4. Describe the TCP handshake.", []string{"Explain the OSI model.", "Describe the TCP handshake."}},
		{"question label", "Question 1: Explain TCP. Question 2: Explain UDP.", []string{"Explain TCP.", "Explain UDP."}},
		{"Q prefix across lines", "Q1. Define\n  latency.\nQ2. Define jitter.", []string{"Define latency.", "Define jitter."}},
		{"digits without punctuation stay in body", "1. Compare IPv4 and IPv6 addressing.", []string{"Compare IPv4 and IPv6 addressing."}},
		{"leading text ignored", "Attempt the following 5. Discuss routing.", []string{"Discuss routing."}},
		{"no markers", "Discuss routing in detail", nil},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseGroupB(tt.section)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d records, want %d: %+v", len(got), len(tt.want), got)
			}
			for i, r := range got {
				if r.Text != tt.want[i] {
					t.Errorf("record %d text = %q, want %q", i+1, r.Text, tt.want[i])
				}
				if r.Number != i+1 {
					t.Errorf("record %d number = %d", i+1, r.Number)
				}
				if len(r.Options) != 0 {
					t.Errorf("record %d has options %q", i+1, r.Options)
				}
			}
		})
	}
}

func TestParseWrittenKindAndCap(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 8; i++ {
		fmt.Fprintf(&sb, "%d. Long question %s. ", i, strings.Repeat("x", i))
	}
	for _, tc := range []struct {
		parse func(string) []question.Record
		kind  question.Kind
		group question.Group
	}{
		{ParseGroupB, question.ShortAnswer, question.GroupB},
		{ParseGroupC, question.LongAnswer, question.GroupC},
	} {
		got := tc.parse(sb.String())
		if len(got) != 5 {
			t.Fatalf("%s: got %d records, want 5", tc.group, len(got))
		}
		for _, r := range got {
			if r.Kind != tc.kind || r.Group != tc.group {
				t.Errorf("%s: record %+v has wrong kind or group", tc.group, r)
			}
		}
	}
}
