package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apresai/paperq/internal/pipeline"
	"github.com/apresai/paperq/internal/question"
)

const samplePaper = `Group-A
1. Which protocol is connectionless?
a) TCP b) UDP c) FTP d) SMTP
Group-B
2. Explain the OSI model.
Group-C
3. Discuss routing algorithms in detail.
`

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		flagInput, flagOutput, flagFormat = "", "", "table"
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "paperq ") {
		t.Errorf("version output = %q", out)
	}
}

func TestMetadataCommand(t *testing.T) {
	out, err := runCmd(t, "metadata", "SEM5_CS301_Computer_Networks_2023.pdf")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"semester: SEM5", "subject_code: CS301", "year: 2023"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSectionsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.txt")
	if err := os.WriteFile(path, []byte(samplePaper), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := runCmd(t, "sections", "-i", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Group-A", "Group-B", "Group-C", "Explain the OSI model."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExtractRequiresInput(t *testing.T) {
	if _, err := runCmd(t, "extract"); err == nil {
		t.Fatal("expected error without --input")
	}
}

func TestExtractRejectsFormat(t *testing.T) {
	_, err := runCmd(t, "extract", "-i", "x.txt", "--format", "xml")
	if err == nil || !strings.Contains(err.Error(), "invalid format") {
		t.Fatalf("err = %v", err)
	}
}

func TestPrintResultFormats(t *testing.T) {
	res := &pipeline.Result{
		PaperID: "p1",
		Records: []question.Record{
			question.New(question.GroupA, 1, "Which protocol is connectionless?", []string{"TCP", "UDP", "FTP", "SMTP"}),
			question.New(question.GroupB, 1, "Explain the OSI model.", nil),
		},
	}

	tests := []struct {
		format string
		want   []string
	}{
		{"table", []string{"A-01", "UDP", "Explain the OSI model."}},
		{"csv", []string{"question_number", "TCP | UDP | FTP | SMTP"}},
		{"json", []string{`"paper_id": "p1"`, `"group": "B"`}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := printResult(&buf, tt.format, res); err != nil {
				t.Fatal(err)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("missing %q in:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestPrintResultEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := printResult(&buf, "table", &pipeline.Result{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "no questions extracted") {
		t.Errorf("got %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("a  long\nanswer text", 8); got != "a long …" {
		t.Errorf("truncate long = %q", got)
	}
}
