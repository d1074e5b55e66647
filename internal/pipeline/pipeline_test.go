package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/apresai/paperq/internal/ingest"
	"github.com/apresai/paperq/internal/metadata"
	"github.com/apresai/paperq/internal/progress"
	"github.com/apresai/paperq/internal/question"
	"github.com/apresai/paperq/internal/store"
)

const paper = `Group-A (Very Short Answer Type Question)
Answer any ten of the following: [10 x 1 = 10]
1. What is TCP?
a) Layer3
b) Layer4
2. What is UDP?
a) Stateful
b) Stateless
Group-B (Short Answer Type Questions)
3. Explain the OSI model.
Group-C (Long Answer Type Questions)
7. Discuss routing algorithms in detail.
END OF PAPER`

func writePaper(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paper.txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	fail  string
}

func (g *fakeGenerator) Answer(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.fail != "" && strings.Contains(prompt, g.fail) {
		return "", errors.New("model unavailable")
	}
	return "model answer", nil
}

func TestRunStoresAndAnswers(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	gen := &fakeGenerator{fail: "UDP"}
	var events []progress.Event
	out := filepath.Join(t.TempDir(), "questions.json")

	res, err := Run(ctx, Options{
		Input:       writePaper(t, paper),
		Filename:    "SEM5_CS501_2023.pdf",
		Store:       mem,
		Generator:   gen,
		Concurrency: 2,
		Output:      out,
		Progress:    func(e progress.Event) { events = append(events, e) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Records) != 4 {
		t.Fatalf("records = %d, want 4", len(res.Records))
	}
	if res.Paper.SubjectCode != "CS501" || res.Paper.Year != 2023 {
		t.Errorf("paper = %+v", res.Paper)
	}
	if gen.calls != 4 {
		t.Errorf("generator calls = %d, want 4", gen.calls)
	}
	if !strings.Contains(res.Message(), "answered 3/4") {
		t.Errorf("Message() = %q", res.Message())
	}

	unanswered, _ := mem.ListQuestions(ctx, store.Filter{PaperID: res.PaperID, Unanswered: true})
	if len(unanswered) != 1 || unanswered[0].Record.Text != "What is UDP?" {
		t.Errorf("unanswered = %+v", unanswered)
	}

	last := events[len(events)-1]
	if last.Stage != progress.StageComplete || last.OutputFile != out || last.Questions != 4 {
		t.Errorf("last event = %+v", last)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var doc exportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if len(doc.Questions) != 4 || doc.Questions[0].Answer != "model answer" || doc.Questions[1].Answer != "" {
		t.Errorf("exported questions = %+v", doc.Questions)
	}
}

func TestRunDuplicatePaper(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	p := metadata.FromFilename("SEM5_CS501_2023.pdf")
	if err := mem.SaveQuestions(ctx, "old", p, []question.Record{question.New(question.GroupA, 1, "Old?", nil)}); err != nil {
		t.Fatal(err)
	}

	_, err := Run(ctx, Options{Input: writePaper(t, paper), Filename: "SEM5_CS501_2023.pdf", Store: mem})
	if !errors.Is(err, ErrDuplicatePaper) {
		t.Fatalf("Run() error = %v, want ErrDuplicatePaper", err)
	}
	var pe *PipelineError
	if !errors.As(err, &pe) || pe.Stage != "store" {
		t.Errorf("error = %#v", err)
	}

	if _, err := Run(ctx, Options{Input: writePaper(t, paper), Filename: "SEM5_CS501_2023.pdf", Store: mem, AllowDuplicate: true}); err != nil {
		t.Errorf("Run() with AllowDuplicate error = %v", err)
	}
}

func TestRunNoQuestions(t *testing.T) {
	mem := store.NewMemory()
	res, err := Run(context.Background(), Options{Input: writePaper(t, "Just a cover page with nothing else."), Store: mem})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.NoQuestions() || res.Message() != "no questions extracted" {
		t.Errorf("result = %+v, message %q", res, res.Message())
	}
	qs, _ := mem.ListQuestions(context.Background(), store.Filter{})
	if len(qs) != 0 {
		t.Errorf("stored %d questions for an empty extraction", len(qs))
	}
}

type failingIngester struct{}

func (failingIngester) Ingest(ctx context.Context, source string) (*ingest.Document, error) {
	return nil, ingest.ErrNoText
}

func TestRunIngestError(t *testing.T) {
	var failed progress.Event
	_, err := Run(context.Background(), Options{
		Input:    "scan.pdf",
		Ingester: failingIngester{},
		Progress: func(e progress.Event) {
			if e.Error != nil {
				failed = e
			}
		},
	})
	if !errors.Is(err, ingest.ErrNoText) {
		t.Fatalf("Run() error = %v, want ErrNoText", err)
	}
	if failed.Stage != progress.StageIngest {
		t.Errorf("failure event stage = %q", failed.Stage)
	}
}

func TestExportCSV(t *testing.T) {
	res := &Result{Records: []question.Record{
		question.New(question.GroupA, 1, "What is TCP?", []string{"a) X", "b) Y"}),
	}}
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := Export(path, "", res); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	recs, err := question.ReadCSV(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || len(recs[0].Options) != 2 {
		t.Errorf("round trip = %+v", recs)
	}
	if err := Export(filepath.Join(t.TempDir(), "out.xml"), "", res); err == nil {
		t.Error("Export() to xml should fail")
	}
}
