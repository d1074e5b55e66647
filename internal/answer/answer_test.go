package answer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apresai/paperq/internal/question"
)

func init() {
	initialBackoff = time.Millisecond
}

func TestWithRetry(t *testing.T) {
	var calls int
	got, err := withRetry(context.Background(), "test", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("transient")
		}
		return "  answer \n", nil
	})
	if err != nil {
		t.Fatalf("withRetry() error = %v", err)
	}
	if got != "answer" || calls != 3 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestWithRetryExhausted(t *testing.T) {
	var calls int
	_, err := withRetry(context.Background(), "test", func(context.Context) (string, error) {
		calls++
		return "   ", nil
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("error = %v, want ErrExhausted", err)
	}
	if calls != maxRetries {
		t.Errorf("calls = %d, want %d", calls, maxRetries)
	}
}

func TestWithRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := withRetry(ctx, "test", func(context.Context) (string, error) {
		t.Fatal("called with cancelled context")
		return "", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

type fakeGenerator struct {
	fail  string
	calls atomic.Int32
}

func (f *fakeGenerator) Answer(_ context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	if f.fail != "" && strings.Contains(prompt, f.fail) {
		return "", ErrExhausted
	}
	return "model answer", nil
}

func TestAnswerAll(t *testing.T) {
	records := []question.Record{
		question.New(question.GroupA, 1, "What is TCP?", []string{"a) Layer3", "b) Layer4"}),
		question.New(question.GroupB, 1, "Explain UDP.", nil),
		question.New(question.GroupC, 1, "Discuss routing.", nil),
	}
	gen := &fakeGenerator{fail: "Explain UDP."}
	var lastDone int32
	answers := AnswerAll(context.Background(), gen, records, 2, func(done, total int) {
		if total != 3 {
			t.Errorf("total = %d", total)
		}
		atomic.StoreInt32(&lastDone, int32(done))
	})

	if len(answers) != 3 || gen.calls.Load() != 3 {
		t.Fatalf("answers = %d, calls = %d", len(answers), gen.calls.Load())
	}
	for i, a := range answers {
		if a.Record.ID() != records[i].ID() {
			t.Errorf("answer %d is for %s, want %s", i, a.Record.ID(), records[i].ID())
		}
	}
	if answers[1].Err == nil || answers[0].Err != nil || answers[2].Err != nil {
		t.Errorf("errors = %v, %v, %v", answers[0].Err, answers[1].Err, answers[2].Err)
	}
	if Failed(answers) != 1 {
		t.Errorf("Failed() = %d", Failed(answers))
	}
	if atomic.LoadInt32(&lastDone) != 3 {
		t.Errorf("last progress = %d", lastDone)
	}
}

func TestBuildUserPrompt(t *testing.T) {
	rec := question.New(question.GroupA, 2, "What is UDP?", []string{"a) Stateful", "b) Stateless"})
	got := buildUserPrompt(rec)
	if !strings.Contains(got, "Question:\nGroup-A\nQuestion 2:\nWhat is UDP?\nOptions:\na) Stateful\nb) Stateless\n\nAnswer:") {
		t.Errorf("prompt = %q", got)
	}
}

func TestNewGeneratorUnknown(t *testing.T) {
	if _, err := NewGenerator(context.Background(), "gpt-9"); err == nil {
		t.Error("unknown model accepted")
	}
	gen, err := NewGenerator(context.Background(), "gemini-pro")
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	if _, ok := gen.(*GeminiGenerator); !ok {
		t.Errorf("gemini-pro gave %T", gen)
	}
}

func TestGeminiAnswer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		if !strings.Contains(r.URL.Path, "gemini-2.5-flash") || r.URL.Query().Get("key") != "k" {
			t.Errorf("unexpected request %s", r.URL)
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Contents[0].Parts[0].Text != "Q?" {
			t.Errorf("prompt = %q", req.Contents[0].Parts[0].Text)
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"Because."}]}}]}`)
	}))
	defer srv.Close()

	g := &GeminiGenerator{model: "gemini-flash", apiKey: "k", endpoint: srv.URL + "/models/%s:generateContent", httpClient: srv.Client()}
	got, err := g.Answer(context.Background(), "Q?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if got != "Because." || hits.Load() != 2 {
		t.Errorf("got %q after %d requests", got, hits.Load())
	}
}
