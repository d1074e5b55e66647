package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/apresai/paperq/internal/config"
	"github.com/apresai/paperq/internal/pipeline"
	"github.com/apresai/paperq/internal/question"
	"github.com/apresai/paperq/internal/store"
)

var discard = slog.New(slog.DiscardHandler)

type fixture struct {
	srv   *Server
	mem   *store.Memory
	tasks *TaskManager
	pdf   *httptest.Server
	runs  chan pipeline.Options
}

func newFixture(t *testing.T, secret string, run func(context.Context, pipeline.Options) (*pipeline.Result, error)) *fixture {
	t.Helper()
	pdf := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4 fake")
	}))
	t.Cleanup(pdf.Close)

	cfg := config.Default()
	cfg.Server.WebhookSecret = secret
	mem := store.NewMemory()
	f := &fixture{mem: mem, pdf: pdf, runs: make(chan pipeline.Options, 4)}
	f.tasks = NewTaskManager(context.Background(), TaskOptions{
		Jobs:     mem,
		Pipeline: pipeline.Options{Store: mem},
		Client:   pdf.Client(),
		MaxTasks: 1,
		Timeout:  5 * time.Second,
		Logger:   discard,
	})
	if run == nil {
		run = func(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error) {
			f.runs <- opts
			return &pipeline.Result{
				PaperID: "paper-1",
				Records: []question.Record{question.New(question.GroupA, 1, "What is TCP?", nil)},
			}, nil
		}
	}
	f.tasks.run = run
	f.srv = New(cfg, mem, mem, f.tasks, discard)
	return f
}

func (f *fixture) post(t *testing.T, body string, sig string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/process-pdf", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set(signatureHeader, sig)
	}
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return m
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "", nil)
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["status"] != "healthy" || body["processor_ready"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestProcessPDFValidation(t *testing.T) {
	f := newFixture(t, "", nil)
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", "{", "Invalid JSON payload"},
		{"no url", `{"filename":"a.pdf"}`, "Missing required field: file_url"},
		{"no filename", `{"file_url":"https://x.example/a.pdf"}`, "Missing required field: filename"},
		{"not pdf", `{"file_url":"https://x.example/a.doc","filename":"a.doc"}`, "Only PDF files are supported"},
		{"relative url", `{"file_url":"/a.pdf","filename":"a.pdf"}`, "Invalid file URL format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.post(t, tt.body, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := decode(t, rec)["message"]; got != tt.want {
				t.Errorf("message = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestProcessPDFSignature(t *testing.T) {
	f := newFixture(t, "topsecret", nil)
	body := `{"file_url":"` + f.pdf.URL + `/SEM5_CS501_2023.pdf","filename":"SEM5_CS501_2023.pdf"}`

	if rec := f.post(t, body, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing signature status = %d", rec.Code)
	}
	if rec := f.post(t, body, Sign("wrong", []byte(body))); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad signature status = %d", rec.Code)
	}
	rec := f.post(t, body, Sign("topsecret", []byte(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("signed request status = %d: %s", rec.Code, rec.Body.String())
	}
	f.tasks.Wait()
}

func TestProcessPDFRunsJob(t *testing.T) {
	f := newFixture(t, "", nil)
	body := `{"file_url":"` + f.pdf.URL + `/p.pdf","filename":"SEM5_CS501_2023.pdf","metadata":{"subject_name":"Networks"}}`
	rec := f.post(t, body, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	id, _ := resp["processing_id"].(string)
	if id == "" || resp["status"] != "queued" || resp["status_url"] != "/status/"+id {
		t.Fatalf("response = %v", resp)
	}

	opts := <-f.runs
	f.tasks.Wait()
	if opts.Filename != "SEM5_CS501_2023.pdf" || opts.Paper.SubjectName != "Networks" {
		t.Errorf("pipeline options = %+v", opts)
	}
	if opts.Store == nil {
		t.Error("pipeline store not passed through")
	}

	status := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(status, httptest.NewRequest(http.MethodGet, "/status/"+id, nil))
	if status.Code != http.StatusOK {
		t.Fatalf("status code = %d", status.Code)
	}
	job, err := f.mem.GetJob(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != store.JobCompleted || job.Questions != 1 || job.PaperID != "paper-1" {
		t.Errorf("job = %+v", job)
	}
}

func TestProcessPDFFailureMarksJob(t *testing.T) {
	f := newFixture(t, "", func(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error) {
		return nil, &pipeline.PipelineError{Stage: "ingest", Message: "failed to extract text", Err: errors.New("no text")}
	})
	rec := f.post(t, `{"file_url":"`+f.pdf.URL+`/p.pdf","filename":"p.pdf"}`, "")
	id, _ := decode(t, rec)["processing_id"].(string)
	f.tasks.Wait()

	job, err := f.mem.GetJob(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != store.JobFailed || !strings.Contains(job.Error, "no text") {
		t.Errorf("job = %+v", job)
	}
}

func TestProcessPDFAlreadyProcessing(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, "", func(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error) {
		<-release
		return &pipeline.Result{PaperID: "p"}, nil
	})
	body := `{"processing_id":"job-1","file_url":"` + f.pdf.URL + `/p.pdf","filename":"p.pdf"}`
	if rec := f.post(t, body, ""); rec.Code != http.StatusAccepted {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := f.post(t, body, "")
	if rec.Code != http.StatusOK || decode(t, rec)["message"] != "Already processing" {
		t.Errorf("duplicate response = %d %s", rec.Code, rec.Body.String())
	}

	other := `{"file_url":"` + f.pdf.URL + `/q.pdf","filename":"q.pdf"}`
	if rec := f.post(t, other, ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("busy status = %d", rec.Code)
	}
	close(release)
	f.tasks.Wait()
}

func TestStatusNotFound(t *testing.T) {
	f := newFixture(t, "", nil)
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func toolText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	data, err := json.Marshal(res.Content[0])
	if err != nil {
		t.Fatal(err)
	}
	var c struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &c); err != nil {
		t.Fatal(err)
	}
	return c.Text
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestExtractQuestionsTool(t *testing.T) {
	f := newFixture(t, "", nil)
	text := "Group-A\n1. What is TCP?\na) Layer3\nb) Layer4\nGroup-B\n3. Explain the OSI model.\nGroup-C\n7. Discuss routing algorithms in detail.\nEND OF PAPER"
	res, err := f.srv.HandleExtractQuestions(context.Background(), callTool(map[string]any{
		"text":     text,
		"filename": "SEM5_CS501_2023.pdf",
	}))
	if err != nil || res.IsError {
		t.Fatalf("tool error = %v, result %+v", err, res)
	}
	var out struct {
		Count     int               `json:"count"`
		Questions []question.Record `json:"questions"`
		Metadata  map[string]any    `json:"metadata"`
	}
	if err := json.Unmarshal([]byte(toolText(t, res)), &out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 3 || out.Questions[0].Text != "What is TCP?" || out.Metadata["subject_code"] != "CS501" {
		t.Errorf("result = %+v", out)
	}

	res, _ = f.srv.HandleExtractQuestions(context.Background(), callTool(map[string]any{}))
	if !res.IsError {
		t.Error("missing input should be a tool error")
	}
}

func TestJobTools(t *testing.T) {
	f := newFixture(t, "", nil)
	ctx := context.Background()
	if err := f.mem.CreateJob(ctx, &store.Job{ID: "j1", Filename: "a.pdf"}); err != nil {
		t.Fatal(err)
	}

	res, _ := f.srv.HandleGetJob(ctx, callTool(map[string]any{"processing_id": "j1"}))
	if res.IsError || !strings.Contains(toolText(t, res), `"processing_id":"j1"`) {
		t.Errorf("get_job = %+v", res)
	}
	res, _ = f.srv.HandleGetJob(ctx, callTool(map[string]any{"processing_id": "missing"}))
	if !res.IsError {
		t.Error("get_job on missing id should be a tool error")
	}

	res, _ = f.srv.HandleListJobs(ctx, callTool(map[string]any{"limit": float64(5)}))
	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(toolText(t, res)), &list); err != nil || list.Count != 1 {
		t.Errorf("list_jobs = %s", toolText(t, res))
	}
}

func TestSign(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := Sign("k", body)
	if !strings.HasPrefix(sig, "sha256=") || len(sig) != len("sha256=")+64 {
		t.Errorf("Sign() = %q", sig)
	}
	if !validSignature("k", sig, body) || validSignature("k", sig, bytes.ToUpper(body)) {
		t.Error("validSignature() mismatch")
	}
}
