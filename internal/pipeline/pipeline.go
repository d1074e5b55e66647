// Package pipeline runs one paper through ingest, extraction, storage and
// optional answer generation.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/apresai/paperq/internal/answer"
	"github.com/apresai/paperq/internal/ingest"
	"github.com/apresai/paperq/internal/metadata"
	"github.com/apresai/paperq/internal/observability"
	"github.com/apresai/paperq/internal/progress"
	"github.com/apresai/paperq/internal/question"
	"github.com/apresai/paperq/internal/segment"
	"github.com/apresai/paperq/internal/store"
)

// ErrDuplicatePaper is returned when the store already holds questions for
// the same semester, subject code and year.
var ErrDuplicatePaper = errors.New("paper already processed")

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

type Options struct {
	Input string
	// Filename is used for metadata inference; defaults to the base of Input.
	Filename string
	// Paper overrides fields inferred from the filename.
	Paper   metadata.Paper
	PaperID string

	Ingest   ingest.Options
	Ingester ingest.Ingester

	// Store is optional; without it nothing is persisted and no duplicate
	// check happens.
	Store          store.QuestionStore
	AllowDuplicate bool

	// Generator is optional; without it no answers are generated.
	Generator   answer.Generator
	Concurrency int

	Output string
	Format string

	Progress progress.Callback
	Logger   *slog.Logger
}

type PipelineError struct {
	Stage   string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Result describes a finished run.
type Result struct {
	PaperID    string
	Paper      metadata.Paper
	Document   *ingest.Document
	Records    []question.Record
	Answers    []answer.Answer
	OutputFile string
	Duration   time.Duration
}

// NoQuestions reports an extraction that recognised nothing. It is a
// successful run, not an error.
func (r *Result) NoQuestions() bool {
	return len(r.Records) == 0
}

// Message is a one-line summary suitable for job status.
func (r *Result) Message() string {
	if r.NoQuestions() {
		return "no questions extracted"
	}
	c := question.CountByGroup(r.Records)
	msg := fmt.Sprintf("Extracted %d questions (A:%d B:%d C:%d)", len(r.Records),
		c[question.GroupA], c[question.GroupB], c[question.GroupC])
	if n := len(r.Answers); n > 0 {
		msg += fmt.Sprintf(", answered %d/%d", n-answer.Failed(r.Answers), n)
	}
	return msg
}

func Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	emit := opts.Progress
	if emit == nil {
		emit = progress.NopCallback
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, span := observability.StartSpan(ctx, "pipeline.Run", attribute.String("input", opts.Input))
	res, err := run(ctx, opts, emit, logger, start)
	observability.EndSpan(span, err)
	if err != nil {
		emit(progress.Event{Stage: stageOf(err), Message: "Failed", Error: err, Elapsed: time.Since(start)})
		return nil, err
	}
	res.Duration = time.Since(start)
	ev := progress.NewEvent(progress.StageComplete, res.Message(), 1, start)
	ev.OutputFile = res.OutputFile
	ev.Questions = len(res.Records)
	emit(ev)
	return res, nil
}

func stageOf(err error) progress.Stage {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return progress.Stage(pe.Stage)
	}
	return progress.StageComplete
}

func run(ctx context.Context, opts Options, emit progress.Callback, logger *slog.Logger, start time.Time) (*Result, error) {
	// Stage 1: Ingest
	emit(progress.NewEvent(progress.StageIngest, "Reading paper", 0, start))
	ing := opts.Ingester
	if ing == nil {
		ing = ingest.NewIngester(opts.Input, opts.Ingest)
	}
	doc, err := ing.Ingest(ctx, opts.Input)
	if err != nil {
		return nil, &PipelineError{Stage: string(progress.StageIngest), Message: "failed to extract text", Err: err}
	}
	logger.InfoContext(ctx, "Ingested paper",
		"source", doc.Source, "method", doc.Method, "pages", doc.Pages, "words", doc.WordCount)

	name := opts.Filename
	if name == "" {
		name = filepath.Base(opts.Input)
	}
	res := &Result{
		PaperID:  opts.PaperID,
		Paper:    metadata.Merge(metadata.FromFilename(name), opts.Paper),
		Document: doc,
	}
	if res.PaperID == "" {
		if res.PaperID, err = store.NewID(); err != nil {
			return nil, &PipelineError{Stage: string(progress.StageIngest), Message: "failed to assign paper id", Err: err}
		}
	}

	if opts.Store != nil && !opts.AllowDuplicate && res.Paper.SubjectCode != "" {
		exists, err := opts.Store.PaperExists(ctx, res.Paper)
		if err != nil {
			return nil, &PipelineError{Stage: string(progress.StageStore), Message: "duplicate check failed", Err: err}
		}
		if exists {
			return nil, &PipelineError{
				Stage:   string(progress.StageStore),
				Message: fmt.Sprintf("%s %s %d", res.Paper.Semester, res.Paper.SubjectCode, res.Paper.Year),
				Err:     ErrDuplicatePaper,
			}
		}
	}

	// Stage 2: Extract
	emit(progress.NewEvent(progress.StageExtract, "Extracting questions", 0.2, start))
	ex := segment.Extractor{Observer: observability.SlogObserver(ctx, logger)}
	res.Records = ex.Extract(doc.Text)
	counts := question.CountByGroup(res.Records)
	logger.InfoContext(ctx, "Extracted questions",
		"paper_id", res.PaperID, "total", len(res.Records),
		"group_a", counts[question.GroupA], "group_b", counts[question.GroupB], "group_c", counts[question.GroupC])
	if res.NoQuestions() {
		logger.WarnContext(ctx, "No questions extracted", "source", doc.Source, "chars", len(doc.Text))
		return res, nil
	}

	// Stage 3: Store
	if opts.Store != nil {
		emit(progress.NewEvent(progress.StageStore, "Saving questions", 0.4, start))
		if err := opts.Store.SaveQuestions(ctx, res.PaperID, res.Paper, res.Records); err != nil {
			return nil, &PipelineError{Stage: string(progress.StageStore), Message: "failed to save questions", Err: err}
		}
	}

	// Stage 4: Answers
	if opts.Generator != nil {
		if err := generateAnswers(ctx, opts, res, emit, logger, start); err != nil {
			return nil, err
		}
	}

	// Stage 5: Export
	if opts.Output != "" {
		emit(progress.NewEvent(progress.StageExport, "Writing "+opts.Output, 0.95, start))
		if err := Export(opts.Output, opts.Format, res); err != nil {
			return nil, &PipelineError{Stage: string(progress.StageExport), Message: "failed to write output", Err: err}
		}
		res.OutputFile = opts.Output
	}
	return res, nil
}

func generateAnswers(ctx context.Context, opts Options, res *Result, emit progress.Callback, logger *slog.Logger, start time.Time) error {
	total := len(res.Records)
	onDone := func(done, total int) {
		ev := progress.NewEvent(progress.StageAnswer, "Generating answers", 0.5+0.4*float64(done)/float64(total), start)
		ev.Done, ev.Total = done, total
		emit(ev)
	}
	onDone(0, total)
	res.Answers = answer.AnswerAll(ctx, opts.Generator, res.Records, opts.Concurrency, onDone)
	if err := ctx.Err(); err != nil {
		return &PipelineError{Stage: string(progress.StageAnswer), Message: "answer generation cancelled", Err: err}
	}

	for _, a := range res.Answers {
		if a.Err != nil {
			logger.WarnContext(ctx, "Answer failed", "question", a.Record.ID(), "error", a.Err)
			continue
		}
		if opts.Store == nil {
			continue
		}
		if err := opts.Store.SetAnswer(ctx, res.PaperID, a.Record.Group, a.Record.Number, a.Text); err != nil {
			return &PipelineError{Stage: string(progress.StageAnswer), Message: "failed to save answer", Err: err}
		}
	}
	if failed := answer.Failed(res.Answers); failed > 0 {
		logger.WarnContext(ctx, "Some answers failed", "failed", failed, "total", total)
	}
	return nil
}

// Export writes res to path as CSV or JSON. An empty format is taken from
// the file extension.
func Export(path, format string, res *Result) error {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	if format != FormatCSV && format != FormatJSON {
		return fmt.Errorf("unsupported export format %q", format)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, format, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func write(w io.Writer, format string, res *Result) error {
	if format == FormatCSV {
		return question.WriteCSV(w, res.Records)
	}
	return WriteJSON(w, res)
}

type exportRecord struct {
	question.Record
	Answer string `json:"answer,omitempty"`
}

type exportDoc struct {
	PaperID   string         `json:"paper_id"`
	Paper     metadata.Paper `json:"metadata"`
	Questions []exportRecord `json:"questions"`
}

// WriteJSON writes the paper metadata and its records, with answers when
// they were generated.
func WriteJSON(w io.Writer, res *Result) error {
	doc := exportDoc{PaperID: res.PaperID, Paper: res.Paper, Questions: make([]exportRecord, len(res.Records))}
	for i, r := range res.Records {
		doc.Questions[i].Record = r
	}
	for i, a := range res.Answers {
		if i < len(doc.Questions) && a.Err == nil {
			doc.Questions[i].Answer = a.Text
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
