package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/apresai/paperq/internal/ingest"
	"github.com/apresai/paperq/internal/metadata"
	"github.com/apresai/paperq/internal/observability"
	"github.com/apresai/paperq/internal/pipeline"
	"github.com/apresai/paperq/internal/progress"
	"github.com/apresai/paperq/internal/storage"
	"github.com/apresai/paperq/internal/store"
)

// ErrBusy is returned when MaxTasks jobs are already running.
var ErrBusy = errors.New("max concurrent tasks reached")

// ProcessRequest describes one paper to process in the background.
type ProcessRequest struct {
	// ID is optional; a ULID is assigned when empty.
	ID       string
	FileURL  string
	Filename string
	Paper    metadata.Paper
}

// TaskOptions configures a TaskManager.
type TaskOptions struct {
	Jobs     store.JobStore
	Pipeline pipeline.Options // Store, Generator, Concurrency and Ingest are used
	Storage  *storage.Storage // optional: s3:// sources and CSV export upload
	Client   *http.Client
	MaxTasks int
	MaxBytes int64
	Timeout  time.Duration
	Logger   *slog.Logger
}

// TaskManager runs pipeline jobs in goroutines and records their status.
type TaskManager struct {
	opts    TaskOptions
	log     *slog.Logger
	baseCtx context.Context // cancelled on SIGTERM for graceful shutdown
	run     func(context.Context, pipeline.Options) (*pipeline.Result, error)

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	running int
	wg      sync.WaitGroup
}

// NewTaskManager creates a task manager. baseCtx should be cancelled on
// SIGTERM so running jobs are marked failed instead of hanging.
func NewTaskManager(baseCtx context.Context, opts TaskOptions) *TaskManager {
	if opts.MaxTasks <= 0 {
		opts.MaxTasks = 5
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = ingest.DefaultMaxBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskManager{
		opts:    opts,
		log:     logger,
		baseCtx: baseCtx,
		run:     pipeline.Run,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Running reports how many jobs are in flight.
func (tm *TaskManager) Running() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.running
}

// Wait blocks until every started job has finished.
func (tm *TaskManager) Wait() {
	tm.wg.Wait()
}

// StartTask records a queued job and processes it in a goroutine. It
// returns store.ErrJobExists (wrapped) when req.ID is already known.
func (tm *TaskManager) StartTask(ctx context.Context, req ProcessRequest) (string, error) {
	id := req.ID
	if id == "" {
		var err error
		if id, err = store.NewID(); err != nil {
			return "", err
		}
	}

	tm.mu.Lock()
	if _, ok := tm.cancels[id]; ok {
		tm.mu.Unlock()
		return id, fmt.Errorf("job %s: %w", id, store.ErrJobExists)
	}
	if tm.running >= tm.opts.MaxTasks {
		tm.mu.Unlock()
		return "", fmt.Errorf("%w (%d)", ErrBusy, tm.opts.MaxTasks)
	}
	tm.running++

	// Derive the job context from baseCtx rather than the request, which
	// is cancelled once the response is written.
	taskCtx := observability.DetachTraceContextFrom(ctx, tm.baseCtx)
	taskCtx, cancel := context.WithTimeout(taskCtx, tm.opts.Timeout)
	tm.cancels[id] = cancel
	tm.mu.Unlock()

	job := &store.Job{ID: id, Source: req.FileURL, Filename: req.Filename, Status: store.JobQueued, Paper: req.Paper}
	if err := tm.opts.Jobs.CreateJob(ctx, job); err != nil {
		tm.release(id)
		return id, fmt.Errorf("create job: %w", err)
	}

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer tm.release(id)
		tm.process(taskCtx, id, req)
	}()
	return id, nil
}

// CancelTask cancels a running job.
func (tm *TaskManager) CancelTask(id string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if cancel, ok := tm.cancels[id]; ok {
		cancel()
	}
}

func (tm *TaskManager) release(id string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if cancel, ok := tm.cancels[id]; ok {
		cancel()
		delete(tm.cancels, id)
	}
	tm.running--
}

// fail records a failure on a context that survives cancellation of ctx.
func (tm *TaskManager) fail(ctx context.Context, id, msg string) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := tm.opts.Jobs.FailJob(failCtx, id, msg); err != nil {
		tm.log.ErrorContext(ctx, "Fail job failed", "processing_id", id, "error", err)
	}
}

func (tm *TaskManager) process(ctx context.Context, id string, req ProcessRequest) {
	ctx, span := observability.StartSpan(ctx, "task.process",
		attribute.String("processing_id", id),
		attribute.String("filename", req.Filename),
	)
	var runErr error
	defer func() { observability.EndSpan(span, runErr) }()

	log := tm.log.With("processing_id", id)
	start := time.Now()

	defer func() {
		if ctx.Err() == nil || runErr != nil {
			return
		}
		runErr = ctx.Err()
		msg := "server shutdown during processing"
		if errors.Is(runErr, context.DeadlineExceeded) {
			msg = fmt.Sprintf("processing timed out after %s", tm.opts.Timeout)
		}
		tm.fail(ctx, id, msg)
	}()

	workDir, err := os.MkdirTemp("", "paperq-task-*")
	if err != nil {
		runErr = err
		tm.fail(ctx, id, fmt.Sprintf("create work dir: %v", err))
		return
	}
	defer os.RemoveAll(workDir)

	if err := tm.opts.Jobs.UpdateJob(ctx, id, store.JobDownloading, 0.05, "Downloading PDF file"); err != nil {
		log.WarnContext(ctx, "Update progress failed", "error", err)
	}
	path, err := tm.fetch(ctx, req.FileURL, workDir)
	if err != nil {
		runErr = err
		log.ErrorContext(ctx, "Download failed", "error", err, "file_url", req.FileURL)
		tm.fail(ctx, id, fmt.Sprintf("Failed to download PDF: %v", err))
		return
	}

	if err := tm.opts.Jobs.UpdateJob(ctx, id, store.JobProcessing, 0.1, "Extracting questions from PDF"); err != nil {
		log.WarnContext(ctx, "Update progress failed", "error", err)
	}

	opts := tm.opts.Pipeline
	opts.Input = path
	opts.Filename = req.Filename
	opts.Paper = req.Paper
	opts.Logger = log
	opts.Ingest.MaxBytes = tm.opts.MaxBytes
	opts.Progress = tm.progressWriter(ctx, id, log)
	if tm.opts.Storage != nil {
		opts.Output = filepath.Join(workDir, id+".csv")
		opts.Format = pipeline.FormatCSV
	}

	log.InfoContext(ctx, "Pipeline starting", "file_url", req.FileURL, "filename", req.Filename)
	res, err := tm.run(ctx, opts)
	if err != nil {
		runErr = err
		if ctx.Err() != nil {
			return
		}
		log.ErrorContext(ctx, "Pipeline failed", "error", err, "elapsed", time.Since(start).Round(time.Second).String())
		tm.fail(ctx, id, err.Error())
		return
	}

	if res.OutputFile != "" && tm.opts.Storage != nil {
		uri, err := tm.opts.Storage.Upload(ctx, storage.ExportKey(res.PaperID, pipeline.FormatCSV), res.OutputFile)
		if err != nil {
			log.WarnContext(ctx, "Export upload failed", "error", err)
		} else {
			log.InfoContext(ctx, "Export uploaded", "uri", uri)
		}
	}

	if err := tm.opts.Jobs.CompleteJob(ctx, id, res.PaperID, len(res.Records), res.Message()); err != nil {
		runErr = err
		log.ErrorContext(ctx, "Complete job failed", "error", err)
		return
	}
	span.SetAttributes(attribute.String("paper_id", res.PaperID), attribute.Int("questions", len(res.Records)))
	log.InfoContext(ctx, "Pipeline complete",
		"paper_id", res.PaperID, "questions", len(res.Records),
		"elapsed", time.Since(start).Round(time.Millisecond).String())
}

// progressWriter throttles job updates to one per 2 seconds except on stage
// transitions.
func (tm *TaskManager) progressWriter(ctx context.Context, id string, log *slog.Logger) progress.Callback {
	var (
		lastWrite time.Time
		lastStage progress.Stage
	)
	return func(evt progress.Event) {
		// terminal states are written by process
		if evt.Stage == progress.StageComplete || evt.Error != nil {
			return
		}
		now := time.Now()
		if evt.Stage == lastStage && now.Sub(lastWrite) < 2*time.Second {
			return
		}
		pct := 0.1 + 0.85*evt.Percent
		if err := tm.opts.Jobs.UpdateJob(ctx, id, store.JobProcessing, pct, evt.Message); err != nil {
			log.WarnContext(ctx, "Update progress failed", "error", err)
		}
		lastWrite = now
		lastStage = evt.Stage
	}
}

// fetch downloads fileURL into dir. s3:// URLs need a Storage.
func (tm *TaskManager) fetch(ctx context.Context, fileURL, dir string) (string, error) {
	u, err := url.Parse(fileURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "s3" {
		if tm.opts.Storage == nil {
			return "", fmt.Errorf("s3 sources need a configured bucket")
		}
		return tm.opts.Storage.Download(ctx, u.Host, strings.TrimPrefix(u.Path, "/"), dir, tm.opts.MaxBytes)
	}
	return ingest.Download(ctx, tm.opts.Client, fileURL, dir, tm.opts.MaxBytes)
}
