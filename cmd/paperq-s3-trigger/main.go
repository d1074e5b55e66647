// Command paperq-s3-trigger is a Lambda that extracts questions from PDFs
// as they land in the papers bucket.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/apresai/paperq/internal/config"
	"github.com/apresai/paperq/internal/ingest"
	"github.com/apresai/paperq/internal/metadata"
	"github.com/apresai/paperq/internal/observability"
	"github.com/apresai/paperq/internal/pipeline"
	"github.com/apresai/paperq/internal/storage"
	"github.com/apresai/paperq/internal/store"
)

type downloader interface {
	Download(ctx context.Context, bucket, key, dir string, maxBytes int64) (string, error)
}

type trigger struct {
	jobs     store.JobStore
	objects  downloader
	pipeline pipeline.Options
	maxBytes int64
	run      func(context.Context, pipeline.Options) (*pipeline.Result, error)
	log      *slog.Logger
}

func main() {
	log := observability.InitLogger()
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("PAPERQ_CONFIG"))
	if err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Store.Table == "" {
		log.Error("DYNAMODB_TABLE environment variable is required")
		os.Exit(1)
	}

	awsCfg, err := observability.LoadAWSConfig(ctx, cfg.AWS.Region)
	if err != nil {
		log.Error("Failed to load AWS config", "error", err)
		os.Exit(1)
	}
	ds := store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.Store.Table)

	t := &trigger{
		jobs:    ds,
		objects: storage.NewStorage(s3.NewFromConfig(awsCfg), cfg.AWS.Bucket),
		pipeline: pipeline.Options{
			Store:  ds,
			Ingest: ingest.Options{MaxBytes: cfg.MaxPDFBytes()},
			Logger: log,
		},
		maxBytes: cfg.MaxPDFBytes(),
		run:      pipeline.Run,
		log:      log,
	}
	if cfg.Ingest.OCR {
		t.pipeline.Ingest.OCR = ingest.NewTesseractOCR()
	}
	lambda.Start(t.handle)
}

// handle processes every .pdf object in the event. Records that fail are
// reported together so the invocation is marked as an error.
func (t *trigger) handle(ctx context.Context, ev events.S3Event) error {
	var errs []error
	for _, rec := range ev.Records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			errs = append(errs, fmt.Errorf("decode key %q: %w", rec.S3.Object.Key, err))
			continue
		}
		if !strings.EqualFold(path.Ext(key), ".pdf") {
			t.log.Info("Skipping non-PDF object", "bucket", rec.S3.Bucket.Name, "key", key)
			continue
		}
		if err := t.process(ctx, rec.S3.Bucket.Name, key, rec.S3.Object.ETag); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// jobID is stable per object version so redelivered events are skipped.
func jobID(bucket, key, etag string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("s3://"+bucket+"/"+key+"#"+etag)).String()
}

func (t *trigger) process(ctx context.Context, bucket, key, etag string) error {
	id := jobID(bucket, key, etag)
	name := path.Base(key)
	log := t.log.With("processing_id", id, "key", key)

	err := t.jobs.CreateJob(ctx, &store.Job{
		ID:       id,
		Source:   "s3://" + bucket + "/" + key,
		Filename: name,
		Status:   store.JobQueued,
		Paper:    metadata.FromFilename(name),
	})
	if errors.Is(err, store.ErrJobExists) {
		log.Info("Object already processed, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("create job %s: %w", id, err)
	}

	fail := func(err error) error {
		if ferr := t.jobs.FailJob(context.WithoutCancel(ctx), id, err.Error()); ferr != nil {
			log.Error("Failed to record job failure", "error", ferr)
		}
		return fmt.Errorf("%s: %w", key, err)
	}

	_ = t.jobs.UpdateJob(ctx, id, store.JobDownloading, 0.05, "Downloading PDF file")
	dir, err := os.MkdirTemp("", "paperq-*")
	if err != nil {
		return fail(err)
	}
	defer os.RemoveAll(dir)

	local, err := t.objects.Download(ctx, bucket, key, dir, t.maxBytes)
	if err != nil {
		return fail(err)
	}

	_ = t.jobs.UpdateJob(ctx, id, store.JobProcessing, 0.1, "Extracting questions from PDF")
	opts := t.pipeline
	opts.Input = local
	opts.Filename = name
	res, err := t.run(ctx, opts)
	if errors.Is(err, pipeline.ErrDuplicatePaper) {
		log.Info("Paper already stored, skipping")
		fail(err)
		return nil
	}
	if err != nil {
		return fail(err)
	}

	if err := t.jobs.CompleteJob(ctx, id, res.PaperID, len(res.Records), res.Message()); err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	log.Info("Paper processed", "paper_id", res.PaperID, "questions", len(res.Records))
	return nil
}
