// Package store persists extracted questions and processing jobs.
package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/apresai/paperq/internal/metadata"
	"github.com/apresai/paperq/internal/question"
)

// ErrNotFound is returned when a job or question does not exist.
var ErrNotFound = errors.New("not found")

// ErrJobExists is returned when a job id is already taken.
var ErrJobExists = errors.New("job already exists")

const (
	DefaultDifficulty = "Medium"
	DefaultMarks      = 1
)

// Question is a stored question row: the record plus the paper it came from
// and its answer, if one has been generated.
type Question struct {
	ID         string
	PaperID    string
	Paper      metadata.Paper
	Record     question.Record
	Answer     string
	Difficulty string
	Marks      int
	CreatedAt  time.Time
}

// Filter narrows ListQuestions. Zero fields match everything.
type Filter struct {
	PaperID     string
	Semester    string
	SubjectCode string
	Year        int
	Group       question.Group
	Unanswered  bool
	Limit       int
}

func (f Filter) match(q Question) bool {
	switch {
	case f.PaperID != "" && q.PaperID != f.PaperID,
		f.Semester != "" && q.Paper.Semester != f.Semester,
		f.SubjectCode != "" && q.Paper.SubjectCode != f.SubjectCode,
		f.Year != 0 && q.Paper.Year != f.Year,
		f.Group != "" && q.Record.Group != f.Group,
		f.Unanswered && q.Answer != "":
		return false
	}
	return true
}

// QuestionStore persists the questions of a paper.
type QuestionStore interface {
	SaveQuestions(ctx context.Context, paperID string, paper metadata.Paper, records []question.Record) error
	PaperExists(ctx context.Context, paper metadata.Paper) (bool, error)
	ListQuestions(ctx context.Context, f Filter) ([]Question, error)
	SetAnswer(ctx context.Context, paperID string, g question.Group, number int, answer string) error
}

// JobStatus is the state of a processing job.
type JobStatus string

const (
	JobQueued      JobStatus = "queued"
	JobDownloading JobStatus = "downloading"
	JobProcessing  JobStatus = "processing"
	JobCompleted   JobStatus = "completed"
	JobFailed      JobStatus = "failed"
)

// Terminal reports whether no further updates are expected.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job tracks one paper through download, extraction and storage.
type Job struct {
	ID        string         `json:"processing_id"`
	Source    string         `json:"file_url,omitempty"`
	Filename  string         `json:"filename,omitempty"`
	Status    JobStatus      `json:"status"`
	Progress  float64        `json:"progress"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
	PaperID   string         `json:"paper_id,omitempty"`
	Questions int            `json:"questions_count"`
	Paper     metadata.Paper `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// JobStore tracks processing jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	UpdateJob(ctx context.Context, id string, status JobStatus, progress float64, message string) error
	CompleteJob(ctx context.Context, id, paperID string, questions int, message string) error
	FailJob(ctx context.Context, id, errMsg string) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int, cursor string) ([]Job, string, error)
}

// NewID generates a time-ordered ULID for jobs and papers.
func NewID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), nil
}
