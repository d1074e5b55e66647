package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apresai/paperq/internal/metadata"
	"github.com/apresai/paperq/internal/question"
)

// Memory keeps jobs and questions in process memory. It is used when no
// database is configured and in tests.
type Memory struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	questions []Question
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*Job), now: time.Now}
}

func (m *Memory) SaveQuestions(ctx context.Context, paperID string, paper metadata.Paper, records []question.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	for _, r := range records {
		m.questions = append(m.questions, Question{
			ID:         uuid.NewString(),
			PaperID:    paperID,
			Paper:      paper,
			Record:     r,
			Difficulty: DefaultDifficulty,
			Marks:      DefaultMarks,
			CreatedAt:  now,
		})
	}
	return nil
}

func (m *Memory) PaperExists(ctx context.Context, paper metadata.Paper) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.questions {
		if q.Paper.Key() == paper.Key() {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListQuestions(ctx context.Context, f Filter) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Question
	for _, q := range m.questions {
		if !f.match(q) {
			continue
		}
		out = append(out, q)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) SetAnswer(ctx context.Context, paperID string, g question.Group, number int, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.questions {
		q := &m.questions[i]
		if q.PaperID == paperID && q.Record.Group == g && q.Record.Number == number {
			q.Answer = answer
			return nil
		}
	}
	return fmt.Errorf("question %s-%d in paper %s: %w", g, number, paperID, ErrNotFound)
}

func (m *Memory) CreateJob(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("job %s: %w", job.ID, ErrJobExists)
	}
	j := *job
	if j.Status == "" {
		j.Status = JobQueued
	}
	j.CreatedAt = m.now().UTC()
	j.UpdatedAt = j.CreatedAt
	m.jobs[j.ID] = &j
	return nil
}

func (m *Memory) update(id string, fn func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	fn(j)
	j.UpdatedAt = m.now().UTC()
	return nil
}

func (m *Memory) UpdateJob(ctx context.Context, id string, status JobStatus, progress float64, message string) error {
	return m.update(id, func(j *Job) {
		j.Status = status
		j.Progress = progress
		j.Message = message
	})
}

func (m *Memory) CompleteJob(ctx context.Context, id, paperID string, questions int, message string) error {
	return m.update(id, func(j *Job) {
		j.Status = JobCompleted
		j.Progress = 1
		j.PaperID = paperID
		j.Questions = questions
		j.Message = message
	})
}

func (m *Memory) FailJob(ctx context.Context, id, errMsg string) error {
	return m.update(id, func(j *Job) {
		j.Status = JobFailed
		j.Error = errMsg
		j.Message = "Failed: " + errMsg
	})
}

func (m *Memory) GetJob(ctx context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

// ListJobs returns jobs newest first. The cursor is the id of the last job
// of the previous page.
func (m *Memory) ListJobs(ctx context.Context, limit int, cursor string) ([]Job, string, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	all := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		all = append(all, *j)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(a, b int) bool {
		if !all[a].CreatedAt.Equal(all[b].CreatedAt) {
			return all[a].CreatedAt.After(all[b].CreatedAt)
		}
		return all[a].ID > all[b].ID
	})
	start := 0
	if cursor != "" {
		start = -1
		for i, j := range all {
			if j.ID == cursor {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	end := start + limit
	if end >= len(all) {
		return all[start:], "", nil
	}
	return all[start:end], all[end-1].ID, nil
}
