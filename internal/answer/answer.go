// Package answer generates model answers for extracted questions.
package answer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/apresai/paperq/internal/question"
)

// ErrExhausted is returned once every retry for a question has failed.
var ErrExhausted = errors.New("answer generation failed after retries")

// Generator answers one formatted question.
type Generator interface {
	Answer(ctx context.Context, prompt string) (string, error)
}

const (
	temperature = 0.3
	maxTokens   = 2048
	maxRetries  = 3
	backoffMult = 2
)

// initialBackoff is the wait before the second attempt.
var initialBackoff = 1 * time.Second

// Models lists the accepted model aliases.
func Models() []string {
	var out []string
	for _, m := range []map[string]string{claudeModels, geminiModels, novaModels} {
		for k := range m {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// NewGenerator returns the generator for a model alias such as "haiku",
// "gemini-flash" or "nova-lite".
func NewGenerator(ctx context.Context, model string) (Generator, error) {
	switch {
	case claudeModels[model] != "":
		return NewClaudeGenerator(model), nil
	case geminiModels[model] != "":
		return NewGeminiGenerator(model), nil
	case novaModels[model] != "":
		return NewNovaGenerator(ctx, model)
	}
	return nil, fmt.Errorf("unknown answer model %q (valid: %s)", model, strings.Join(Models(), ", "))
}

// withRetry calls fn up to maxRetries times with exponential backoff. Empty
// responses count as failures.
func withRetry(ctx context.Context, provider string, fn func(context.Context) (string, error)) (string, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		text, err := fn(ctx)
		switch {
		case err != nil:
			lastErr = fmt.Errorf("%s API error (attempt %d/%d): %w", provider, attempt, maxRetries, err)
		case strings.TrimSpace(text) == "":
			lastErr = fmt.Errorf("empty response from %s (attempt %d/%d)", provider, attempt, maxRetries)
		default:
			return strings.TrimSpace(text), nil
		}

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= time.Duration(backoffMult)
		}
	}

	return "", fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}

// Answer pairs a record with its generated answer or the error that
// prevented one.
type Answer struct {
	Record question.Record
	Text   string
	Err    error
}

// AnswerAll answers records with at most concurrency calls in flight. The
// result is in record order; a failed record does not stop the others.
// onDone, if set, is called after each record completes.
func AnswerAll(ctx context.Context, gen Generator, records []question.Record, concurrency int, onDone func(done, total int)) []Answer {
	if concurrency < 1 {
		concurrency = 1
	}
	out := make([]Answer, len(records))
	var (
		mu   sync.Mutex
		done int
	)

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, rec := range records {
		g.Go(func() error {
			text, err := gen.Answer(ctx, buildUserPrompt(rec))
			out[i] = Answer{Record: rec, Text: text, Err: err}
			if onDone != nil {
				mu.Lock()
				done++
				n := done
				mu.Unlock()
				onDone(n, len(records))
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Failed counts answers that carry an error.
func Failed(answers []Answer) int {
	n := 0
	for _, a := range answers {
		if a.Err != nil {
			n++
		}
	}
	return n
}
