package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type TextIngester struct {
	Options
}

func (t *TextIngester) Ingest(ctx context.Context, source string) (*Document, error) {
	if err := validateFile(source, t.maxBytes()); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("could not read file %s: %w", source, err)
	}

	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("file %s is empty: %w", source, ErrNoText)
	}

	return newDocument(text, filepath.Base(source), 0, MethodText), nil
}
