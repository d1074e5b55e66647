package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFIngester struct {
	Options
}

func (p *PDFIngester) Ingest(ctx context.Context, source string) (*Document, error) {
	if err := validateFile(source, p.maxBytes()); err != nil {
		return nil, err
	}

	text, pages, err := extractText(source)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) != "" {
		return newDocument(text, filepath.Base(source), pages, MethodDirect), nil
	}

	if p.OCR == nil {
		return nil, fmt.Errorf("%s has no text layer and OCR is disabled: %w", source, ErrNoText)
	}
	slog.InfoContext(ctx, "no text layer, falling back to OCR", "source", source, "pages", pages)
	pageTexts, err := p.OCR.RecognizePages(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("OCR %s: %w", source, err)
	}
	text = joinPages(pageTexts)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s: %w", source, ErrNoText)
	}
	return newDocument(text, filepath.Base(source), len(pageTexts), MethodOCR), nil
}

func extractText(source string) (string, int, error) {
	f, r, err := pdf.Open(source)
	if err != nil {
		return "", 0, fmt.Errorf("could not read PDF %s: %w", source, err)
	}
	defer f.Close()

	var sb strings.Builder
	numPages := r.NumPage()

	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue // Skip pages that fail to extract
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), numPages, nil
}

// joinPages concatenates OCR output with the page separators the segmenter
// strips again.
func joinPages(pages []string) string {
	var sb strings.Builder
	for i, text := range pages {
		fmt.Fprintf(&sb, "\n--- Page %d ---\n%s\n", i+1, text)
	}
	return sb.String()
}
