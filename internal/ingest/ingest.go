package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

type SourceType string

const (
	SourceURL  SourceType = "url"
	SourcePDF  SourceType = "pdf"
	SourceText SourceType = "text"

	// DefaultMaxBytes is the default size limit for an input paper (50 MB).
	DefaultMaxBytes = 50 * 1024 * 1024
)

func (s SourceType) String() string {
	return string(s)
}

// Method records how a document's text was obtained.
type Method string

const (
	MethodDirect Method = "direct"
	MethodOCR    Method = "ocr"
	MethodHTML   Method = "html"
	MethodText   Method = "text"
)

// ErrNoText is returned when neither text extraction nor OCR produced any
// non-whitespace text.
var ErrNoText = errors.New("no text could be extracted")

// Document is the text of one paper.
type Document struct {
	Text      string
	Title     string
	Source    string
	Pages     int
	Method    Method
	WordCount int
}

type Ingester interface {
	Ingest(ctx context.Context, source string) (*Document, error)
}

// Options configures the ingesters built by NewIngester.
type Options struct {
	MaxBytes int64
	// OCR is used when a PDF has no text layer. Nil disables the fallback.
	OCR PageRecognizer
}

func (o Options) maxBytes() int64 {
	if o.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return o.MaxBytes
}

func DetectSource(input string) SourceType {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return SourceURL
	}
	if strings.HasSuffix(strings.ToLower(input), ".pdf") {
		return SourcePDF
	}
	return SourceText
}

func NewIngester(input string, opts Options) Ingester {
	switch DetectSource(input) {
	case SourceURL:
		return &URLIngester{Options: opts}
	case SourcePDF:
		return &PDFIngester{Options: opts}
	default:
		return &TextIngester{Options: opts}
	}
}

func newDocument(text, source string, pages int, method Method) *Document {
	text = norm.NFKC.String(text)
	return &Document{
		Text:      text,
		Title:     titleFromText(text, 80),
		Source:    source,
		Pages:     pages,
		Method:    method,
		WordCount: wordCount(text),
	}
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func titleFromText(text string, maxLen int) string {
	line := strings.TrimSpace(text)
	if idx := strings.IndexByte(line, '\n'); idx > 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if r := []rune(line); len(r) > maxLen {
		line = string(r[:maxLen]) + "..."
	}
	if line == "" {
		return "Untitled"
	}
	return line
}

func validateFile(path string, maxBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	if info.Size() > maxBytes {
		return fmt.Errorf("%s is too large (%d MB, max %d MB)", path, info.Size()/(1024*1024), maxBytes/(1024*1024))
	}
	return nil
}
