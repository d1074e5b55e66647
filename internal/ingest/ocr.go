package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
)

// PageRecognizer OCRs every page of a PDF and returns one text per page.
type PageRecognizer interface {
	RecognizePages(ctx context.Context, path string) ([]string, error)
}

// TesseractOCR renders pages with MuPDF and reads them with Tesseract. Both
// libraries must be installed on the host.
type TesseractOCR struct {
	Language string
	DPI      float64
}

// NewTesseractOCR returns a recognizer for English text at 144 dpi, twice
// the PDF's native resolution.
func NewTesseractOCR() *TesseractOCR {
	return &TesseractOCR{Language: "eng", DPI: 144}
}

func (t *TesseractOCR) RecognizePages(ctx context.Context, path string) ([]string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open %s for rendering: %w", path, err)
	}
	defer doc.Close()

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(t.Language); err != nil {
		return nil, fmt.Errorf("set OCR language %q: %w", t.Language, err)
	}

	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImagePNG(i, t.DPI)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		if err := client.SetImageFromBytes(img); err != nil {
			return nil, fmt.Errorf("load page %d image: %w", i+1, err)
		}
		text, err := client.Text()
		if err != nil {
			slog.WarnContext(ctx, "OCR failed for page", "page", i+1, "error", err)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages, nil
}
