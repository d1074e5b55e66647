package ingest

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// URLIngester fetches a paper over HTTP. PDF responses go through the PDF
// ingester, HTML pages through readability, and anything else is read as
// plain text.
type URLIngester struct {
	Options
	Client *http.Client
}

func (u *URLIngester) client() *http.Client {
	if u.Client != nil {
		return u.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (u *URLIngester) Ingest(ctx context.Context, source string) (*Document, error) {
	parsed, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %s: %w", source, err)
	}

	resp, err := fetch(ctx, u.client(), source)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/pdf" || strings.HasSuffix(strings.ToLower(parsed.Path), ".pdf"):
		tmp, err := saveTemp(resp.Body, u.maxBytes())
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", source, err)
		}
		defer os.Remove(tmp)
		doc, err := (&PDFIngester{Options: u.Options}).Ingest(ctx, tmp)
		if err != nil {
			return nil, err
		}
		doc.Source = source
		if base := path.Base(parsed.Path); base != "" && base != "/" && base != "." {
			doc.Source = base
		}
		return doc, nil

	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		limited := io.LimitReader(resp.Body, u.maxBytes())
		article, err := readability.FromReader(limited, parsed)
		if err != nil {
			return nil, fmt.Errorf("could not extract article from %s: %w", source, err)
		}
		if strings.TrimSpace(article.TextContent) == "" {
			return nil, fmt.Errorf("no readable content extracted from %s: %w", source, ErrNoText)
		}
		doc := newDocument(article.TextContent, source, 0, MethodHTML)
		if article.Title != "" {
			doc.Title = article.Title
		}
		return doc, nil

	default:
		data, err := readLimited(resp.Body, u.maxBytes())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", source, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return nil, fmt.Errorf("%s: %w", source, ErrNoText)
		}
		return newDocument(string(data), source, 0, MethodText), nil
	}
}

// Download saves the body at rawURL into dir and returns the file path.
// Bodies over maxBytes are rejected.
func Download(ctx context.Context, client *http.Client, rawURL, dir string, maxBytes int64) (string, error) {
	resp, err := fetch(ctx, client, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.ContentLength > maxBytes {
		return "", fmt.Errorf("%s is too large (%d MB, max %d MB)", rawURL, resp.ContentLength/(1024*1024), maxBytes/(1024*1024))
	}

	f, err := os.CreateTemp(dir, "paper-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	if err := copyLimited(f, resp.Body, maxBytes); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close download file: %w", err)
	}
	return f.Name(), nil
}

func fetch(ctx context.Context, client *http.Client, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %s: %w", rawURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch URL %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("could not fetch URL %s: HTTP %d", rawURL, resp.StatusCode)
	}
	return resp, nil
}

func saveTemp(r io.Reader, maxBytes int64) (string, error) {
	f, err := os.CreateTemp("", "paper-*.pdf")
	if err != nil {
		return "", err
	}
	if err := copyLimited(f, r, maxBytes); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func copyLimited(w io.Writer, r io.Reader, maxBytes int64) error {
	n, err := io.Copy(w, io.LimitReader(r, maxBytes+1))
	if err != nil {
		return err
	}
	if n > maxBytes {
		return fmt.Errorf("body exceeds %d MB", maxBytes/(1024*1024))
	}
	return nil
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("body exceeds %d MB", maxBytes/(1024*1024))
	}
	return data, nil
}
