// Package storage moves papers and exports in and out of S3.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Storage handles S3 uploads of source papers and question exports.
type Storage struct {
	client S3API
	bucket string
}

func NewStorage(client S3API, bucket string) *Storage {
	return &Storage{client: client, bucket: bucket}
}

// PaperKey is where a source PDF for paperID is kept.
func PaperKey(paperID, filename string) string {
	return "papers/" + paperID + "/" + path.Base(filepath.ToSlash(filename))
}

// ExportKey is where an export file for paperID is kept.
func ExportKey(paperID, ext string) string {
	return "exports/" + paperID + "." + strings.TrimPrefix(ext, ".")
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Upload uploads a local file under key and returns its s3:// URI.
func (s *Storage) Upload(ctx context.Context, key, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", localPath, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          f,
		ContentType:   aws.String(contentType(key)),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// Download copies s3://bucket/key into dir, refusing objects larger than
// maxBytes, and returns the local path.
func (s *Storage) Download(ctx context.Context, bucket, key, dir string, maxBytes int64) (string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return "", fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	if maxBytes > 0 && out.ContentLength != nil && *out.ContentLength > maxBytes {
		return "", fmt.Errorf("object is %d bytes, limit is %d", *out.ContentLength, maxBytes)
	}

	local := filepath.Join(dir, path.Base(key))
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", local, err)
	}
	defer f.Close()

	body := io.Reader(out.Body)
	if maxBytes > 0 {
		body = io.LimitReader(out.Body, maxBytes+1)
	}
	n, err := io.Copy(f, body)
	if err != nil {
		return "", fmt.Errorf("write %s: %w", local, err)
	}
	if maxBytes > 0 && n > maxBytes {
		os.Remove(local)
		return "", fmt.Errorf("object exceeds %d bytes", maxBytes)
	}
	return local, nil
}
