package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = b
	f.types[*in.Key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b := f.objects[*in.Key]
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(b)),
		ContentLength: aws.Int64(int64(len(b))),
	}, nil
}

func TestUploadDownload(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := NewStorage(fake, "papers-bucket")
	dir := t.TempDir()

	src := filepath.Join(dir, "questions.csv")
	if err := os.WriteFile(src, []byte("group,question_number\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	key := ExportKey("p1", ".csv")
	uri, err := s.Upload(ctx, key, src)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if uri != "s3://papers-bucket/exports/p1.csv" {
		t.Errorf("uri = %q", uri)
	}
	if fake.types[key] != "text/csv" {
		t.Errorf("content type = %q", fake.types[key])
	}

	out := t.TempDir()
	local, err := s.Download(ctx, "papers-bucket", key, out, 1024)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	got, _ := os.ReadFile(local)
	if !strings.HasPrefix(string(got), "group,") {
		t.Errorf("downloaded %q", got)
	}

	if _, err := s.Download(ctx, "papers-bucket", key, out, 4); err == nil {
		t.Error("Download() over the limit should fail")
	}
}

func TestPaperKey(t *testing.T) {
	if got := PaperKey("p1", "/tmp/x/SEM5_CS501_2023.pdf"); got != "papers/p1/SEM5_CS501_2023.pdf" {
		t.Errorf("PaperKey() = %q", got)
	}
}
