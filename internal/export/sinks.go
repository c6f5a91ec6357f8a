package export

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

// DirSink writes each artifact to a file in Dir.
type DirSink struct {
	Dir string
}

func (s DirSink) Name() string { return "dir" }

func (s DirSink) Deliver(_ context.Context, a Artifact) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", s.Dir, err)
	}
	dst := filepath.Join(s.Dir, filepath.Base(a.Name))
	tmp, err := os.CreateTemp(s.Dir, ".artifact-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(a.Payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", dst, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", dst, err)
	}
	return nil
}

// ZipSink streams artifacts as entries of one zip archive. Close writes the
// central directory.
type ZipSink struct {
	zw *zip.Writer
	n  int
}

func NewZipSink(w io.Writer) *ZipSink {
	return &ZipSink{zw: zip.NewWriter(w)}
}

func (s *ZipSink) Name() string { return "zip" }

func (s *ZipSink) Deliver(_ context.Context, a Artifact) error {
	f, err := s.zw.CreateHeader(&zip.FileHeader{
		Name:     a.Name,
		Method:   zip.Deflate,
		Modified: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", a.Name, err)
	}
	if _, err := f.Write(a.Payload); err != nil {
		return fmt.Errorf("zip write %s: %w", a.Name, err)
	}
	s.n++
	return nil
}

// Entries reports how many artifacts were written.
func (s *ZipSink) Entries() int { return s.n }

func (s *ZipSink) Close() error { return s.zw.Close() }

// ObjectClient is the subset of *minio.Client used by ObjectSink.
type ObjectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// ObjectSink uploads artifacts under Prefix and records a presigned link
// for each.
type ObjectSink struct {
	Client ObjectClient
	Bucket string
	Prefix string
	Expiry time.Duration

	mu    sync.Mutex
	links []Link
}

type Link struct {
	Name string `json:"name"`
	Key  string `json:"key"`
	URL  string `json:"url"`
}

func (s *ObjectSink) Name() string { return "object" }

func (s *ObjectSink) Deliver(ctx context.Context, a Artifact) error {
	key := path.Join(s.Prefix, a.Name)
	_, err := s.Client.PutObject(ctx, s.Bucket, key, bytes.NewReader(a.Payload), int64(len(a.Payload)), minio.PutObjectOptions{
		ContentType: a.ContentType,
		UserMetadata: map[string]string{
			"feature-type": a.Type,
		},
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.Bucket, key, err)
	}

	expiry := s.Expiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	u, err := s.Client.PresignedGetObject(ctx, s.Bucket, key, expiry, url.Values{})
	if err != nil {
		return fmt.Errorf("presign %s/%s: %w", s.Bucket, key, err)
	}

	s.mu.Lock()
	s.links = append(s.links, Link{Name: a.Name, Key: key, URL: u.String()})
	s.mu.Unlock()
	return nil
}

func (s *ObjectSink) Links() []Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Link, len(s.links))
	copy(out, s.links)
	return out
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, a Artifact) error

func (f SinkFunc) Deliver(ctx context.Context, a Artifact) error { return f(ctx, a) }
func (f SinkFunc) Name() string                                   { return "func" }
