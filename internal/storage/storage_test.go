package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestJoin(t *testing.T) {
	cases := []struct{ base, rel, want string }{
		{"s3://bucket/release/v1", "theme=buildings/part-0.parquet", "s3://bucket/release/v1/theme=buildings/part-0.parquet"},
		{"s3://bucket/release/v1/", "/part-0.parquet", "s3://bucket/release/v1/part-0.parquet"},
		{"file:///data", "https://cdn.example/p.parquet", "https://cdn.example/p.parquet"},
		{"/tmp/x", "", "/tmp/x"},
	}
	for _, tc := range cases {
		if got := Join(tc.base, tc.rel); got != tc.want {
			t.Fatalf("Join(%q,%q)=%q want %q", tc.base, tc.rel, got, tc.want)
		}
	}
}

func TestSplitBucketKey(t *testing.T) {
	b, k, err := splitBucketKey("s3://overturemaps-us-west-2/release/v1/a.parquet")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if b != "overturemaps-us-west-2" || k != "release/v1/a.parquet" {
		t.Fatalf("bucket=%q key=%q", b, k)
	}
	if _, _, err := splitBucketKey("s3://bucket-only"); err == nil {
		t.Fatalf("expected error for missing key")
	}
}

func TestRouter_UnsupportedScheme(t *testing.T) {
	r := &Router{File: FileOpener{}}
	if _, err := r.Open(context.Background(), "s3://bucket/key"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("err=%v want ErrUnsupportedScheme", err)
	}
	if _, err := r.Open(context.Background(), "ftp://host/x"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("err=%v want ErrUnsupportedScheme", err)
	}
}

func TestFileOpener(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "part.bin")
	if err := os.WriteFile(p, []byte("0123456789"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := &Router{File: FileOpener{}}

	obj, err := r.Open(context.Background(), "file://"+p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = obj.Close() }()
	buf := make([]byte, 3)
	if _, err := obj.ReadAt(buf, 4); err != nil || string(buf) != "456" {
		t.Fatalf("ReadAt=%q,%v", buf, err)
	}

	if _, err := r.Open(context.Background(), filepath.Join(dir, "missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestHTTPOpener_RangeReads(t *testing.T) {
	payload := []byte("abcdefghijklmnopqrstuvwxyz")
	var (
		mu     sync.Mutex
		ranges []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/part.parquet" {
			http.NotFound(w, r)
			return
		}
		if rg := r.Header.Get("Range"); rg != "" {
			mu.Lock()
			ranges = append(ranges, rg)
			mu.Unlock()
		}
		http.ServeContent(w, r, "part.parquet", time.Time{}, bytes.NewReader(payload))
	}))
	defer srv.Close()

	r := &Router{HTTP: NewHTTPOpener(srv.Client())}
	obj, err := r.Open(context.Background(), srv.URL+"/part.parquet")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	end, err := obj.Seek(0, io.SeekEnd)
	if err != nil || end != int64(len(payload)) {
		t.Fatalf("Seek end=%d,%v want %d", end, err, len(payload))
	}

	buf := make([]byte, 4)
	n, err := obj.ReadAt(buf, 10)
	if err != nil || n != 4 || string(buf) != "klmn" {
		t.Fatalf("ReadAt=%q n=%d err=%v", buf, n, err)
	}

	// short read at the tail
	n, err = obj.ReadAt(buf, 24)
	if n != 2 || !errors.Is(err, io.EOF) || string(buf[:n]) != "yz" {
		t.Fatalf("tail ReadAt=%q n=%d err=%v", buf[:n], n, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ranges) != 2 || ranges[0] != "bytes=10-13" || ranges[1] != "bytes=24-25" {
		t.Fatalf("ranges=%v", ranges)
	}

	if _, err := r.Open(context.Background(), srv.URL+"/missing.parquet"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}
