// Package storage opens dataset partitions as random-access objects,
// whichever store they live in.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported storage scheme")
	ErrNotFound          = errors.New("object not found")
)

// Object is what columnar readers need: positioned reads plus Seek for
// size discovery.
type Object interface {
	io.ReaderAt
	io.Seeker
	io.Closer
}

type Opener interface {
	Open(ctx context.Context, location string) (Object, error)
}

// Router dispatches on the location scheme. A nil backend leaves its
// scheme unsupported.
type Router struct {
	S3   Opener
	HTTP Opener
	File Opener
}

func (r *Router) Open(ctx context.Context, location string) (Object, error) {
	var o Opener
	switch scheme(location) {
	case "s3":
		o = r.S3
	case "http", "https":
		o = r.HTTP
	case "file", "":
		o = r.File
	}
	if o == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, location)
	}
	return o.Open(ctx, location)
}

// Join appends a relative partition path to a base location.
func Join(base, rel string) string {
	if rel == "" {
		return base
	}
	if scheme(rel) != "" {
		return rel
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(rel, "/")
}

func scheme(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(location[:i])
}

// splitBucketKey parses s3://bucket/key/parts.
func splitBucketKey(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parse %q: %w", location, err)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("location %q needs bucket and key", location)
	}
	return bucket, key, nil
}
