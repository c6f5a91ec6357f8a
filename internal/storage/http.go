package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mohammed-shakir/overture-extract/internal/core/observability"
)

// HTTPOpener serves partitions over plain HTTP(S) using range requests.
type HTTPOpener struct {
	client *http.Client
}

func NewHTTPOpener(client *http.Client) *HTTPOpener {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPOpener{client: client}
}

func (o *HTTPOpener) Open(ctx context.Context, location string) (Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, location, nil)
	if err != nil {
		return nil, fmt.Errorf("build head %s: %w", location, err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", location, err)
	}
	_ = resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("head %s: status %d", location, resp.StatusCode)
	case resp.ContentLength < 0:
		return nil, fmt.Errorf("head %s: unknown content length", location)
	}
	return &httpObject{ctx: ctx, client: o.client, url: location, size: resp.ContentLength}, nil
}

// httpObject keeps the ctx it was opened with since io.ReaderAt has none.
type httpObject struct {
	ctx    context.Context
	client *http.Client
	url    string
	size   int64
	off    int64
}

func (h *httpObject) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= h.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	end := off + int64(len(p)) - 1
	if end >= h.size {
		end = h.size - 1
	}

	req, err := http.NewRequestWithContext(h.ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes="+strconv.FormatInt(off, 10)+"-"+strconv.FormatInt(end, 10))

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("range get %s: %w", h.url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	observability.ObserveUpstreamLatency("partition_http", time.Since(start).Seconds())

	if resp.StatusCode != http.StatusPartialContent && !(resp.StatusCode == http.StatusOK && off == 0) {
		return 0, fmt.Errorf("range get %s: status %d", h.url, resp.StatusCode)
	}

	want := int(end - off + 1)
	n, err := io.ReadFull(resp.Body, p[:want])
	if err != nil {
		return n, fmt.Errorf("range read %s: %w", h.url, err)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (h *httpObject) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = h.off + offset
	case io.SeekEnd:
		abs = h.size + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	h.off = abs
	return abs, nil
}

func (h *httpObject) Close() error { return nil }
