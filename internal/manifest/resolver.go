// Package manifest resolves and caches the partition manifest of the
// currently published release.
package manifest

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
	"github.com/mohammed-shakir/overture-extract/internal/core/observability"
)

var (
	// ErrUnavailable covers transport and status failures on either document.
	ErrUnavailable = errors.New("manifest unavailable")
	// ErrMalformed means a document could not be parsed into a manifest.
	ErrMalformed = errors.New("manifest malformed")
)

// Resolver caches one manifest for the life of the process. Concurrent
// misses share a single fetch; a failed fetch leaves the cache empty so the
// next call tries again.
type Resolver struct {
	src     Source
	logger  *slog.Logger
	timeout time.Duration

	group  singleflight.Group
	cached atomic.Pointer[model.Manifest]
	gen    atomic.Uint64
}

func NewResolver(src Source, logger *slog.Logger, fetchTimeout time.Duration) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{src: src, logger: logger, timeout: fetchTimeout}
}

// Resolve returns the cached manifest or joins/starts the fetch. A caller
// whose ctx ends stops waiting; the shared fetch keeps going for the others.
func (r *Resolver) Resolve(ctx context.Context) (*model.Manifest, error) {
	if m := r.cached.Load(); m != nil {
		observability.IncManifestLookup("cached")
		return m, nil
	}

	gen := r.gen.Load()
	ch := r.group.DoChan("manifest:"+strconv.FormatUint(gen, 10), func() (any, error) {
		if m := r.cached.Load(); m != nil {
			return m, nil
		}
		return r.fetch(ctx, gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			observability.IncManifestLookup("shared")
		} else {
			observability.IncManifestLookup("fetched")
		}
		return res.Val.(*model.Manifest), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) fetch(ctx context.Context, gen uint64) (*model.Manifest, error) {
	fctx := context.WithoutCancel(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(fctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	m, err := r.src.Fetch(fctx)
	observability.ObserveManifestFetch(err, time.Since(start).Seconds())
	if err != nil {
		r.logger.ErrorContext(ctx, "manifest fetch failed", "err", err, "dur", time.Since(start).String())
		return nil, err
	}

	// an Invalidate during the fetch wins; waiters still get this result
	if r.gen.Load() == gen {
		r.cached.Store(m)
	}
	r.logger.InfoContext(ctx, "manifest fetched",
		"release", m.Version,
		"partitions", len(m.Partitions),
		"types", len(m.Types()),
		"dur", time.Since(start).String())
	return m, nil
}

// Cached returns the manifest without triggering a fetch.
func (r *Resolver) Cached() (*model.Manifest, bool) {
	m := r.cached.Load()
	return m, m != nil
}

// Invalidate drops the cached manifest; the next Resolve fetches again.
func (r *Resolver) Invalidate() {
	r.gen.Add(1)
	r.cached.Store(nil)
}
