// Package download runs the viewport pipeline: plan the partitions a region
// touches, retrieve the matching rows per type, and emit one artifact per
// type to a sink.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mohammed-shakir/overture-extract/internal/cache/keys"
	"github.com/mohammed-shakir/overture-extract/internal/core/model"
	"github.com/mohammed-shakir/overture-extract/internal/core/observability"
	"github.com/mohammed-shakir/overture-extract/internal/export"
	"github.com/mohammed-shakir/overture-extract/internal/logger"
	"github.com/mohammed-shakir/overture-extract/internal/retrieval"
)

const DefaultMinZoom = 15

var ErrZoomTooLow = errors.New("zoom level too low for download")

type Planner interface {
	BuildPlan(ctx context.Context, region model.BBox, types []string) (model.DownloadPlan, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, plan model.DownloadPlan) ([]retrieval.Outcome, error)
}

// Store is the artifact cache backend; *redisstore.Client satisfies it.
type Store interface {
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	MSetWithTTL(ctx context.Context, kv map[string][]byte, ttl time.Duration) error
	DeleteMatching(ctx context.Context, pattern string) (int, error)
}

type Request struct {
	Region model.BBox
	Types  []string
	View   model.View
}

type Failure struct {
	Type string
	Err  error
}

type Result struct {
	Plan      model.DownloadPlan
	Artifacts []export.Artifact
	// Failures is only populated under the partial retrieval policy.
	Failures []Failure
	Cached   bool
}

type Service struct {
	planner   Planner
	retriever Retriever
	emitter   *export.Emitter
	logger    *slog.Logger
	minZoom   float64

	store     Store
	ttl       time.Duration
	opTimeout time.Duration
}

type Option func(*Service)

func WithMinZoom(z float64) Option { return func(s *Service) { s.minZoom = z } }

// WithCache stores encoded payloads in store for ttl. Each cache call is
// bounded by opTimeout; cache failures fall back to the full pipeline.
func WithCache(store Store, ttl, opTimeout time.Duration) Option {
	return func(s *Service) {
		s.store = store
		s.ttl = ttl
		s.opTimeout = opTimeout
	}
}

func New(planner Planner, retriever Retriever, emitter *export.Emitter, lg *slog.Logger, opts ...Option) *Service {
	if lg == nil {
		lg = slog.Default()
	}
	if emitter == nil {
		emitter = export.NewEmitter(nil, lg)
	}
	s := &Service{
		planner:   planner,
		retriever: retriever,
		emitter:   emitter,
		logger:    lg,
		minZoom:   DefaultMinZoom,
		opTimeout: 250 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Catalog returns the plan for region without reading any data.
func (s *Service) Catalog(ctx context.Context, region model.BBox, types []string) (model.DownloadPlan, error) {
	return s.planner.BuildPlan(ctx, region, types)
}

func (s *Service) Download(ctx context.Context, req Request, sink export.Sink) (Result, error) {
	if req.View.Zoom < s.minZoom {
		return Result{}, fmt.Errorf("%w: %v < %v", ErrZoomTooLow, req.View.Zoom, s.minZoom)
	}

	plan, err := s.planner.BuildPlan(ctx, req.Region, req.Types)
	if err != nil {
		return Result{}, err
	}
	ctx = logger.WithRelease(ctx, plan.Version)
	res := Result{Plan: plan, Artifacts: []export.Artifact{}}
	if len(plan.Types) == 0 {
		s.logger.InfoContext(ctx, "empty plan", "region", req.Region.String(), "types", req.Types)
		return res, nil
	}

	cacheKeys := s.cacheKeys(plan)
	if arts, ok := s.lookup(ctx, plan, cacheKeys, req.View); ok {
		if err := export.Deliver(ctx, sink, arts); err != nil {
			return Result{}, err
		}
		res.Artifacts = arts
		res.Cached = true
		return res, nil
	}

	outs, err := s.retriever.Retrieve(ctx, plan)
	if err != nil {
		return Result{}, err
	}
	defer retrieval.ReleaseAll(outs)

	arts, err := s.emitter.Emit(ctx, req.View, outs, sink)
	if err != nil {
		return Result{}, err
	}
	res.Artifacts = arts
	for _, o := range outs {
		if o.Err != nil {
			res.Failures = append(res.Failures, Failure{Type: o.Type, Err: o.Err})
		}
	}

	s.persist(ctx, outs, arts, cacheKeys)
	return res, nil
}

// PurgeRelease drops every cached artifact of version.
func (s *Service) PurgeRelease(ctx context.Context, version string) (int, error) {
	if s.store == nil || version == "" {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.store.DeleteMatching(ctx, keys.ReleasePattern(version))
}

func (s *Service) cacheKeys(plan model.DownloadPlan) map[string]string {
	if s.store == nil {
		return nil
	}
	ext := s.emitter.Encoder().Extension()
	out := make(map[string]string, len(plan.Types))
	for _, tp := range plan.Types {
		out[tp.Name] = keys.Artifact(plan.Version, tp.Name, ext, plan.Region, tp.Files)
	}
	return out
}

// lookup succeeds only when every planned type is cached. Types cached with
// zero rows produce no artifact, same as a fresh run.
func (s *Service) lookup(ctx context.Context, plan model.DownloadPlan, cacheKeys map[string]string, view model.View) ([]export.Artifact, bool) {
	if s.store == nil {
		return nil, false
	}
	list := make([]string, 0, len(plan.Types))
	for _, tp := range plan.Types {
		list = append(list, cacheKeys[tp.Name])
	}

	cctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	got, err := s.store.MGet(cctx, list)
	if err != nil {
		observability.IncArtifactCache("error")
		s.logger.WarnContext(ctx, "artifact cache lookup failed", "err", err)
		return nil, false
	}

	enc := s.emitter.Encoder()
	arts := make([]export.Artifact, 0, len(plan.Types))
	for _, tp := range plan.Types {
		raw, ok := got[cacheKeys[tp.Name]]
		if !ok {
			observability.IncArtifactCache("miss")
			return nil, false
		}
		rows, payload, err := decodeEntry(raw)
		if err != nil {
			observability.IncArtifactCache("error")
			s.logger.WarnContext(ctx, "corrupt artifact cache entry", "type", tp.Name, "err", err)
			return nil, false
		}
		if rows == 0 {
			continue
		}
		arts = append(arts, export.Artifact{
			Name:        export.ArtifactName(tp.Name, view, enc.Extension()),
			Type:        tp.Name,
			ContentType: enc.ContentType(),
			Payload:     payload,
			Rows:        rows,
		})
	}
	observability.IncArtifactCache("hit")
	return arts, true
}

func (s *Service) persist(ctx context.Context, outs []retrieval.Outcome, arts []export.Artifact, cacheKeys map[string]string) {
	if s.store == nil {
		return
	}
	byType := make(map[string]export.Artifact, len(arts))
	for _, a := range arts {
		byType[a.Type] = a
	}
	kv := make(map[string][]byte, len(outs))
	for _, o := range outs {
		if o.Err != nil {
			continue
		}
		a := byType[o.Type]
		kv[cacheKeys[o.Type]] = encodeEntry(a.Rows, a.Payload)
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
	defer cancel()
	if err := s.store.MSetWithTTL(cctx, kv, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "artifact cache store failed", "err", err)
	}
}

// Entries are "<rows>\n<payload>".
func encodeEntry(rows int, payload []byte) []byte {
	b := strconv.AppendInt(nil, int64(rows), 10)
	b = append(b, '\n')
	return append(b, payload...)
}

func decodeEntry(raw []byte) (int, []byte, error) {
	i := bytes.IndexByte(raw, '\n')
	if i < 0 {
		return 0, nil, errors.New("missing row header")
	}
	n, err := strconv.Atoi(string(raw[:i]))
	if err != nil || n < 0 {
		return 0, nil, fmt.Errorf("bad row header %q", raw[:i])
	}
	return n, raw[i+1:], nil
}
