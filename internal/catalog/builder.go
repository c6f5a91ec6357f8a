// Package catalog turns a manifest, a query region and a list of feature
// types into the download plan for one request.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
	"github.com/mohammed-shakir/overture-extract/internal/core/observability"
)

// ErrInvalidRegion marks a query region that cannot be planned.
var ErrInvalidRegion = errors.New("invalid region")

// ManifestResolver supplies the current manifest; *manifest.Resolver
// satisfies it.
type ManifestResolver interface {
	Resolve(ctx context.Context) (*model.Manifest, error)
}

// Builder derives download plans. It keeps one R-tree index for the most
// recently seen manifest.
type Builder struct {
	resolver ManifestResolver
	logger   *slog.Logger
	idx      atomic.Pointer[index]
}

// NewBuilder returns a Builder; a nil logger uses slog.Default.
func NewBuilder(resolver ManifestResolver, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{resolver: resolver, logger: logger}
}

// BuildPlan resolves the current manifest and derives the plan for region.
// Manifest errors are returned unchanged.
func (b *Builder) BuildPlan(ctx context.Context, region model.BBox, types []string) (model.DownloadPlan, error) {
	if err := ValidateRegion(region); err != nil {
		return model.DownloadPlan{}, err
	}
	m, err := b.resolver.Resolve(ctx)
	if err != nil {
		return model.DownloadPlan{}, err
	}
	return b.plan(ctx, b.indexFor(m), region, types), nil
}

// Build derives a plan from an already resolved manifest.
func (b *Builder) Build(ctx context.Context, m *model.Manifest, region model.BBox, types []string) (model.DownloadPlan, error) {
	if err := ValidateRegion(region); err != nil {
		return model.DownloadPlan{}, err
	}
	return b.plan(ctx, b.indexFor(m), region, types), nil
}

func (b *Builder) plan(ctx context.Context, idx *index, region model.BBox, types []string) model.DownloadPlan {
	m := idx.manifest
	plan := model.DownloadPlan{
		Version:  m.Version,
		BasePath: m.BasePath,
		Region:   region,
		Types:    []model.TypePlan{},
	}

	seen := make(map[string]struct{}, len(types))
	total := 0
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}

		if !m.HasType(t) {
			observability.IncUnknownType(t)
			b.logger.WarnContext(ctx, "unknown feature type", "type", t, "release", m.Version)
			continue
		}
		parts := idx.query(t, region)
		if len(parts) == 0 {
			continue
		}
		files := make([]string, len(parts))
		for i, p := range parts {
			files[i] = p.Path
		}
		plan.Types = append(plan.Types, model.TypePlan{Name: t, Files: files})
		total += len(files)
	}

	observability.ObservePlanPartitions(total)
	b.logger.DebugContext(ctx, "plan built",
		"region", region.String(),
		"requested", len(types),
		"planned_types", len(plan.Types),
		"partitions", total)
	return plan
}

// indexFor reuses the index while the resolver keeps returning the same
// manifest.
func (b *Builder) indexFor(m *model.Manifest) *index {
	if cur := b.idx.Load(); cur != nil && cur.manifest == m {
		return cur
	}
	idx := newIndex(m)
	b.idx.Store(idx)
	return idx
}

// ValidateRegion rejects non-finite and inverted boxes. Regions crossing
// the antimeridian are not supported.
func ValidateRegion(r model.BBox) error {
	for _, v := range r.Array() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate in %s", ErrInvalidRegion, r)
		}
	}
	if r.Inverted() {
		return fmt.Errorf("%w: min exceeds max in %s", ErrInvalidRegion, r)
	}
	return nil
}
