// Package retrieval reads every planned feature type concurrently and
// gathers one outcome per type.
package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
	"github.com/mohammed-shakir/overture-extract/internal/core/observability"
	"github.com/mohammed-shakir/overture-extract/internal/dataset"
	"github.com/mohammed-shakir/overture-extract/internal/logger"
)

// Policy decides what one failed type does to the rest of a retrieval.
type Policy string

const (
	// AllOrNothing fails the whole retrieval on the first type failure.
	AllOrNothing Policy = "all_or_nothing"
	// Partial records failures per type and keeps the rest.
	Partial Policy = "partial"
)

// ParsePolicy maps a config value to a Policy. Unknown values fall back to
// AllOrNothing.
func ParsePolicy(s string) Policy {
	if Policy(s) == Partial {
		return Partial
	}
	return AllOrNothing
}

// Outcome is the result for one planned type. Exactly one of Batches,
// NoRows or Err is meaningful.
type Outcome struct {
	Type    string
	Batches []dataset.Batch
	NoRows  bool
	Err     error
}

func (o Outcome) Rows() int {
	n := 0
	for _, b := range o.Batches {
		n += b.Len()
	}
	return n
}

func (o Outcome) Release() { dataset.ReleaseAll(o.Batches) }

// ReleaseAll frees the batches held by every outcome.
func ReleaseAll(outs []Outcome) {
	for _, o := range outs {
		o.Release()
	}
}

// Orchestrator reads every planned type concurrently through a
// dataset.Reader.
type Orchestrator struct {
	reader      dataset.Reader
	policy      Policy
	concurrency int
	logger      *slog.Logger
}

type Option func(*Orchestrator)

func WithPolicy(p Policy) Option { return func(o *Orchestrator) { o.policy = p } }

// WithConcurrency caps the number of types read at once. Zero or less
// means one goroutine per type.
func WithConcurrency(n int) Option { return func(o *Orchestrator) { o.concurrency = n } }

// New returns an Orchestrator with the AllOrNothing policy unless an option
// overrides it.
func New(reader dataset.Reader, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{reader: reader, policy: AllOrNothing, logger: logger}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Retrieve returns outcomes in plan order. Under AllOrNothing any failure
// cancels the remaining reads, releases what was read and returns the
// failure; no outcomes are returned with it.
func (o *Orchestrator) Retrieve(ctx context.Context, plan model.DownloadPlan) ([]Outcome, error) {
	outcomes := make([]Outcome, len(plan.Types))
	if len(plan.Types) == 0 {
		return outcomes, nil
	}

	var (
		g    *errgroup.Group
		gctx = ctx
	)
	if o.policy == Partial {
		g = &errgroup.Group{}
	} else {
		g, gctx = errgroup.WithContext(ctx)
	}
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}

	for i, tp := range plan.Types {
		g.Go(func() error {
			out := o.retrieveType(gctx, plan, tp)
			outcomes[i] = out
			if o.policy == Partial {
				return nil
			}
			return out.Err
		})
	}

	if err := g.Wait(); err != nil {
		ReleaseAll(outcomes)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		ReleaseAll(outcomes)
		return nil, err
	}

	if o.policy == Partial {
		var errs []error
		for _, out := range outcomes {
			if out.Err != nil {
				errs = append(errs, out.Err)
			}
		}
		if len(errs) == len(outcomes) {
			return nil, errors.Join(errs...)
		}
	}
	return outcomes, nil
}

func (o *Orchestrator) retrieveType(ctx context.Context, plan model.DownloadPlan, tp model.TypePlan) Outcome {
	ctx = logger.WithFeatureType(ctx, tp.Name)
	start := time.Now()
	out := Outcome{Type: tp.Name}

	result := "ok"
	defer func() {
		observability.ObserveRetrieval(tp.Name, result, time.Since(start).Seconds())
	}()

	h, err := o.reader.Open(ctx, plan.BasePath, tp.Files)
	if err != nil {
		result = "error"
		out.Err = &TypeError{Type: tp.Name, Stage: StageAcquire, Err: err}
		o.logger.ErrorContext(ctx, "dataset acquisition failed", "files", len(tp.Files), "err", err)
		return out
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			o.logger.WarnContext(ctx, "dataset close failed", "err", cerr)
		}
	}()

	batches, err := h.Read(ctx, plan.Region)
	if err != nil {
		result = "error"
		out.Err = &TypeError{Type: tp.Name, Stage: StageRead, Err: err}
		o.logger.ErrorContext(ctx, "dataset read failed", "files", len(tp.Files), "err", err)
		return out
	}
	if len(batches) == 0 {
		result = "no_rows"
		out.NoRows = true
		o.logger.InfoContext(ctx, "no rows in region", "files", len(tp.Files))
		return out
	}

	out.Batches = batches
	o.logger.DebugContext(ctx, "type retrieved",
		"files", len(tp.Files),
		"batches", len(batches),
		"rows", out.Rows(),
		"dur", time.Since(start).String())
	return out
}
