// Package export encodes retrieval outcomes into named artifacts and hands
// them to a sink in outcome order.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
	"github.com/mohammed-shakir/overture-extract/internal/core/observability"
	"github.com/mohammed-shakir/overture-extract/internal/dataset"
	"github.com/mohammed-shakir/overture-extract/internal/retrieval"
)

var (
	ErrEncoding = errors.New("artifact encoding failed")
	ErrDelivery = errors.New("artifact delivery failed")
)

type Artifact struct {
	Name        string
	Type        string
	ContentType string
	Payload     []byte
	// Rows counts the features in Payload.
	Rows int
}

type Encoder interface {
	// Encode returns the payload and how many features it holds.
	Encode(ctx context.Context, batches []dataset.Batch) ([]byte, int, error)
	Extension() string
	ContentType() string
}

// Sink receives artifacts one at a time.
type Sink interface {
	Deliver(ctx context.Context, a Artifact) error
	Name() string
}

type Emitter struct {
	enc    Encoder
	logger *slog.Logger
}

func NewEmitter(enc Encoder, logger *slog.Logger) *Emitter {
	if enc == nil {
		enc = GeoJSONEncoder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{enc: enc, logger: logger}
}

func (e *Emitter) Encoder() Encoder { return e.enc }

// Emit encodes every outcome with rows, then delivers the artifacts to sink
// in outcome order. Nothing is delivered if any encoding fails. Outcomes
// that failed, have no rows or encode to no features produce no artifact.
func (e *Emitter) Emit(ctx context.Context, view model.View, outcomes []retrieval.Outcome, sink Sink) ([]Artifact, error) {
	arts := make([]Artifact, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			e.logger.WarnContext(ctx, "skipping failed type", "type", o.Type, "err", o.Err)
			continue
		}
		if o.NoRows || o.Rows() == 0 {
			continue
		}
		payload, n, err := e.enc.Encode(ctx, o.Batches)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrEncoding, o.Type, err)
		}
		if n == 0 {
			e.logger.DebugContext(ctx, "no features after encoding", "type", o.Type, "rows", o.Rows())
			continue
		}
		arts = append(arts, Artifact{
			Name:        ArtifactName(o.Type, view, e.enc.Extension()),
			Type:        o.Type,
			ContentType: e.enc.ContentType(),
			Payload:     payload,
			Rows:        n,
		})
	}
	if err := Deliver(ctx, sink, arts); err != nil {
		return nil, err
	}
	return arts, nil
}

// Deliver hands arts to sink sequentially and stops at the first failure.
func Deliver(ctx context.Context, sink Sink, arts []Artifact) error {
	for _, a := range arts {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := sink.Deliver(ctx, a)
		observability.IncArtifactDelivered(sink.Name(), err)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDelivery, a.Name, err)
		}
		observability.AddRowsEmitted(a.Type, a.Rows)
	}
	return nil
}

// ArtifactName embeds type, zoom and center so downloads from different
// viewports do not collide: overture-<type>-<zoom>-<lat>-<lng>.<ext>.
func ArtifactName(typ string, v model.View, ext string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(typ)
	return "overture-" + safe +
		"-" + formatCoord(v.Zoom) +
		"-" + formatCoord(v.CenterLat) +
		"-" + formatCoord(v.CenterLng) +
		"." + ext
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
