// Package dataset reads columnar partitions back as row batches limited to
// a bounding box.
package dataset

import (
	"context"
	"errors"

	"github.com/apache/arrow/go/v10/arrow"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
)

var (
	// ErrOpen is returned when a handle cannot be built: bad location,
	// missing object or unreadable footer.
	ErrOpen = errors.New("dataset open failed")
	// ErrRead covers I/O and decode failures while reading rows.
	ErrRead = errors.New("dataset read failed")
)

const (
	GeometryColumn = "geometry"
	BBoxColumn     = "bbox"
)

// Batch is one decoded record batch and the rows in it that passed the
// predicate, in record order.
type Batch struct {
	Record arrow.Record
	Rows   []int
}

func (b Batch) Len() int { return len(b.Rows) }

func (b Batch) Release() {
	if b.Record != nil {
		b.Record.Release()
	}
}

// ReleaseAll releases every batch in bs.
func ReleaseAll(bs []Batch) {
	for _, b := range bs {
		b.Release()
	}
}

type Handle interface {
	// Read returns the batches with at least one row inside pred. An empty
	// result is not an error.
	Read(ctx context.Context, pred model.BBox) ([]Batch, error)
	Close() error
}

type Reader interface {
	Open(ctx context.Context, basePath string, paths []string) (Handle, error)
}
