package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet/file"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
	"github.com/mohammed-shakir/overture-extract/internal/storage"
)

const defaultBatchSize = 64 * 1024

// ParquetReader opens partitions through a storage.Opener and decodes them
// with the Arrow Parquet reader.
type ParquetReader struct {
	opener    storage.Opener
	mem       memory.Allocator
	batchSize int64
	logger    *slog.Logger
}

func NewParquetReader(opener storage.Opener, batchSize int, logger *slog.Logger) *ParquetReader {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ParquetReader{
		opener:    opener,
		mem:       memory.NewGoAllocator(),
		batchSize: int64(batchSize),
		logger:    logger,
	}
}

type partition struct {
	location string
	pf       *file.Reader
}

type parquetHandle struct {
	r     *ParquetReader
	parts []partition
}

// Open resolves every path against basePath and parses each footer. Any
// failure closes what was already opened.
func (r *ParquetReader) Open(ctx context.Context, basePath string, paths []string) (Handle, error) {
	h := &parquetHandle{r: r}
	for _, p := range paths {
		loc := storage.Join(basePath, p)
		obj, err := r.opener.Open(ctx, loc)
		if err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrOpen, loc, err)
		}
		pf, err := file.NewParquetReader(obj)
		if err != nil {
			_ = obj.Close()
			_ = h.Close()
			return nil, fmt.Errorf("%w: %s: footer: %w", ErrOpen, loc, err)
		}
		h.parts = append(h.parts, partition{location: loc, pf: pf})
	}
	return h, nil
}

// Read walks partitions in order. Row groups are pruned on bbox statistics
// first, then rows are selected one by one.
func (h *parquetHandle) Read(ctx context.Context, pred model.BBox) ([]Batch, error) {
	var out []Batch
	for _, p := range h.parts {
		bs, err := h.readPartition(ctx, p, pred)
		if err != nil {
			ReleaseAll(out)
			return nil, err
		}
		out = append(out, bs...)
	}
	return out, nil
}

func (h *parquetHandle) readPartition(ctx context.Context, p partition, pred model.BBox) ([]Batch, error) {
	groups := keepRowGroups(p.pf, pred)
	h.r.logger.DebugContext(ctx, "row groups selected",
		"partition", p.location,
		"kept", len(groups),
		"total", p.pf.NumRowGroups())
	if len(groups) == 0 {
		return nil, nil
	}

	fr, err := pqarrow.NewFileReader(p.pf, pqarrow.ArrowReadProperties{BatchSize: h.r.batchSize}, h.r.mem)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRead, p.location, err)
	}
	rr, err := fr.GetRecordReader(ctx, nil, groups)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRead, p.location, err)
	}
	defer rr.Release()

	var out []Batch
	for {
		if err := ctx.Err(); err != nil {
			ReleaseAll(out)
			return nil, err
		}
		rec, err := rr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			ReleaseAll(out)
			return nil, fmt.Errorf("%w: %s: %w", ErrRead, p.location, err)
		}
		if rec == nil {
			break
		}
		rows := selectRows(rec, pred)
		if len(rows) == 0 {
			continue
		}
		// the reader releases rec on the next Read
		rec.Retain()
		out = append(out, Batch{Record: rec, Rows: rows})
	}
	return out, nil
}

func (h *parquetHandle) Close() error {
	var errs []error
	for _, p := range h.parts {
		if err := p.pf.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.parts = nil
	return errors.Join(errs...)
}
