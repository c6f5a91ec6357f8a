package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet"
	"github.com/apache/arrow/go/v10/parquet/file"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
	"github.com/mohammed-shakir/overture-extract/internal/storage"
)

var bboxType = arrow.StructOf(
	arrow.Field{Name: "xmin", Type: arrow.PrimitiveTypes.Float32},
	arrow.Field{Name: "xmax", Type: arrow.PrimitiveTypes.Float32},
	arrow.Field{Name: "ymin", Type: arrow.PrimitiveTypes.Float32},
	arrow.Field{Name: "ymax", Type: arrow.PrimitiveTypes.Float32},
)

// writePoints writes one partition of point features, rowsPerGroup rows
// per row group. withBBox controls whether the bbox struct column exists.
func writePoints(t *testing.T, path string, pts []orb.Point, rowsPerGroup int64, withBBox bool) {
	t.Helper()
	mem := memory.NewGoAllocator()

	fields := []arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String},
		{Name: GeometryColumn, Type: arrow.BinaryTypes.Binary},
	}
	if withBBox {
		fields = append(fields, arrow.Field{Name: BBoxColumn, Type: bboxType})
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	ids := b.Field(0).(*array.StringBuilder)
	geoms := b.Field(1).(*array.BinaryBuilder)
	for i, p := range pts {
		ids.Append(fmt.Sprintf("f%d", i))
		geoms.Append(wkb.MustMarshal(p))
		if withBBox {
			sb := b.Field(2).(*array.StructBuilder)
			sb.Append(true)
			sb.FieldBuilder(0).(*array.Float32Builder).Append(float32(p[0]))
			sb.FieldBuilder(1).(*array.Float32Builder).Append(float32(p[0]))
			sb.FieldBuilder(2).(*array.Float32Builder).Append(float32(p[1]))
			sb.FieldBuilder(3).(*array.Float32Builder).Append(float32(p[1]))
		}
	}
	rec := b.NewRecord()
	defer rec.Release()
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	var buf bytes.Buffer
	if err := pqarrow.WriteTable(tbl, &buf, rowsPerGroup, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps()); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func ids(t *testing.T, bs []Batch) []string {
	t.Helper()
	var out []string
	for _, b := range bs {
		col := column(b.Record, "id").(*array.String)
		for _, r := range b.Rows {
			out = append(out, col.Value(r))
		}
	}
	return out
}

var clustered = []orb.Point{{0, 0}, {1, 1}, {10, 10}, {11, 11}, {20, 20}, {21, 21}}

func newReader() *ParquetReader {
	return NewParquetReader(&storage.Router{File: storage.FileOpener{}}, 1024, nil)
}

func TestParquetHandle_ReadFiltersRows(t *testing.T) {
	dir := t.TempDir()
	writePoints(t, filepath.Join(dir, "a.parquet"), clustered, 2, true)
	writePoints(t, filepath.Join(dir, "b.parquet"), []orb.Point{{10.5, 10.5}, {50, 50}}, 2, true)

	h, err := newReader().Open(context.Background(), "file://"+dir, []string{"a.parquet", "b.parquet"})
	if err != nil {
		t.Fatalf("Open err=%v", err)
	}
	defer func() { _ = h.Close() }()

	bs, err := h.Read(context.Background(), model.BBox{MinX: 9, MinY: 9, MaxX: 12, MaxY: 12})
	if err != nil {
		t.Fatalf("Read err=%v", err)
	}
	defer ReleaseAll(bs)

	// partition order first, then row order
	want := []string{"f2", "f3", "f0"}
	if got := ids(t, bs); !reflect.DeepEqual(got, want) {
		t.Fatalf("ids=%v want %v", got, want)
	}
}

func TestParquetHandle_BorderRowsKept(t *testing.T) {
	dir := t.TempDir()
	writePoints(t, filepath.Join(dir, "a.parquet"), clustered, 6, true)

	h, err := newReader().Open(context.Background(), dir, []string{"a.parquet"})
	if err != nil {
		t.Fatalf("Open err=%v", err)
	}
	defer func() { _ = h.Close() }()

	bs, err := h.Read(context.Background(), model.BBox{MinX: 1, MinY: 1, MaxX: 10, MaxY: 10})
	if err != nil {
		t.Fatalf("Read err=%v", err)
	}
	defer ReleaseAll(bs)
	if got := ids(t, bs); !reflect.DeepEqual(got, []string{"f1", "f2"}) {
		t.Fatalf("ids=%v want [f1 f2]", got)
	}
}

func TestParquetHandle_NoRowsIsEmpty(t *testing.T) {
	dir := t.TempDir()
	writePoints(t, filepath.Join(dir, "a.parquet"), clustered, 2, true)

	h, err := newReader().Open(context.Background(), dir, []string{"a.parquet"})
	if err != nil {
		t.Fatalf("Open err=%v", err)
	}
	defer func() { _ = h.Close() }()

	bs, err := h.Read(context.Background(), model.BBox{MinX: 100, MinY: 100, MaxX: 101, MaxY: 101})
	if err != nil {
		t.Fatalf("Read err=%v", err)
	}
	if len(bs) != 0 {
		t.Fatalf("batches=%d want 0", len(bs))
	}
}

func TestParquetHandle_GeometryFallback(t *testing.T) {
	dir := t.TempDir()
	writePoints(t, filepath.Join(dir, "a.parquet"), clustered, 3, false)

	h, err := newReader().Open(context.Background(), dir, []string{"a.parquet"})
	if err != nil {
		t.Fatalf("Open err=%v", err)
	}
	defer func() { _ = h.Close() }()

	bs, err := h.Read(context.Background(), model.BBox{MinX: 15, MinY: 15, MaxX: 25, MaxY: 25})
	if err != nil {
		t.Fatalf("Read err=%v", err)
	}
	defer ReleaseAll(bs)
	if got := ids(t, bs); !reflect.DeepEqual(got, []string{"f4", "f5"}) {
		t.Fatalf("ids=%v want [f4 f5]", got)
	}
}

func TestKeepRowGroups_PrunesOnStatistics(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.parquet")
	writePoints(t, p, clustered, 2, true)

	f, err := os.Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	pf, err := file.NewParquetReader(f)
	if err != nil {
		t.Fatalf("footer: %v", err)
	}
	defer func() { _ = pf.Close() }()

	if n := pf.NumRowGroups(); n != 3 {
		t.Fatalf("row groups=%d want 3", n)
	}
	got := keepRowGroups(pf, model.BBox{MinX: 9, MinY: 9, MaxX: 12, MaxY: 12})
	if !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("kept=%v want [1]", got)
	}
}

func TestParquetReader_OpenErrors(t *testing.T) {
	dir := t.TempDir()
	writePoints(t, filepath.Join(dir, "ok.parquet"), clustered, 2, true)
	if err := os.WriteFile(filepath.Join(dir, "junk.parquet"), []byte("not parquet at all"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := newReader()

	if _, err := r.Open(context.Background(), dir, []string{"ok.parquet", "missing.parquet"}); !errors.Is(err, ErrOpen) {
		t.Fatalf("missing err=%v want ErrOpen", err)
	}
	if _, err := r.Open(context.Background(), dir, []string{"junk.parquet"}); !errors.Is(err, ErrOpen) {
		t.Fatalf("junk err=%v want ErrOpen", err)
	}
	if _, err := r.Open(context.Background(), "s3://bucket/release", []string{"x.parquet"}); !errors.Is(err, storage.ErrUnsupportedScheme) {
		t.Fatalf("scheme err=%v want ErrUnsupportedScheme", err)
	}
}

func TestParquetHandle_ReadDecodesOnlyKeptRowGroups(t *testing.T) {
	dir := t.TempDir()
	writePoints(t, filepath.Join(dir, "a.parquet"), clustered, 2, true)

	var logs bytes.Buffer
	lg := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := NewParquetReader(&storage.Router{File: storage.FileOpener{}}, 1024, lg)

	h, err := r.Open(context.Background(), dir, []string{"a.parquet"})
	if err != nil {
		t.Fatalf("Open err=%v", err)
	}
	defer func() { _ = h.Close() }()

	bs, err := h.Read(context.Background(), model.BBox{MinX: 19, MinY: 19, MaxX: 30, MaxY: 30})
	if err != nil {
		t.Fatalf("Read err=%v", err)
	}
	defer ReleaseAll(bs)
	if got := ids(t, bs); !reflect.DeepEqual(got, []string{"f4", "f5"}) {
		t.Fatalf("ids=%v want [f4 f5]", got)
	}
	if !strings.Contains(logs.String(), `"kept":1,"total":3`) {
		t.Fatalf("row group selection not logged as kept=1 total=3; logs:\n%s", logs.String())
	}
}
