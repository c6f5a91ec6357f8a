package dataset

import (
	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
)

type floatAt func(i int) (float64, bool)

// rowBounds returns a per-row bbox lookup for rec. It prefers the bbox
// struct column and falls back to decoding WKB geometry. ok is false when
// the record has neither, in which case every row is kept.
func rowBounds(rec arrow.Record) (func(i int) (model.BBox, bool), bool) {
	if col := column(rec, BBoxColumn); col != nil {
		if st, ok := col.(*array.Struct); ok {
			if fn, ok := structBounds(st); ok {
				return fn, true
			}
		}
	}
	if col := column(rec, GeometryColumn); col != nil {
		if bin, ok := col.(binaryColumn); ok {
			return func(i int) (model.BBox, bool) {
				if col.IsNull(i) {
					return model.BBox{}, false
				}
				g, err := wkb.Unmarshal(bin.Value(i))
				if err != nil || g == nil {
					return model.BBox{}, false
				}
				b := g.Bound()
				return model.BBox{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]}, true
			}, true
		}
	}
	return nil, false
}

// selectRows returns the indexes of rows whose bounds overlap pred.
func selectRows(rec arrow.Record, pred model.BBox) []int {
	n := int(rec.NumRows())
	bounds, ok := rowBounds(rec)
	if !ok {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	var rows []int
	for i := 0; i < n; i++ {
		b, ok := bounds(i)
		if ok && b.Overlaps(pred) {
			rows = append(rows, i)
		}
	}
	return rows
}

type binaryColumn interface {
	arrow.Array
	Value(i int) []byte
}

func column(rec arrow.Record, name string) arrow.Array {
	for i, f := range rec.Schema().Fields() {
		if f.Name == name {
			return rec.Column(i)
		}
	}
	return nil
}

func structBounds(st *array.Struct) (func(i int) (model.BBox, bool), bool) {
	typ, ok := st.DataType().(*arrow.StructType)
	if !ok {
		return nil, false
	}
	get := func(name string) floatAt {
		for i, f := range typ.Fields() {
			if f.Name == name {
				return floats(st.Field(i))
			}
		}
		return nil
	}
	xmin, ymin, xmax, ymax := get("xmin"), get("ymin"), get("xmax"), get("ymax")
	if xmin == nil || ymin == nil || xmax == nil || ymax == nil {
		return nil, false
	}
	return func(i int) (model.BBox, bool) {
		if st.IsNull(i) {
			return model.BBox{}, false
		}
		a, ok1 := xmin(i)
		b, ok2 := ymin(i)
		c, ok3 := xmax(i)
		d, ok4 := ymax(i)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return model.BBox{}, false
		}
		return model.BBox{MinX: a, MinY: b, MaxX: c, MaxY: d}, true
	}, true
}

func floats(arr arrow.Array) floatAt {
	switch a := arr.(type) {
	case *array.Float32:
		return func(i int) (float64, bool) {
			if a.IsNull(i) {
				return 0, false
			}
			return float64(a.Value(i)), true
		}
	case *array.Float64:
		return func(i int) (float64, bool) {
			if a.IsNull(i) {
				return 0, false
			}
			return a.Value(i), true
		}
	}
	return nil
}
