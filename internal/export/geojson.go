package export

import (
	"context"
	"fmt"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/overture-extract/internal/dataset"
)

const idColumn = "id"

// GeoJSONEncoder writes the selected rows of every batch as one
// FeatureCollection. Rows with a null geometry are dropped.
type GeoJSONEncoder struct{}

func (GeoJSONEncoder) Extension() string   { return "geojson" }
func (GeoJSONEncoder) ContentType() string { return "application/geo+json" }

func (GeoJSONEncoder) Encode(ctx context.Context, batches []dataset.Batch) ([]byte, int, error) {
	fc := geojson.NewFeatureCollection()
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		if err := appendFeatures(fc, b); err != nil {
			return nil, 0, err
		}
	}
	payload, err := fc.MarshalJSON()
	if err != nil {
		return nil, 0, err
	}
	return payload, len(fc.Features), nil
}

func appendFeatures(fc *geojson.FeatureCollection, b dataset.Batch) error {
	rec := b.Record
	geomIdx, idIdx := -1, -1
	var props []int
	for i, f := range rec.Schema().Fields() {
		switch f.Name {
		case dataset.GeometryColumn:
			geomIdx = i
		case idColumn:
			idIdx = i
		case dataset.BBoxColumn:
		default:
			props = append(props, i)
		}
	}
	if geomIdx < 0 {
		return fmt.Errorf("record has no %q column", dataset.GeometryColumn)
	}
	geoms, ok := rec.Column(geomIdx).(interface {
		arrow.Array
		Value(int) []byte
	})
	if !ok {
		return fmt.Errorf("%q column is %s, want binary", dataset.GeometryColumn, rec.Column(geomIdx).DataType())
	}

	fields := rec.Schema().Fields()
	for _, row := range b.Rows {
		if geoms.IsNull(row) {
			continue
		}
		g, err := wkb.Unmarshal(geoms.Value(row))
		if err != nil {
			return fmt.Errorf("row %d: decode wkb: %w", row, err)
		}
		if g == nil {
			continue
		}

		feat := geojson.NewFeature(g)
		if idIdx >= 0 {
			if ids, ok := rec.Column(idIdx).(*array.String); ok && !ids.IsNull(row) {
				feat.ID = ids.Value(row)
			}
		}
		for _, ci := range props {
			feat.Properties[fields[ci].Name] = propertyValue(rec.Column(ci), row)
		}
		fc.Append(feat)
	}
	return nil
}

// propertyValue converts one cell into a JSON-ready value. Structs become
// objects, lists become arrays and maps become objects keyed by the map key.
func propertyValue(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}
	switch a := col.(type) {
	case *array.String:
		return a.Value(i)
	case *array.Binary:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.Int8:
		return a.Value(i)
	case *array.Int16:
		return a.Value(i)
	case *array.Int32:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return a.Value(i)
	case *array.Uint16:
		return a.Value(i)
	case *array.Uint32:
		return a.Value(i)
	case *array.Uint64:
		return a.Value(i)
	case *array.Float32:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.Struct:
		st := a.DataType().(*arrow.StructType)
		obj := make(map[string]any, a.NumField())
		for f := 0; f < a.NumField(); f++ {
			obj[st.Field(f).Name] = propertyValue(a.Field(f), i)
		}
		return obj
	case *array.Map:
		offs := a.Offsets()
		keys, items := a.Keys(), a.Items()
		obj := make(map[string]any, int(offs[i+1]-offs[i]))
		for j := int(offs[i]); j < int(offs[i+1]); j++ {
			obj[fmt.Sprint(propertyValue(keys, j))] = propertyValue(items, j)
		}
		return obj
	case *array.List:
		offs := a.Offsets()
		vals := a.ListValues()
		out := make([]any, 0, int(offs[i+1]-offs[i]))
		for j := int(offs[i]); j < int(offs[i+1]); j++ {
			out = append(out, propertyValue(vals, j))
		}
		return out
	default:
		s := array.NewSlice(col, int64(i), int64(i+1))
		defer s.Release()
		return fmt.Sprint(s)
	}
}
