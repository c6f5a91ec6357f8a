package dataset

import (
	"math"

	"github.com/apache/arrow/go/v10/parquet/file"
	"github.com/apache/arrow/go/v10/parquet/metadata"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
)

// keepRowGroups returns the row groups whose bbox column statistics could
// hold a row overlapping pred. Groups without usable statistics are kept.
func keepRowGroups(pf *file.Reader, pred model.BBox) []int {
	md := pf.MetaData()
	n := pf.NumRowGroups()
	all := make([]int, 0, n)
	for i := 0; i < n; i++ {
		all = append(all, i)
	}

	sc := md.Schema
	xmin := sc.ColumnIndexByName(BBoxColumn + ".xmin")
	ymin := sc.ColumnIndexByName(BBoxColumn + ".ymin")
	xmax := sc.ColumnIndexByName(BBoxColumn + ".xmax")
	ymax := sc.ColumnIndexByName(BBoxColumn + ".ymax")
	if xmin < 0 || ymin < 0 || xmax < 0 || ymax < 0 {
		return all
	}

	kept := all[:0]
	for _, rg := range all {
		meta := md.RowGroup(rg)
		if meta.NumRows() == 0 {
			continue
		}
		loX, _, okA := columnRange(meta, xmin)
		loY, _, okB := columnRange(meta, ymin)
		_, hiX, okC := columnRange(meta, xmax)
		_, hiY, okD := columnRange(meta, ymax)
		if !okA || !okB || !okC || !okD {
			kept = append(kept, rg)
			continue
		}
		// any row inside pred needs xmin <= pred.MaxX, so the smallest
		// xmin bounds the group from below; same for the other sides
		group := model.BBox{MinX: loX, MinY: loY, MaxX: hiX, MaxY: hiY}
		if group.Overlaps(pred) {
			kept = append(kept, rg)
		}
	}
	return kept
}

func columnRange(rg *metadata.RowGroupMetaData, col int) (float64, float64, bool) {
	cc, err := rg.ColumnChunk(col)
	if err != nil || cc == nil {
		return 0, 0, false
	}
	stats, err := cc.Statistics()
	if err != nil || stats == nil || !stats.HasMinMax() {
		return 0, 0, false
	}
	var lo, hi float64
	switch s := stats.(type) {
	case *metadata.Float32Statistics:
		lo, hi = float64(s.Min()), float64(s.Max())
	case *metadata.Float64Statistics:
		lo, hi = s.Min(), s.Max()
	default:
		return 0, 0, false
	}
	if math.IsNaN(lo) || math.IsNaN(hi) {
		return 0, 0, false
	}
	return lo, hi, true
}
