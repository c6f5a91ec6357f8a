package catalog

import (
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
)

const (
	treeMinChildren = 25
	treeMaxChildren = 50
)

// partitionEntry carries the manifest position so query hits can be put
// back in manifest order.
type partitionEntry struct {
	rect rtreego.Rect
	ord  int
	rec  model.PartitionRecord
}

func (e *partitionEntry) Bounds() rtreego.Rect { return e.rect }

// index holds one R-tree per type for a single manifest.
type index struct {
	manifest *model.Manifest
	trees    map[string]*rtreego.Rtree
}

func newIndex(m *model.Manifest) *index {
	grouped := make(map[string][]rtreego.Spatial)
	for _, t := range m.Types() {
		for i, p := range m.PartitionsOf(t) {
			grouped[t] = append(grouped[t], &partitionEntry{rect: toRect(p.BBox), ord: i, rec: p})
		}
	}
	idx := &index{manifest: m, trees: make(map[string]*rtreego.Rtree, len(grouped))}
	for t, objs := range grouped {
		idx.trees[t] = rtreego.NewTree(2, treeMinChildren, treeMaxChildren, objs...)
	}
	return idx
}

// query returns partitions of type t intersecting region, in manifest
// order. The tree is only a prefilter; each hit is rechecked with the
// half-open predicate.
func (x *index) query(t string, region model.BBox) []model.PartitionRecord {
	tree, ok := x.trees[t]
	if !ok {
		return nil
	}
	hits := tree.SearchIntersect(toRect(region))
	matched := make([]*partitionEntry, 0, len(hits))
	for _, h := range hits {
		e := h.(*partitionEntry)
		if e.rec.BBox.Intersects(region) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ord < matched[j].ord })

	out := make([]model.PartitionRecord, len(matched))
	for i, e := range matched {
		out[i] = e.rec
	}
	return out
}

// toRect normalizes inverted boxes; the exact predicate still sees the
// original values.
func toRect(b model.BBox) rtreego.Rect {
	r, _ := rtreego.NewRectFromPoints(rtreego.Point{b.MinX, b.MinY}, rtreego.Point{b.MaxX, b.MaxY})
	return r
}
