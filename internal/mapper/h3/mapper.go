// Package h3mapper turns H3 cells into download regions and regions into the
// cells that cover them.
package h3mapper

import (
	"errors"
	"fmt"
	"math"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
)

var ErrInvalidCell = errors.New("invalid h3 cell")

func parseCell(s string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrInvalidCell, s, err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("%w %q", ErrInvalidCell, s)
	}
	return c, nil
}

// CellBounds returns the bounding box of the cell boundary. Cells crossing
// the antimeridian are rejected since regions cannot wrap.
func CellBounds(cell string) (model.BBox, error) {
	c, err := parseCell(cell)
	if err != nil {
		return model.BBox{}, err
	}
	b, err := c.Boundary()
	if err != nil {
		return model.BBox{}, fmt.Errorf("boundary: %w", err)
	}
	if len(b) < 3 {
		return model.BBox{}, fmt.Errorf("degenerate boundary for %s", cell)
	}
	out := model.BBox{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, ll := range b {
		out.MinX = math.Min(out.MinX, ll.Lng)
		out.MaxX = math.Max(out.MaxX, ll.Lng)
		out.MinY = math.Min(out.MinY, ll.Lat)
		out.MaxY = math.Max(out.MaxY, ll.Lat)
	}
	if out.MaxX-out.MinX > 180 {
		return model.BBox{}, fmt.Errorf("cell %s crosses the antimeridian", cell)
	}
	return out, nil
}

// CellCenter returns the cell centroid as lat, lng.
func CellCenter(cell string) (float64, float64, error) {
	c, err := parseCell(cell)
	if err != nil {
		return 0, 0, err
	}
	ll, err := c.LatLng()
	if err != nil {
		return 0, 0, fmt.Errorf("centroid: %w", err)
	}
	return ll.Lat, ll.Lng, nil
}

// CellsForBBox lists the cells at res whose centers fall inside bb, sorted.
func CellsForBBox(bb model.BBox, res int) ([]string, error) {
	if res < 0 || res > 15 {
		return nil, fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	outer := h3.GeoLoop{
		{Lat: bb.MinY, Lng: bb.MinX},
		{Lat: bb.MinY, Lng: bb.MaxX},
		{Lat: bb.MaxY, Lng: bb.MaxX},
		{Lat: bb.MaxY, Lng: bb.MinX},
	}
	indexes, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	out := make([]string, 0, len(indexes))
	seen := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		s := idx.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
