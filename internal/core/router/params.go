package router

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
	h3mapper "github.com/mohammed-shakir/overture-extract/internal/mapper/h3"
)

// ErrBadRequest marks request parameter errors.
var ErrBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// Query is a parsed catalog or download request.
type Query struct {
	Region model.BBox
	Types  []string
	View   model.View
	Cell   string
}

// ParseQuery reads the region from bbox or cell, the comma separated types
// and, when needView is set, the zoom and center. A cell wins over bbox; the
// returned warning says so.
func ParseQuery(v url.Values, needView bool) (Query, string, error) {
	var (
		q    Query
		warn string
	)

	rawBBox := strings.TrimSpace(v.Get("bbox"))
	q.Cell = strings.TrimSpace(v.Get("cell"))
	if rawBBox != "" && q.Cell != "" {
		warn = "both bbox and cell supplied; preferring cell"
		rawBBox = ""
	}

	switch {
	case q.Cell != "":
		bb, err := h3mapper.CellBounds(q.Cell)
		if err != nil {
			return Query{}, warn, err
		}
		q.Region = bb
	case rawBBox != "":
		bb, err := ParseBBox(rawBBox)
		if err != nil {
			return Query{}, warn, badRequest("invalid bbox: %v", err)
		}
		q.Region = bb
	default:
		return Query{}, warn, badRequest("missing required parameter: bbox or cell")
	}

	for t := range strings.SplitSeq(v.Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			q.Types = append(q.Types, t)
		}
	}
	if len(q.Types) == 0 {
		return Query{}, warn, badRequest("missing required parameter: types")
	}

	if !needView {
		return q, warn, nil
	}
	view, err := parseView(v, q)
	if err != nil {
		return Query{}, warn, err
	}
	q.View = view
	return q, warn, nil
}

// ParseBBox parses minx,miny,maxx,maxy with an optional EPSG:4326 suffix.
func ParseBBox(bboxParam string) (model.BBox, error) {
	parts := strings.Split(bboxParam, ",")
	switch len(parts) {
	case 4:
	case 5:
		if srid := strings.ToUpper(strings.TrimSpace(parts[4])); srid != "EPSG:4326" {
			return model.BBox{}, fmt.Errorf("only EPSG:4326 is supported (got %q)", srid)
		}
	default:
		return model.BBox{}, errors.New("expected 4 comma-separated values: minx,miny,maxx,maxy")
	}

	var vals [4]float64
	for i, name := range []string{"minx", "miny", "maxx", "maxy"} {
		f, err := parseFloat(parts[i])
		if err != nil {
			return model.BBox{}, fmt.Errorf("%s: %w", name, err)
		}
		vals[i] = f
	}
	bb := model.BBoxFromArray(vals)

	if !(bb.MinX >= -180 && bb.MinX <= 180 && bb.MaxX >= -180 && bb.MaxX <= 180) {
		return model.BBox{}, errors.New("longitude must be in [-180,180]")
	}
	if !(bb.MinY >= -90 && bb.MinY <= 90 && bb.MaxY >= -90 && bb.MaxY <= 90) {
		return model.BBox{}, errors.New("latitude must be in [-90,90]")
	}
	if bb.Inverted() {
		return model.BBox{}, errors.New("coordinates must satisfy maxx>=minx and maxy>=miny")
	}
	return bb, nil
}

// parseView requires zoom. center=lat,lng defaults to the cell centroid or
// the region midpoint.
func parseView(v url.Values, q Query) (model.View, error) {
	rawZoom := strings.TrimSpace(v.Get("zoom"))
	if rawZoom == "" {
		return model.View{}, badRequest("missing required parameter: zoom")
	}
	zoom, err := parseFloat(rawZoom)
	if err != nil || zoom < 0 || zoom > 24 {
		return model.View{}, badRequest("invalid zoom %q", rawZoom)
	}
	view := model.View{Zoom: zoom}

	if rawCenter := strings.TrimSpace(v.Get("center")); rawCenter != "" {
		lat, lng, ok := strings.Cut(rawCenter, ",")
		if !ok {
			return model.View{}, badRequest("center must be lat,lng")
		}
		if view.CenterLat, err = parseFloat(lat); err != nil {
			return model.View{}, badRequest("center lat: %v", err)
		}
		if view.CenterLng, err = parseFloat(lng); err != nil {
			return model.View{}, badRequest("center lng: %v", err)
		}
		return view, nil
	}

	if q.Cell != "" {
		lat, lng, err := h3mapper.CellCenter(q.Cell)
		if err != nil {
			return model.View{}, err
		}
		view.CenterLat, view.CenterLng = round6(lat), round6(lng)
		return view, nil
	}
	view.CenterLat = round6((q.Region.MinY + q.Region.MaxY) / 2)
	view.CenterLng = round6((q.Region.MinX + q.Region.MaxX) / 2)
	return view, nil
}

// round6 keeps derived centers short enough for artifact names.
func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("parse float: %q is not finite", v)
	}
	return f, nil
}
