// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"strconv"
)

// BBox is an axis-aligned box in lon/lat degrees.
type BBox struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// String representation matching the manifest bbox order
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// Intersects uses a half-open test: boxes that only share an edge or a
// corner do not intersect.
func (b BBox) Intersects(o BBox) bool {
	return b.MinX < o.MaxX &&
		b.MaxX > o.MinX &&
		b.MinY < o.MaxY &&
		b.MaxY > o.MinY
}

// Overlaps is the closed variant of Intersects; shared edges count. Row
// level filtering uses it so features on the viewport border are kept.
func (b BBox) Overlaps(o BBox) bool {
	return b.MinX <= o.MaxX &&
		b.MaxX >= o.MinX &&
		b.MinY <= o.MaxY &&
		b.MaxY >= o.MinY
}

// Inverted reports whether min exceeds max on either axis.
func (b BBox) Inverted() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY
}

// Array returns the box as [minx, miny, maxx, maxy].
func (b BBox) Array() [4]float64 {
	return [4]float64{b.MinX, b.MinY, b.MaxX, b.MaxY}
}

func BBoxFromArray(a [4]float64) BBox {
	return BBox{MinX: a[0], MinY: a[1], MaxX: a[2], MaxY: a[3]}
}

// PartitionRecord is one file of the remote dataset.
type PartitionRecord struct {
	Type string
	BBox BBox
	Path string
}

// Manifest is the normalized index of every partition in a published release.
// It is never mutated after construction.
type Manifest struct {
	Version    string
	BasePath   string
	Partitions []PartitionRecord

	// type -> indexes into Partitions, in manifest order
	byType map[string][]int
	types  []string
}

// NewManifest indexes parts by type. declared lists types the document
// named, so a type with an empty file list is kept as present but empty.
func NewManifest(version, basePath string, parts []PartitionRecord, declared ...string) *Manifest {
	m := &Manifest{
		Version:    version,
		BasePath:   basePath,
		Partitions: parts,
		byType:     make(map[string][]int),
	}
	for _, t := range declared {
		if _, ok := m.byType[t]; !ok {
			m.types = append(m.types, t)
			m.byType[t] = []int{}
		}
	}
	for i, p := range parts {
		if _, ok := m.byType[p.Type]; !ok {
			m.types = append(m.types, p.Type)
		}
		m.byType[p.Type] = append(m.byType[p.Type], i)
	}
	return m
}

// HasType distinguishes an absent type from one with partitions.
func (m *Manifest) HasType(t string) bool {
	_, ok := m.byType[t]
	return ok
}

// PartitionsOf returns the partitions of type t in manifest order.
func (m *Manifest) PartitionsOf(t string) []PartitionRecord {
	idx := m.byType[t]
	out := make([]PartitionRecord, 0, len(idx))
	for _, i := range idx {
		out = append(out, m.Partitions[i])
	}
	return out
}

// Types lists type ids in the order they first appear in the manifest.
func (m *Manifest) Types() []string {
	out := make([]string, len(m.types))
	copy(out, m.types)
	return out
}

// TypePlan lists the files of one type that must be read.
type TypePlan struct {
	Name  string   `json:"name"`
	Files []string `json:"files"`
}

// DownloadPlan is derived per request. Types with no intersecting
// partitions are omitted.
type DownloadPlan struct {
	Version  string     `json:"version,omitempty"`
	BasePath string     `json:"basePath"`
	Region   BBox       `json:"-"`
	Types    []TypePlan `json:"types"`
}

// View is the map viewport a download was started from.
type View struct {
	Zoom      float64
	CenterLat float64
	CenterLng float64
}

func (v View) String() string {
	return strconv.FormatFloat(v.Zoom, 'f', -1, 64) + "@" +
		strconv.FormatFloat(v.CenterLat, 'f', -1, 64) + "," +
		strconv.FormatFloat(v.CenterLng, 'f', -1, 64)
}
