package model

import "testing"

func TestBBoxIntersects(t *testing.T) {
	a := BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	cases := []struct {
		name string
		b    BBox
		want bool
	}{
		{"corner_touch", BBox{MinX: 10, MinY: 10, MaxX: 20, MaxY: 20}, false},
		{"edge_touch", BBox{MinX: 10, MinY: 0, MaxX: 20, MaxY: 10}, false},
		{"overlap", BBox{MinX: 5, MinY: 5, MaxX: 15, MaxY: 15}, true},
		{"disjoint", BBox{MinX: 20, MinY: 20, MaxX: 30, MaxY: 30}, false},
		{"contained", BBox{MinX: 2, MinY: 2, MaxX: 3, MaxY: 3}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := a.Intersects(tc.b); got != tc.want {
				t.Fatalf("a.Intersects(b)=%v want %v", got, tc.want)
			}
			if got := tc.b.Intersects(a); got != tc.want {
				t.Fatalf("b.Intersects(a)=%v want %v (not symmetric)", got, tc.want)
			}
		})
	}
}

func TestBBoxInverted(t *testing.T) {
	if (BBox{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}).Inverted() {
		t.Fatalf("regular box reported inverted")
	}
	if !(BBox{MinX: 170, MinY: 0, MaxX: -170, MaxY: 1}).Inverted() {
		t.Fatalf("antimeridian-style box not reported inverted")
	}
}

func TestManifestTypeLookup(t *testing.T) {
	m := NewManifest("v1", "s3://b/release/v1", []PartitionRecord{
		{Type: "building", Path: "b1"},
		{Type: "place", Path: "p1"},
		{Type: "building", Path: "b2"},
	})
	if !m.HasType("building") || m.HasType("segment") {
		t.Fatalf("HasType mismatch")
	}
	got := m.PartitionsOf("building")
	if len(got) != 2 || got[0].Path != "b1" || got[1].Path != "b2" {
		t.Fatalf("PartitionsOf(building)=%+v want b1,b2 in order", got)
	}
	if types := m.Types(); len(types) != 2 || types[0] != "building" || types[1] != "place" {
		t.Fatalf("Types()=%v", types)
	}
}
