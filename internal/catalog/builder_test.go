package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
)

type staticResolver struct {
	m   *model.Manifest
	err error
}

func (s staticResolver) Resolve(context.Context) (*model.Manifest, error) { return s.m, s.err }

func bb(a, b, c, d float64) model.BBox { return model.BBox{MinX: a, MinY: b, MaxX: c, MaxY: d} }

func TestBuildPlan_EndToEndScenario(t *testing.T) {
	m := model.NewManifest("v1", "s3://bucket/release/v1", []model.PartitionRecord{
		{Type: "building", BBox: bb(-1, -1, 1, 1), Path: "b1"},
		{Type: "place", BBox: bb(5, 5, 6, 6), Path: "p1"},
	})
	b := NewBuilder(staticResolver{m: m}, nil)

	plan, err := b.BuildPlan(context.Background(), bb(0, 0, 2, 2), []string{"building", "place"})
	if err != nil {
		t.Fatalf("BuildPlan err=%v", err)
	}
	want := []model.TypePlan{{Name: "building", Files: []string{"b1"}}}
	if !reflect.DeepEqual(plan.Types, want) {
		t.Fatalf("Types=%+v want %+v", plan.Types, want)
	}
	if plan.BasePath != "s3://bucket/release/v1" || plan.Version != "v1" {
		t.Fatalf("plan=%+v", plan)
	}
}

func TestBuildPlan_EdgeTouchDoesNotIntersect(t *testing.T) {
	m := model.NewManifest("v1", "root/v1", []model.PartitionRecord{
		{Type: "building", BBox: bb(10, 0, 20, 10), Path: "east"},
		{Type: "building", BBox: bb(10, 10, 20, 20), Path: "corner"},
		{Type: "building", BBox: bb(9.999, 0, 20, 10), Path: "overlap"},
	})
	b := NewBuilder(staticResolver{m: m}, nil)

	plan, err := b.BuildPlan(context.Background(), bb(0, 0, 10, 10), []string{"building"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	want := []model.TypePlan{{Name: "building", Files: []string{"overlap"}}}
	if !reflect.DeepEqual(plan.Types, want) {
		t.Fatalf("Types=%+v want %+v", plan.Types, want)
	}
}

func TestBuildPlan_UnknownAndEmptyTypesOmitted(t *testing.T) {
	m := model.NewManifest("v1", "root/v1", []model.PartitionRecord{
		{Type: "building", BBox: bb(0, 0, 1, 1), Path: "b"},
	}, "building", "segment")
	b := NewBuilder(staticResolver{m: m}, nil)

	plan, err := b.BuildPlan(context.Background(), bb(0, 0, 1, 1), []string{"segment", "nope", "building"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(plan.Types) != 1 || plan.Types[0].Name != "building" {
		t.Fatalf("Types=%+v want only building", plan.Types)
	}
}

func TestBuildPlan_NoIntersectionsIsEmptyNotError(t *testing.T) {
	m := model.NewManifest("v1", "root/v1", []model.PartitionRecord{
		{Type: "building", BBox: bb(0, 0, 1, 1), Path: "b"},
	})
	b := NewBuilder(staticResolver{m: m}, nil)

	plan, err := b.BuildPlan(context.Background(), bb(50, 50, 51, 51), []string{"building"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if plan.Types == nil || len(plan.Types) != 0 {
		t.Fatalf("Types=%#v want empty non-nil", plan.Types)
	}
}

func TestBuildPlan_PreservesRequestAndManifestOrder(t *testing.T) {
	m := model.NewManifest("v1", "root/v1", []model.PartitionRecord{
		{Type: "address", BBox: bb(0, 0, 5, 5), Path: "a0"},
		{Type: "building", BBox: bb(3, 3, 9, 9), Path: "b2"},
		{Type: "building", BBox: bb(0, 0, 4, 4), Path: "b0"},
		{Type: "building", BBox: bb(1, 1, 2, 2), Path: "b1"},
	})
	b := NewBuilder(staticResolver{m: m}, nil)

	plan, err := b.BuildPlan(context.Background(), bb(0, 0, 10, 10), []string{"building", "address", "building"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	want := []model.TypePlan{
		{Name: "building", Files: []string{"b2", "b0", "b1"}},
		{Name: "address", Files: []string{"a0"}},
	}
	if !reflect.DeepEqual(plan.Types, want) {
		t.Fatalf("Types=%+v want %+v", plan.Types, want)
	}
}

func TestBuildPlan_IndexMatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var parts []model.PartitionRecord
	for i := 0; i < 500; i++ {
		x := rng.Float64()*360 - 180
		y := rng.Float64()*170 - 85
		w := rng.Float64() * 4
		h := rng.Float64() * 4
		// some edges land exactly on the grid to exercise touching boxes
		if i%10 == 0 {
			x, y = math.Floor(x), math.Floor(y)
			w, h = 1, 1
		}
		parts = append(parts, model.PartitionRecord{Type: "building", BBox: bb(x, y, x+w, y+h), Path: fmt.Sprintf("part-%03d", i)})
	}
	m := model.NewManifest("v1", "root/v1", parts)
	b := NewBuilder(staticResolver{m: m}, nil)

	for q := 0; q < 50; q++ {
		x := math.Floor(rng.Float64()*340 - 170)
		y := math.Floor(rng.Float64()*150 - 75)
		region := bb(x, y, x+rng.Float64()*20, y+rng.Float64()*20)

		var want []string
		for _, p := range parts {
			if p.BBox.Intersects(region) {
				want = append(want, p.Path)
			}
		}
		plan, err := b.BuildPlan(context.Background(), region, []string{"building"})
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		var got []string
		if len(plan.Types) == 1 {
			got = plan.Types[0].Files
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("region %s: got %v want %v", region, got, want)
		}
	}
}

func TestBuildPlan_InvalidRegion(t *testing.T) {
	b := NewBuilder(staticResolver{m: model.NewManifest("v1", "root/v1", nil)}, nil)
	for _, r := range []model.BBox{
		bb(10, 0, 0, 10),
		bb(0, 10, 10, 0),
		bb(math.NaN(), 0, 1, 1),
		bb(0, 0, math.Inf(1), 1),
	} {
		if _, err := b.BuildPlan(context.Background(), r, []string{"building"}); !errors.Is(err, ErrInvalidRegion) {
			t.Fatalf("region %v err=%v want ErrInvalidRegion", r, err)
		}
	}
}

func TestBuildPlan_ManifestErrorPropagates(t *testing.T) {
	boom := errors.New("manifest down")
	b := NewBuilder(staticResolver{err: boom}, nil)
	if _, err := b.BuildPlan(context.Background(), bb(0, 0, 1, 1), []string{"building"}); !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}
}

func TestBuilder_ReindexesOnNewManifest(t *testing.T) {
	m1 := model.NewManifest("v1", "root/v1", []model.PartitionRecord{{Type: "place", BBox: bb(0, 0, 1, 1), Path: "old"}})
	m2 := model.NewManifest("v2", "root/v2", []model.PartitionRecord{{Type: "place", BBox: bb(0, 0, 1, 1), Path: "new"}})
	b := NewBuilder(nil, nil)

	p1, _ := b.Build(context.Background(), m1, bb(0, 0, 1, 1), []string{"place"})
	p2, _ := b.Build(context.Background(), m2, bb(0, 0, 1, 1), []string{"place"})
	if p1.Types[0].Files[0] != "old" || p2.Types[0].Files[0] != "new" {
		t.Fatalf("p1=%+v p2=%+v", p1, p2)
	}
}

func TestBuildPlan_RepeatedCallsYieldIdenticalPlans(t *testing.T) {
	var parts []model.PartitionRecord
	for i := 0; i < 40; i++ {
		x := float64(i % 8)
		y := float64(i / 8)
		parts = append(parts,
			model.PartitionRecord{Type: "building", BBox: bb(x, y, x+1.5, y+1.5), Path: fmt.Sprintf("b/part-%02d.parquet", i)},
			model.PartitionRecord{Type: "segment", BBox: bb(x, y, x+0.5, y+0.5), Path: fmt.Sprintf("s/part-%02d.parquet", i)},
		)
	}
	m := model.NewManifest("2024-09-18.0", "s3://bucket/release/2024-09-18.0", parts)
	b := NewBuilder(staticResolver{m: m}, nil)
	region := bb(1.2, 0.7, 4.3, 3.1)
	types := []string{"segment", "building", "place"}

	first, err := b.BuildPlan(context.Background(), region, types)
	if err != nil {
		t.Fatalf("first BuildPlan err=%v", err)
	}
	idx := b.idx.Load()

	second, err := b.BuildPlan(context.Background(), region, types)
	if err != nil {
		t.Fatalf("second BuildPlan err=%v", err)
	}
	if b.idx.Load() != idx {
		t.Fatalf("index rebuilt for an unchanged manifest")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("plans differ:\nfirst=%+v\nsecond=%+v", first, second)
	}
	if first.Version != "2024-09-18.0" || first.BasePath != "s3://bucket/release/2024-09-18.0" {
		t.Fatalf("plan=%+v", first)
	}
	if len(first.Types) != 2 || first.Types[0].Name != "segment" || first.Types[1].Name != "building" {
		t.Fatalf("types=%+v want segment then building", first.Types)
	}
	for _, tp := range first.Types {
		for i := 1; i < len(tp.Files); i++ {
			if tp.Files[i-1] >= tp.Files[i] {
				t.Fatalf("%s files out of manifest order: %v", tp.Name, tp.Files)
			}
		}
	}
}
