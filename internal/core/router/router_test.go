package router

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammed-shakir/overture-extract/internal/catalog"
	"github.com/mohammed-shakir/overture-extract/internal/core/model"
	"github.com/mohammed-shakir/overture-extract/internal/download"
	"github.com/mohammed-shakir/overture-extract/internal/export"
	"github.com/mohammed-shakir/overture-extract/internal/manifest"
	"github.com/mohammed-shakir/overture-extract/internal/retrieval"
)

type fakeService struct {
	plan    model.DownloadPlan
	arts    []export.Artifact
	fail    []download.Failure
	err     error
	lastReq download.Request
}

func (f *fakeService) Catalog(_ context.Context, region model.BBox, _ []string) (model.DownloadPlan, error) {
	p := f.plan
	p.Region = region
	return p, f.err
}

func (f *fakeService) Download(ctx context.Context, req download.Request, sink export.Sink) (download.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return download.Result{}, f.err
	}
	if err := export.Deliver(ctx, sink, f.arts); err != nil {
		return download.Result{}, err
	}
	return download.Result{Plan: f.plan, Artifacts: f.arts, Failures: f.fail}, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func plan() model.DownloadPlan {
	return model.DownloadPlan{
		Version:  "2024-09-18.0",
		BasePath: "s3://bucket/release/2024-09-18.0",
		Types:    []model.TypePlan{{Name: "building", Files: []string{"part-1.parquet"}}},
	}
}

func TestHandleCatalog(t *testing.T) {
	svc := &fakeService{plan: plan()}
	rr := httptest.NewRecorder()
	HandleCatalog(discard(), svc)(rr, httptest.NewRequest(http.MethodGet, "/catalog?bbox=0,0,1,1&types=building", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	var got struct {
		Region  [4]float64       `json:"region"`
		Version string           `json:"version"`
		Types   []model.TypePlan `json:"types"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Version != "2024-09-18.0" || len(got.Types) != 1 || got.Types[0].Files[0] != "part-1.parquet" {
		t.Fatalf("plan=%+v", got)
	}
	if got.Region != [4]float64{0, 0, 1, 1} {
		t.Fatalf("region=%v", got.Region)
	}
}

func TestHandleDownload_Zip(t *testing.T) {
	svc := &fakeService{
		plan: plan(),
		arts: []export.Artifact{
			{Name: "overture-building-16-0.5-0.5.geojson", Type: "building", Payload: []byte(`{"type":"FeatureCollection"}`), Rows: 1},
		},
		fail: []download.Failure{{Type: "place", Err: errors.New("corrupt")}},
	}
	rr := httptest.NewRecorder()
	HandleDownload(discard(), svc)(rr, httptest.NewRequest(http.MethodGet, "/download?bbox=0,0,1,1&types=building,place&zoom=16", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("content-type=%q", ct)
	}
	if got := rr.Header().Get("X-Failed-Types"); got != "place" {
		t.Fatalf("failed types header=%q", got)
	}
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="overture-extract-16-0.5-0.5.zip"` {
		t.Fatalf("disposition=%q", got)
	}
	if svc.lastReq.View != (model.View{Zoom: 16, CenterLat: 0.5, CenterLng: 0.5}) {
		t.Fatalf("view=%+v", svc.lastReq.View)
	}

	body := rr.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "overture-building-16-0.5-0.5.geojson" {
		t.Fatalf("entries=%v", zr.File)
	}
}

func TestHandleDownload_NoArtifacts(t *testing.T) {
	rr := httptest.NewRecorder()
	HandleDownload(discard(), &fakeService{plan: plan()})(rr, httptest.NewRequest(http.MethodGet, "/download?bbox=0,0,1,1&types=building&zoom=16", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d want 204", rr.Code)
	}
}

func TestHandleDownload_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: 14 < 15", download.ErrZoomTooLow), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: status 500", manifest.ErrUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: bad bbox", manifest.ErrMalformed), http.StatusServiceUnavailable},
		{&retrieval.TypeError{Type: "building", Stage: retrieval.StageAcquire, Err: errors.New("403")}, http.StatusBadGateway},
		{&retrieval.TypeError{Type: "building", Stage: retrieval.StageRead, Err: errors.New("eof")}, http.StatusBadGateway},
		{fmt.Errorf("%w: building: bad wkb", export.ErrEncoding), http.StatusBadGateway},
		{fmt.Errorf("%w: inverted", catalog.ErrInvalidRegion), http.StatusBadRequest},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		HandleDownload(discard(), &fakeService{err: tc.err})(rr, httptest.NewRequest(http.MethodGet, "/download?bbox=0,0,1,1&types=building&zoom=16", nil))
		if rr.Code != tc.code {
			t.Fatalf("%v: status=%d want %d", tc.err, rr.Code, tc.code)
		}
	}

	rr := httptest.NewRecorder()
	HandleDownload(discard(), &fakeService{})(rr, httptest.NewRequest(http.MethodGet, "/download?types=building&zoom=16", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing region status=%d want 400", rr.Code)
	}
}

type fakeInvalidator struct {
	m     *model.Manifest
	calls int
}

func (f *fakeInvalidator) Cached() (*model.Manifest, bool) { return f.m, f.m != nil }
func (f *fakeInvalidator) Invalidate()                     { f.calls++; f.m = nil }

func TestHandleInvalidate(t *testing.T) {
	inv := &fakeInvalidator{m: model.NewManifest("v1", "root/v1", nil)}
	rr := httptest.NewRecorder()
	HandleInvalidate(discard(), inv)(rr, httptest.NewRequest(http.MethodPost, "/manifest/invalidate", nil))
	if rr.Code != http.StatusAccepted || inv.calls != 1 {
		t.Fatalf("status=%d calls=%d", rr.Code, inv.calls)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte(`"previous":"v1"`)) {
		t.Fatalf("body=%s", rr.Body)
	}
}
