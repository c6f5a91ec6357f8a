// Package router holds the HTTP handlers for catalog, download and manifest
// administration.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/overture-extract/internal/catalog"
	"github.com/mohammed-shakir/overture-extract/internal/core/model"
	"github.com/mohammed-shakir/overture-extract/internal/download"
	"github.com/mohammed-shakir/overture-extract/internal/export"
	"github.com/mohammed-shakir/overture-extract/internal/manifest"
	h3mapper "github.com/mohammed-shakir/overture-extract/internal/mapper/h3"
	"github.com/mohammed-shakir/overture-extract/internal/retrieval"
)

// Service is implemented by *download.Service.
type Service interface {
	Catalog(ctx context.Context, region model.BBox, types []string) (model.DownloadPlan, error)
	Download(ctx context.Context, req download.Request, sink export.Sink) (download.Result, error)
}

// Invalidator is implemented by *manifest.Resolver.
type Invalidator interface {
	Cached() (*model.Manifest, bool)
	Invalidate()
}

// CatalogResponse is the JSON form of a plan; the region is echoed back
// since the plan itself does not serialize it.
type CatalogResponse struct {
	Region [4]float64 `json:"region"`
	model.DownloadPlan
}

func NewCatalogResponse(plan model.DownloadPlan) CatalogResponse {
	return CatalogResponse{Region: plan.Region.Array(), DownloadPlan: plan}
}

// HandleCatalog answers with the download plan for a region.
func HandleCatalog(logger *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, warn, err := ParseQuery(r.URL.Query(), false)
		if warn != "" {
			logger.WarnContext(r.Context(), warn)
		}
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		plan, err := svc.Catalog(r.Context(), q.Region, q.Types)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, NewCatalogResponse(plan))
	}
}

// HandleDownload streams one zip holding an artifact per type with rows.
// The archive is assembled before the first byte is written so any failure
// still maps to a proper status. No artifacts answers 204.
func HandleDownload(logger *slog.Logger, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, warn, err := ParseQuery(r.URL.Query(), true)
		if warn != "" {
			logger.WarnContext(r.Context(), warn)
		}
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		var buf bytes.Buffer
		zs := export.NewZipSink(&buf)
		res, err := svc.Download(r.Context(), download.Request{Region: q.Region, Types: q.Types, View: q.View}, zs)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		if err := zs.Close(); err != nil {
			writeError(w, r, logger, fmt.Errorf("%w: finalize zip: %w", export.ErrDelivery, err))
			return
		}

		h := w.Header()
		h.Set("X-Overture-Release", res.Plan.Version)
		if res.Cached {
			h.Set("X-Artifact-Cache", "hit")
		} else {
			h.Set("X-Artifact-Cache", "miss")
		}
		if len(res.Failures) > 0 {
			failed := make([]string, 0, len(res.Failures))
			for _, f := range res.Failures {
				failed = append(failed, f.Type)
				logger.WarnContext(r.Context(), "type failed under partial policy", "type", f.Type, "err", f.Err)
			}
			h.Set("X-Failed-Types", strings.Join(failed, ","))
		}
		if zs.Entries() == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		h.Set("Content-Type", "application/zip")
		h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, archiveName(q.View)))
		h.Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

func archiveName(v model.View) string {
	return export.ArtifactName("extract", v, "zip")
}

// HandleInvalidate drops the cached manifest so the next request refetches.
func HandleInvalidate(logger *slog.Logger, inv Invalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var previous string
		if m, ok := inv.Cached(); ok {
			previous = m.Version
		}
		inv.Invalidate()
		logger.InfoContext(r.Context(), "manifest invalidated via admin endpoint", "previous", previous)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "invalidated", "previous": previous})
	}
}

// StatusFor maps pipeline errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, catalog.ErrInvalidRegion),
		errors.Is(err, h3mapper.ErrInvalidCell):
		return http.StatusBadRequest
	case errors.Is(err, download.ErrZoomTooLow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, manifest.ErrUnavailable),
		errors.Is(err, manifest.ErrMalformed):
		return http.StatusServiceUnavailable
	case errors.Is(err, retrieval.ErrAcquisition),
		errors.Is(err, retrieval.ErrRead),
		errors.Is(err, export.ErrEncoding):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := StatusFor(err)
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		logger.InfoContext(r.Context(), "client went away", "err", err)
		return
	}
	if code >= 500 {
		logger.ErrorContext(r.Context(), "request failed", "status", code, "err", err)
	} else {
		logger.InfoContext(r.Context(), "request rejected", "status", code, "err", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
