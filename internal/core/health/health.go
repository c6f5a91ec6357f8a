// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mohammed-shakir/overture-extract/internal/core/model"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}
}

// ManifestCache is implemented by *manifest.Resolver.
type ManifestCache interface {
	Cached() (*model.Manifest, bool)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Checks lists what must hold before traffic is accepted. Redis is optional
// and only checked when set.
type Checks struct {
	Manifest ManifestCache
	Redis    Pinger
	Timeout  time.Duration
}

type readiness struct {
	Status  string            `json:"status"`
	Release string            `json:"release,omitempty"`
	Checks  map[string]string `json:"checks"`
}

// Readiness reports ready once a manifest is cached and every optional
// dependency answers.
func Readiness(c Checks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := readiness{Status: "ready", Checks: map[string]string{}}

		if m, ok := c.Manifest.Cached(); ok {
			out.Release = m.Version
			out.Checks["manifest"] = "ok"
		} else {
			out.Status = "not_ready"
			out.Checks["manifest"] = "not loaded"
		}

		if c.Redis != nil {
			timeout := c.Timeout
			if timeout <= 0 {
				timeout = time.Second
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			err := c.Redis.Ping(ctx)
			cancel()
			if err != nil {
				out.Status = "not_ready"
				out.Checks["redis"] = err.Error()
			} else {
				out.Checks["redis"] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if out.Status != "ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
