// Package app assembles the download pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/mohammed-shakir/overture-extract/internal/cache/redisstore"
	"github.com/mohammed-shakir/overture-extract/internal/catalog"
	"github.com/mohammed-shakir/overture-extract/internal/core/config"
	"github.com/mohammed-shakir/overture-extract/internal/core/health"
	"github.com/mohammed-shakir/overture-extract/internal/core/httpclient"
	"github.com/mohammed-shakir/overture-extract/internal/dataset"
	"github.com/mohammed-shakir/overture-extract/internal/download"
	"github.com/mohammed-shakir/overture-extract/internal/export"
	"github.com/mohammed-shakir/overture-extract/internal/manifest"
	"github.com/mohammed-shakir/overture-extract/internal/retrieval"
	"github.com/mohammed-shakir/overture-extract/internal/storage"
)

type App struct {
	Resolver *manifest.Resolver
	Builder  *catalog.Builder
	Service  *download.Service
	// S3 is also used by the object sink.
	S3 *minio.Client
	// Redis is nil when the artifact cache is disabled or unreachable.
	Redis *redisstore.Client
}

// New wires resolver, catalog, storage, reader, orchestrator, emitter and
// download service. An unreachable Redis disables the artifact cache
// instead of failing startup.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := httpclient.NewOutbound(cfg.FetchTimeout)

	src := manifest.NewHTTPSource(client, cfg.ManifestPointerURL, cfg.ManifestURLTemplate, cfg.StorageRoot)
	resolver := manifest.NewResolver(src, logger, cfg.FetchTimeout)
	builder := catalog.NewBuilder(resolver, logger)

	s3, err := storage.NewS3Client(cfg.S3)
	if err != nil {
		return nil, err
	}
	opener := &storage.Router{
		S3:   storage.NewS3Opener(s3),
		HTTP: storage.NewHTTPOpener(client),
		File: storage.FileOpener{},
	}
	reader := dataset.NewParquetReader(opener, cfg.ReadBatchSize, logger)
	orch := retrieval.New(reader, logger, retrieval.WithPolicy(retrieval.ParsePolicy(cfg.RetrievalPolicy)))
	emitter := export.NewEmitter(export.GeoJSONEncoder{}, logger)

	opts := []download.Option{download.WithMinZoom(cfg.MinDownloadZoom)}
	var rc *redisstore.Client
	if cfg.ArtifactCacheEnabled {
		rc, err = redisstore.New(ctx, cfg.RedisAddr, redisstore.WithDialTimeout(time.Second))
		if err != nil {
			logger.WarnContext(ctx, "artifact cache disabled", "addr", cfg.RedisAddr, "err", err)
			rc = nil
		} else {
			opts = append(opts, download.WithCache(rc, cfg.ArtifactCacheTTL, cfg.CacheOpTimeout))
		}
	}

	return &App{
		Resolver: resolver,
		Builder:  builder,
		Service:  download.New(builder, orch, emitter, logger, opts...),
		S3:       s3,
		Redis:    rc,
	}, nil
}

// Warm resolves the manifest once so readiness can pass before the first
// request.
func (a *App) Warm(ctx context.Context) error {
	if _, err := a.Resolver.Resolve(ctx); err != nil {
		return fmt.Errorf("warm manifest: %w", err)
	}
	return nil
}

// ReadyChecks describes readiness for the HTTP server.
func (a *App) ReadyChecks(cfg config.Config) health.Checks {
	c := health.Checks{Manifest: a.Resolver, Timeout: cfg.CacheOpTimeout}
	if a.Redis != nil {
		c.Redis = a.Redis
	}
	return c
}

func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	return errors.Join(errs...)
}
