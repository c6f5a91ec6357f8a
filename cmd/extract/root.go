package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/overture-extract/internal/app"
	"github.com/mohammed-shakir/overture-extract/internal/core/config"
	"github.com/mohammed-shakir/overture-extract/internal/core/router"
	"github.com/mohammed-shakir/overture-extract/internal/logger"
)

type globalFlags struct {
	envFile  string
	logLevel string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "extract",
		Short: "Plan and download Overture features for a map viewport",
		Long: `
Resolves the current release manifest, selects the partitions a region
touches and writes one GeoJSON file per feature type.
`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.envFile, "env-file", ".env", "optional dotenv file")
	pf.StringVar(&g.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	root.AddCommand(
		newPlanCommand(g, stdout, stderr),
		newDownloadCommand(g, stdout, stderr),
		newCellsCommand(stdout),
		newAnnounceCommand(g, stdout),
	)
	return root
}

// setup loads configuration and wires the pipeline. Logs go to stderr so
// stdout stays machine readable.
func setup(ctx context.Context, g *globalFlags, stderr io.Writer) (config.Config, *app.App, *slog.Logger, error) {
	cfg := config.Load(g.envFile)
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   true,
		Component: "extract",
	}, stderr)
	lg := logger.NewSlog(&zl)

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, a, lg, nil
}

// regionFlags are shared by plan and download.
type regionFlags struct {
	bbox   string
	cell   string
	types  []string
	zoom   string
	center string
}

func (r *regionFlags) register(cmd *cobra.Command, withView bool) {
	flags := cmd.Flags()
	flags.StringVar(&r.bbox, "bbox", "", "region as minx,miny,maxx,maxy")
	flags.StringVar(&r.cell, "cell", "", "region as the bounds of an H3 cell")
	flags.StringSliceVarP(&r.types, "types", "t", nil, "feature types, comma separated")
	if withView {
		flags.StringVar(&r.zoom, "zoom", "", "viewport zoom")
		flags.StringVar(&r.center, "center", "", "viewport center as lat,lng (defaults to the region center)")
	}
}

func (r *regionFlags) query(withView bool) (router.Query, error) {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("bbox", r.bbox)
	set("cell", r.cell)
	set("types", strings.Join(r.types, ","))
	set("zoom", r.zoom)
	set("center", r.center)

	q, warn, err := router.ParseQuery(v, withView)
	if err != nil {
		return router.Query{}, err
	}
	if warn != "" {
		return router.Query{}, fmt.Errorf("%s", warn)
	}
	return q, nil
}
