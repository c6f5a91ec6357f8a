package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/overture-extract/internal/download"
	"github.com/mohammed-shakir/overture-extract/internal/export"
	"github.com/mohammed-shakir/overture-extract/internal/logger"
)

type downloadFlags struct {
	out    string
	zip    string
	bucket string
	prefix string
	expiry time.Duration
}

func newDownloadCommand(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	rf := &regionFlags{}
	df := &downloadFlags{}
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Write one GeoJSON file per feature type for a viewport",
		Long: `
Writes overture-<type>-<zoom>-<lat>-<lng>.geojson for every requested type
that has features in the region. Output goes to a directory (--out), a zip
archive (--zip) or an S3 bucket (--bucket, prints presigned links).
`,
		RunE: func(c *cobra.Command, _ []string) error {
			q, err := rf.query(true)
			if err != nil {
				return err
			}
			if countSet(df.out, df.zip, df.bucket) > 1 {
				return errors.New("use only one of --out, --zip or --bucket")
			}

			_, a, lg, err := setup(c.Context(), g, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := logger.WithRequestID(c.Context(), "")
			req := download.Request{Region: q.Region, Types: q.Types, View: q.View}

			var (
				sink   export.Sink
				finish = func() error { return nil }
				report = func(download.Result) {}
			)
			switch {
			case df.zip != "":
				f, err := os.Create(df.zip)
				if err != nil {
					return fmt.Errorf("create %s: %w", df.zip, err)
				}
				zs := export.NewZipSink(f)
				sink = zs
				finish = func() error { return errors.Join(zs.Close(), f.Close()) }
			case df.bucket != "":
				objs := &export.ObjectSink{Client: a.S3, Bucket: df.bucket, Prefix: df.prefix, Expiry: df.expiry}
				sink = objs
				report = func(download.Result) {
					for _, l := range objs.Links() {
						_, _ = fmt.Fprintf(stdout, "%s\t%s\n", l.Name, l.URL)
					}
				}
			default:
				dir := df.out
				if dir == "" {
					dir = "."
				}
				sink = export.DirSink{Dir: dir}
				report = func(res download.Result) {
					for _, art := range res.Artifacts {
						_, _ = fmt.Fprintf(stdout, "%s\t%d\n", art.Name, art.Rows)
					}
				}
			}

			res, err := a.Service.Download(ctx, req, sink)
			if ferr := finish(); err == nil {
				err = ferr
			}
			if err != nil {
				return err
			}
			for _, f := range res.Failures {
				lg.WarnContext(ctx, "type failed", "type", f.Type, "err", f.Err)
			}
			if len(res.Artifacts) == 0 {
				lg.InfoContext(ctx, "no features in region", "release", res.Plan.Version)
			}
			report(res)
			return nil
		},
	}
	rf.register(cmd, true)
	flags := cmd.Flags()
	flags.StringVarP(&df.out, "out", "o", "", "output directory (default current directory)")
	flags.StringVar(&df.zip, "zip", "", "write a zip archive instead of loose files")
	flags.StringVar(&df.bucket, "bucket", "", "upload to this S3 bucket")
	flags.StringVar(&df.prefix, "prefix", "", "object key prefix for --bucket")
	flags.DurationVar(&df.expiry, "link-expiry", time.Hour, "presigned link lifetime for --bucket")
	return cmd
}

func countSet(vals ...string) int {
	n := 0
	for _, v := range vals {
		if v != "" {
			n++
		}
	}
	return n
}
