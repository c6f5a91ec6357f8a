package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/overture-extract/internal/core/config"
	"github.com/mohammed-shakir/overture-extract/internal/invalidation/kafkapublisher"
)

// newAnnounceCommand publishes a release version on the invalidation topic
// so running servers drop their cached manifest.
func newAnnounceCommand(g *globalFlags, stdout io.Writer) *cobra.Command {
	var release string
	cmd := &cobra.Command{
		Use:   "announce",
		Short: "Announce a published release to running servers",
		RunE: func(*cobra.Command, []string) error {
			if strings.TrimSpace(release) == "" {
				return fmt.Errorf("--release is required")
			}
			cfg := config.Load(g.envFile)
			var brokers []string
			for _, b := range strings.Split(cfg.Invalidation.Brokers, ",") {
				if b = strings.TrimSpace(b); b != "" {
					brokers = append(brokers, b)
				}
			}
			pub, err := kafkapublisher.New(brokers, cfg.Invalidation.Topic)
			if err != nil {
				return err
			}
			defer func() { _ = pub.Close() }()

			partition, offset, err := pub.Announce(strings.TrimSpace(release))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "announced %s on %s partition=%d offset=%d\n",
				release, cfg.Invalidation.Topic, partition, offset)
			return nil
		},
	}
	cmd.Flags().StringVar(&release, "release", "", "release version to announce")
	return cmd
}
