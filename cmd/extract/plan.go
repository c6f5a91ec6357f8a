package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/overture-extract/internal/core/router"
)

func newPlanCommand(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	rf := &regionFlags{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the partitions a region would read",
		RunE: func(c *cobra.Command, _ []string) error {
			q, err := rf.query(false)
			if err != nil {
				return err
			}
			_, a, _, err := setup(c.Context(), g, stderr)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			plan, err := a.Service.Catalog(c.Context(), q.Region, q.Types)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(router.NewCatalogResponse(plan))
		},
	}
	rf.register(cmd, false)
	return cmd
}
