package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/overture-extract/internal/core/router"
	h3mapper "github.com/mohammed-shakir/overture-extract/internal/mapper/h3"
)

// newCellsCommand lists the H3 cells covering a bbox, handy for picking
// --cell values.
func newCellsCommand(stdout io.Writer) *cobra.Command {
	var (
		bbox string
		res  int
	)
	cmd := &cobra.Command{
		Use:   "cells",
		Short: "List H3 cells covering a bbox",
		RunE: func(*cobra.Command, []string) error {
			region, err := router.ParseBBox(bbox)
			if err != nil {
				return fmt.Errorf("invalid bbox: %w", err)
			}
			cells, err := h3mapper.CellsForBBox(region, res)
			if err != nil {
				return err
			}
			for _, c := range cells {
				_, _ = fmt.Fprintln(stdout, c)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bbox, "bbox", "", "region as minx,miny,maxx,maxy")
	cmd.Flags().IntVar(&res, "res", 8, "H3 resolution")
	return cmd
}
