package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/DyogenIBENS/FINSURF/internal/tabix"
)

func newChromsCmd(stdout io.Writer) *cobra.Command {
	var showMode bool

	cmd := &cobra.Command{
		Use:   "chroms <dataset>",
		Short: "List the chromosomes of a dataset",
		Long:  "List the chromosomes of a dataset, read from its .tbi or .csi index.",
		Example: `  finsurf chroms scores.tsv.gz
  finsurf chroms --mode regulatory.bed.gz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChroms(args[0], showMode, stdout)
		},
	}
	cmd.Flags().BoolVar(&showMode, "mode", false, "Print the naming mode (prefixed or bare) first")

	return cmd
}

func runChroms(path string, showMode bool, w io.Writer) error {
	ds, err := tabix.Open(path)
	if err != nil {
		return err
	}
	defer ds.Close()

	cat := ds.Catalogue()
	if showMode {
		fmt.Fprintf(w, "# %s\n", cat.Mode())
	}
	for _, name := range cat.Names() {
		fmt.Fprintln(w, name)
	}
	return nil
}
