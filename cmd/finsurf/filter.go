package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/DyogenIBENS/FINSURF/internal/annotate"
	"github.com/DyogenIBENS/FINSURF/internal/duckdb"
	"github.com/DyogenIBENS/FINSURF/internal/output"
)

// filterOptions holds the settings of a gene filter run.
type filterOptions struct {
	Result    string
	Genes     string
	OutputDir string
	Output    string
	Rank      string
	DB        string
}

func newFilterCmd(v *viper.Viper, stdout, stderr io.Writer) *cobra.Command {
	var opts filterOptions

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Keep the result rows associated with a list of genes",
		Long: `Keep the rows of a result table whose genes field names any gene of the
list (one gene per line). Rows are written once each, ranked by score.`,
		Example: `  finsurf filter --result res/result_2024-03-09.140507_123.txt --genes genes.txt`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlag("output_dir", cmd.Flags().Lookup("output_dir")); err != nil {
				return err
			}
			return v.BindPFlag("rank", cmd.Flags().Lookup("rank"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.OutputDir = v.GetString("output_dir")
			opts.Rank = v.GetString("rank")

			logger, err := newLogger(v.GetString("log.level"), stderr)
			if err != nil {
				return configError(err)
			}
			defer logger.Sync()

			path, err := runFilter(cmd.Context(), opts, logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, path)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Result, "result", "r", "", "Result table written by annotate")
	f.StringVar(&opts.Genes, "genes", "", "Gene list file, one gene per line")
	f.String("output_dir", output.DefaultDir, "Directory for the filtered file")
	f.StringVarP(&opts.Output, "output", "o", "", "Explicit output file (.gz for gzip)")
	f.String("rank", string(annotate.RankNumeric), "Score order: numeric or lexical")
	f.StringVar(&opts.DB, "db", "", "DuckDB database to keep the loaded table in (default in-memory)")

	return cmd
}

// runFilter writes the rows of opts.Result that match the gene list and
// returns the path of the new table.
func runFilter(ctx context.Context, opts filterOptions, logger *zap.Logger) (string, error) {
	if opts.Result == "" || opts.Genes == "" {
		return "", configError(fmt.Errorf("--result and --genes are required"))
	}
	rank, err := annotate.ParseRankOrder(opts.Rank)
	if err != nil {
		return "", configError(err)
	}

	results, err := output.ReadResultFile(opts.Result)
	if err != nil {
		return "", err
	}
	genes, err := output.ReadGeneList(opts.Genes)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	store, err := duckdb.Open(opts.DB)
	if err != nil {
		return "", err
	}
	defer store.Close()

	started := time.Now()
	runID, err := store.WriteRun(duckdb.RunInfo{
		Started: started,
		Input:   duckdb.Fingerprint(opts.Result),
		Rank:    rank,
	}, results)
	if err != nil {
		return "", fmt.Errorf("load results: %w", err)
	}

	kept, err := store.FilterByGenes(runID, genes, rank)
	if err != nil {
		return "", err
	}
	logger.Info("gene filter",
		zap.Int("genes", len(genes)),
		zap.Int("rows", len(results)),
		zap.Int("kept", len(kept)))

	path, w, err := openOutput(opts.Output, opts.OutputDir, "filter", started)
	if err != nil {
		return "", err
	}
	tw := output.NewTabWriter(w)
	if err := writeTable(tw, kept); err != nil {
		w.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

func writeTable(tw *output.TabWriter, rows []annotate.RankedResult) error {
	if err := tw.WriteHeader(); err != nil {
		return err
	}
	for i := range rows {
		if err := tw.Write(&rows[i]); err != nil {
			return err
		}
	}
	return tw.Flush()
}
