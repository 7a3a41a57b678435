package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/DyogenIBENS/FINSURF/internal/annotate"
	"github.com/DyogenIBENS/FINSURF/internal/duckdb"
	"github.com/DyogenIBENS/FINSURF/internal/manifest"
	"github.com/DyogenIBENS/FINSURF/internal/output"
	"github.com/DyogenIBENS/FINSURF/internal/tabix"
	"github.com/DyogenIBENS/FINSURF/internal/vcf"
)

// annotateOptions holds the resolved settings of an annotate run.
type annotateOptions struct {
	Input         string
	Score         string
	Gene          string
	InputGene     string
	Datasets      string
	ChunkSize     int
	OutputDir     string
	Output        string
	Workers       int
	Assembly      string
	Rank          string
	SkipInvalid   bool
	LoadUnindexed bool
	DB            string
}

// Result is the outcome of a successful annotate run.
type Result struct {
	Path      string
	InputGene string
	Summary   *annotate.Summary
}

// String renders the result the way it is printed: the output path,
// followed by ":<gene list>" when one was given.
func (r *Result) String() string {
	if r.InputGene != "" {
		return r.Path + ":" + strings.TrimSpace(r.InputGene)
	}
	return r.Path
}

func newAnnotateCmd(v *viper.Viper, stdout, stderr io.Writer) *cobra.Command {
	var opts annotateOptions

	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Annotate variants with regulatory elements and scores",
		Long: `Annotate variants with the regulatory elements they fall in and the
functional score of each annotated base, then rank the rows by score.

The input is a tab-separated file whose first five columns are chrom, pos,
id, ref and alt (gzip accepted, '-' for stdin), or a VCF file.`,
		Example: `  finsurf annotate --input variants.tsv --gene regulatory.bed.gz --score scores.tsv.gz
  finsurf annotate --input variants.vcf.gz --datasets datasets.toml --output ranked.txt.gz
  finsurf annotate -i variants.tsv -g reg.bed.gz -s scores.tsv.gz --workers 4 --db runs.duckdb`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for key, flag := range map[string]string{
				"chunksize":      "chunksize",
				"output_dir":     "output_dir",
				"workers":        "workers",
				"assembly":       "assembly",
				"rank":           "rank",
				"skip_invalid":   "skip-invalid",
				"load_unindexed": "load-unindexed",
			} {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ChunkSize = v.GetInt("chunksize")
			opts.OutputDir = v.GetString("output_dir")
			opts.Workers = v.GetInt("workers")
			opts.Assembly = v.GetString("assembly")
			opts.Rank = v.GetString("rank")
			opts.SkipInvalid = v.GetBool("skip_invalid")
			opts.LoadUnindexed = v.GetBool("load_unindexed")

			logger, err := newLogger(v.GetString("log.level"), stderr)
			if err != nil {
				return configError(err)
			}
			defer logger.Sync()

			res, err := runAnnotate(cmd.Context(), opts, logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, res.String())
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Input, "input", "i", "", "Variant file: TSV (chrom, pos, id, ref, alt) or VCF, gzipped or not")
	f.StringVarP(&opts.Score, "score", "s", "", "Score dataset (bgzipped and tabix-indexed)")
	f.StringVarP(&opts.Gene, "gene", "g", "", "Regulatory element dataset (bgzipped and tabix-indexed)")
	f.StringVar(&opts.InputGene, "inputgene", "", "Gene list file, echoed after the output path")
	f.StringVar(&opts.Datasets, "datasets", "", "TOML manifest describing the datasets and their columns")
	f.Int("chunksize", annotate.DefaultChunkSize, "Number of variants read per chunk")
	f.String("output_dir", output.DefaultDir, "Directory for the result file")
	f.StringVarP(&opts.Output, "output", "o", "", "Explicit output file (.gz for gzip)")
	f.Int("workers", 1, "Chunks processed concurrently")
	f.String("assembly", "", "UCSC assembly used in links (default from manifest, hg19)")
	f.String("rank", string(annotate.RankNumeric), "Score order: numeric or lexical")
	f.Bool("skip-invalid", false, "Skip malformed records instead of failing")
	f.Bool("load-unindexed", false, "Read datasets without a .tbi/.csi index into memory (small files only)")
	f.StringVar(&opts.DB, "db", "", "Also store the ranked rows in this DuckDB database")

	return cmd
}

// runAnnotate performs one annotation run and returns where the table went.
func runAnnotate(ctx context.Context, opts annotateOptions, logger *zap.Logger) (*Result, error) {
	if opts.Input == "" {
		return nil, configError(fmt.Errorf("--input is required"))
	}

	m := manifest.Default()
	if opts.Datasets != "" {
		var err error
		if m, err = manifest.Load(opts.Datasets); err != nil {
			return nil, configError(err)
		}
	}
	m.Override(opts.Gene, opts.Score)
	if opts.Assembly != "" {
		m.Assembly = opts.Assembly
	}
	if err := m.Validate(); err != nil {
		return nil, configError(err)
	}

	rank, err := annotate.ParseRankOrder(opts.Rank)
	if err != nil {
		return nil, configError(err)
	}

	pipeOpts := annotate.Options{
		ChunkSize:   opts.ChunkSize,
		Workers:     opts.Workers,
		Assembly:    m.Assembly,
		Rank:        rank,
		Layout:      m.Layout(),
		SkipInvalid: opts.SkipInvalid,
	}

	src, err := vcf.Open(opts.Input)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	regulatory, err := openDataset(m.Regulatory.File, opts.LoadUnindexed, logger)
	if err != nil {
		return nil, err
	}
	defer regulatory.Close()

	score, err := openDataset(m.Score.File, opts.LoadUnindexed, logger)
	if err != nil {
		return nil, err
	}
	defer score.Close()

	logger.Debug("datasets opened",
		zap.String("regulatory", regulatory.Path()),
		zap.Stringer("regulatory_mode", regulatory.Catalogue().Mode()),
		zap.String("score", score.Path()),
		zap.Stringer("score_mode", score.Catalogue().Mode()))

	p, err := annotate.NewPipeline(regulatory, score, pipeOpts)
	if err != nil {
		return nil, configError(err)
	}
	p.SetLogger(logger)

	started := time.Now()
	path, w, err := openOutput(opts.Output, opts.OutputDir, "result", started)
	if err != nil {
		return nil, err
	}

	sink := &collectSink{TabWriter: output.NewTabWriter(w), keep: opts.DB != ""}
	sum, runErr := p.Run(ctx, src, sink)
	closeErr := w.Close()
	if runErr != nil {
		logger.Debug("partial output left in place", zap.String("path", path))
		return nil, runErr
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close %s: %w", path, closeErr)
	}

	if opts.DB != "" {
		if err := storeRun(opts.DB, duckdb.RunInfo{
			Started:    started,
			Input:      duckdb.Fingerprint(opts.Input),
			Regulatory: m.Regulatory.File,
			Score:      m.Score.File,
			Assembly:   m.Assembly,
			Rank:       rank,
		}, sink.rows, logger); err != nil {
			return nil, err
		}
	}

	return &Result{Path: path, InputGene: opts.InputGene, Summary: sum}, nil
}

// openDataset opens an indexed dataset. With loadUnindexed, a file without
// an index is read into memory instead.
func openDataset(path string, loadUnindexed bool, logger *zap.Logger) (tabix.Dataset, error) {
	if !loadUnindexed {
		return tabix.Open(path)
	}
	ds, loaded, err := tabix.OpenOrLoad(path)
	if err != nil {
		return nil, err
	}
	if loaded {
		logger.Warn("dataset has no index, loaded into memory", zap.String("path", path))
	}
	return ds, nil
}

// openOutput opens the explicit output path, or a fresh result file in dir.
func openOutput(explicit, dir, method string, now time.Time) (string, io.WriteCloser, error) {
	if explicit != "" {
		w, err := output.Create(explicit)
		if err != nil {
			return "", nil, err
		}
		return explicit, w, nil
	}
	f, err := output.CreateResultFile(dir, method, now)
	if err != nil {
		return "", nil, err
	}
	return f.Name(), f, nil
}

func storeRun(path string, info duckdb.RunInfo, rows []annotate.RankedResult, logger *zap.Logger) error {
	store, err := duckdb.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, err := store.WriteRun(info, rows)
	if err != nil {
		return fmt.Errorf("store results: %w", err)
	}
	logger.Info("results stored", zap.String("db", path), zap.Int64("run", runID), zap.Int("rows", len(rows)))
	return nil
}

// collectSink writes rows to a tab writer and optionally keeps them.
type collectSink struct {
	*output.TabWriter
	keep bool
	rows []annotate.RankedResult
}

func (s *collectSink) Write(r *annotate.RankedResult) error {
	if s.keep {
		s.rows = append(s.rows, *r)
	}
	return s.TabWriter.Write(r)
}
