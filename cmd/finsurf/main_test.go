package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DyogenIBENS/FINSURF/internal/annotate"
	"github.com/DyogenIBENS/FINSURF/internal/duckdb"
	"github.com/DyogenIBENS/FINSURF/internal/output"
	"github.com/DyogenIBENS/FINSURF/internal/tabix"
	"github.com/DyogenIBENS/FINSURF/internal/tabix/tabixtest"
	"github.com/DyogenIBENS/FINSURF/internal/vcf"
)

const header = "#chrom\tpos\tend\tscore\tid\tref\talt\tvartype\tvartrans\tucsc_link\tel_id\tgenes\n"

const exampleRow = "chr1\t1000001\t1000001\t0.7\trs1\tA\tG\tSNV\ttransition\t" +
	"https://genome.ucsc.edu/cgi-bin/hgTracks?db=hg19&position=chr1%3A999900-1000101\tELEM1\tGENEX\n"

type fixture struct {
	dir        string
	input      string
	regulatory string
	score      string
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const (
	regulatoryRow = "chr1\t999999\t1000002\tELEM1\tGENEX"
	scoreRow      = "chr1\t999999\t1000002\ta\tb\t0.7\tc\t0.3"
)

func writeIndexed(t *testing.T, path string, rows ...string) string {
	t.Helper()
	tabixtest.WriteBED(t, path, nil, rows)
	return path
}

func newFixture(t *testing.T, input string) fixture {
	t.Helper()
	dir := t.TempDir()
	return fixture{
		dir:        dir,
		input:      writeFile(t, filepath.Join(dir, "variants.tsv"), input),
		regulatory: writeIndexed(t, filepath.Join(dir, "regulatory.bed.gz"), regulatoryRow),
		score:      writeIndexed(t, filepath.Join(dir, "scores.tsv.gz"), scoreRow),
	}
}

func (f fixture) options() annotateOptions {
	return annotateOptions{
		Input:     f.input,
		Gene:      f.regulatory,
		Score:     f.score,
		ChunkSize: annotate.DefaultChunkSize,
		OutputDir: filepath.Join(f.dir, "res"),
		Workers:   1,
		Rank:      "numeric",
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestRunAnnotate_EndToEnd(t *testing.T) {
	f := newFixture(t, "#chrom\tpos\tid\tref\talt\nchr1\t1000001\trs1\tA\tG\n")

	res, err := runAnnotate(context.Background(), f.options(), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(f.dir, "res"), filepath.Dir(res.Path))
	assert.Regexp(t, regexp.MustCompile(`^result_\d{4}-\d{2}-\d{2}\.\d{6}_[^/]+\.txt$`), filepath.Base(res.Path))
	assert.Equal(t, header+exampleRow, readFile(t, res.Path))
	assert.Equal(t, res.Path, res.String())
	assert.Equal(t, 1, res.Summary.Rows)
}

func TestResult_String(t *testing.T) {
	r := &Result{Path: "res/result_1.txt", InputGene: "genes.txt\n"}
	assert.Equal(t, "res/result_1.txt:genes.txt", r.String())
}

func TestRunAnnotate_GzipOutputAndStore(t *testing.T) {
	f := newFixture(t, "chr1\t1000001\trs1\tA\tG\n")
	opts := f.options()
	opts.Output = filepath.Join(f.dir, "ranked.txt.gz")
	opts.DB = filepath.Join(f.dir, "db", "runs.duckdb")
	opts.Workers = 2

	res, err := runAnnotate(context.Background(), opts, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, opts.Output, res.Path)

	rows, err := output.ReadResultFile(res.Path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "0.7", rows[0].Score)

	store, err := duckdb.Open(opts.DB)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(1), runs[0].Rows)
	assert.Equal(t, f.input, runs[0].Input.Path)

	stored, err := store.Results(runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, rows, stored)
}

func TestRunAnnotate_Manifest(t *testing.T) {
	f := newFixture(t, "chr1\t1000001\trs1\tA\tG\n")
	manifestPath := writeFile(t, filepath.Join(f.dir, "datasets.toml"), `
assembly = "hg38"

[regulatory]
file = "regulatory.bed.gz"

[score]
file = "scores.tsv.gz"
`)

	opts := f.options()
	opts.Gene, opts.Score = "", ""
	opts.Datasets = manifestPath

	res, err := runAnnotate(context.Background(), opts, zap.NewNop())
	require.NoError(t, err)
	assert.Contains(t, readFile(t, res.Path), "db=hg38&position=chr1%3A999900-1000101")

	opts.Assembly = "hg19"
	res, err = runAnnotate(context.Background(), opts, zap.NewNop())
	require.NoError(t, err)
	assert.Contains(t, readFile(t, res.Path), "db=hg19&")
}

func TestRunAnnotate_InputFormatError(t *testing.T) {
	f := newFixture(t, "chr1\t1000001\trs1\tA\n")

	_, err := runAnnotate(context.Background(), f.options(), zap.NewNop())
	require.Error(t, err)

	rerr := classify(err)
	assert.Equal(t, CodeInputFormat, rerr.Code)
	assert.Contains(t, rerr.Message, "4 fields detected")
	assert.NoDirExists(t, filepath.Join(f.dir, "res"), "no output before the input is validated")
}

func TestRunAnnotate_RecordErrorLeavesHeaderOnly(t *testing.T) {
	f := newFixture(t, "chr1\t1000001\trs1\tA\tG\nchr1\tabc\trs2\tA\tG\n")

	_, err := runAnnotate(context.Background(), f.options(), zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, CodeRecord, classify(err).Code)

	files, globErr := filepath.Glob(filepath.Join(f.dir, "res", "result_*.txt"))
	require.NoError(t, globErr)
	require.Len(t, files, 1)
	assert.Equal(t, header, readFile(t, files[0]))
}

func TestRunAnnotate_SkipInvalid(t *testing.T) {
	f := newFixture(t, "chr1\t1000001\trs1\tA\tG\nchr1\tabc\trs2\tA\tG\n")
	opts := f.options()
	opts.SkipInvalid = true

	res, err := runAnnotate(context.Background(), opts, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Skipped)
	assert.Equal(t, header+exampleRow, readFile(t, res.Path))
}

func TestRunAnnotate_DatasetError(t *testing.T) {
	f := newFixture(t, "chr1\t1000001\trs1\tA\tG\n")
	opts := f.options()
	opts.Score = filepath.Join(f.dir, "missing.tsv.gz")

	_, err := runAnnotate(context.Background(), opts, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, CodeDataset, classify(err).Code)
}

func TestRunAnnotate_UnindexedDataset(t *testing.T) {
	f := newFixture(t, "chr1\t1000001\trs1\tA\tG\n")
	opts := f.options()
	opts.Gene = writeFile(t, filepath.Join(f.dir, "regulatory.bed"), regulatoryRow+"\n")
	opts.Score = writeFile(t, filepath.Join(f.dir, "scores.tsv"), scoreRow+"\n")

	_, err := runAnnotate(context.Background(), opts, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, CodeDataset, classify(err).Code)
	assert.ErrorIs(t, err, tabix.ErrNoIndex)
	assert.NoDirExists(t, filepath.Join(f.dir, "res"))

	opts.LoadUnindexed = true
	res, err := runAnnotate(context.Background(), opts, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, header+exampleRow, readFile(t, res.Path))
}

func TestRunAnnotate_ConfigErrors(t *testing.T) {
	f := newFixture(t, "chr1\t1000001\trs1\tA\tG\n")

	opts := f.options()
	opts.Input = ""
	_, err := runAnnotate(context.Background(), opts, zap.NewNop())
	assert.Equal(t, CodeConfig, classify(err).Code)

	opts = f.options()
	opts.Score = ""
	_, err = runAnnotate(context.Background(), opts, zap.NewNop())
	assert.Equal(t, CodeConfig, classify(err).Code)

	opts = f.options()
	opts.Rank = "alphabetical"
	_, err = runAnnotate(context.Background(), opts, zap.NewNop())
	assert.Equal(t, CodeConfig, classify(err).Code)

	opts = f.options()
	opts.ChunkSize = 0
	_, err = runAnnotate(context.Background(), opts, zap.NewNop())
	assert.Equal(t, CodeConfig, classify(err).Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"input", &vcf.InputFormatError{Columns: 3, Message: "too few columns"}, CodeInputFormat},
		{"record", &annotate.StageError{State: annotate.StateNormalizing, Err: &vcf.RecordError{Line: 3}}, CodeRecord},
		{"malformed", &annotate.StageError{State: annotate.StateExpanding, Err: annotate.ErrMalformedVariant}, CodeRecord},
		{"dataset", &tabix.DatasetError{Path: "x", Op: "query", Err: errors.New("bad block")}, CodeDataset},
		{"cancelled", &annotate.StageError{State: annotate.StateReadingChunk, Err: context.Canceled}, CodeCancelled},
		{"config", configError(errors.New("bad flag")), CodeConfig},
		{"other", errors.New("boom"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rerr := classify(tt.err)
			assert.Equal(t, tt.want, rerr.Code)
			assert.Equal(t, tt.err.Error(), rerr.Message)
		})
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLI_Annotate(t *testing.T) {
	f := newFixture(t, "chr1\t1000001\trs1\tA\tG\n")

	code, stdout, stderr := runCLI(t, "annotate",
		"--input", f.input, "--gene", f.regulatory, "--score", f.score,
		"--output_dir", filepath.Join(f.dir, "out"), "--inputgene", "genes.txt")
	require.Equal(t, ExitSuccess, code, stderr)

	line := strings.TrimSpace(stdout)
	require.True(t, strings.HasSuffix(line, ":genes.txt"), line)
	path := strings.TrimSuffix(line, ":genes.txt")
	assert.Equal(t, filepath.Join(f.dir, "out"), filepath.Dir(path))
	assert.Equal(t, header+exampleRow, readFile(t, path))
}

func TestCLI_AnnotateFailure(t *testing.T) {
	f := newFixture(t, "chr1\t1000001\n")

	code, stdout, stderr := runCLI(t, "annotate",
		"--input", f.input, "--gene", f.regulatory, "--score", f.score,
		"--output_dir", filepath.Join(f.dir, "out"))
	assert.Equal(t, ExitError, code)
	assert.Empty(t, stdout)
	assert.True(t, strings.HasPrefix(stderr, "Error [input_format]: "), stderr)
}

func TestCLI_AnnotateLoadUnindexed(t *testing.T) {
	f := newFixture(t, "chr1\t1000001\trs1\tA\tG\n")
	score := writeFile(t, filepath.Join(f.dir, "scores.tsv"), scoreRow+"\n")
	args := []string{"annotate", "--input", f.input, "--gene", f.regulatory, "--score", score,
		"--output", filepath.Join(f.dir, "ranked.txt")}

	code, _, stderr := runCLI(t, args...)
	assert.Equal(t, ExitError, code)
	assert.True(t, strings.HasPrefix(stderr, "Error [dataset]: "), stderr)

	code, _, stderr = runCLI(t, append(args, "--load-unindexed")...)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stderr, "loaded into memory")
	assert.Equal(t, header+exampleRow, readFile(t, filepath.Join(f.dir, "ranked.txt")))
}

func TestCLI_SettingsDoNotLeakBetweenRuns(t *testing.T) {
	f := newFixture(t, "chr1\t1000001\trs1\tA\tG\n")
	args := []string{"annotate", "--input", f.input, "--gene", f.regulatory, "--score", f.score,
		"--output_dir", filepath.Join(f.dir, "out")}

	code, _, stderr := runCLI(t, append([]string{"--verbose"}, args...)...)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stderr, "datasets opened")

	code, _, stderr = runCLI(t, append(args, "--workers", "3")...)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.NotContains(t, stderr, "DEBUG", "log level from the previous run")

	code, stdout, stderr := runCLI(t, "--verbose", "config", "get", "log.level")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Equal(t, "debug\n", stdout)

	code, stdout, stderr = runCLI(t, "config", "get", "log.level")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Equal(t, "info\n", stdout)
}

func TestCLI_UnknownFlag(t *testing.T) {
	code, _, stderr := runCLI(t, "annotate", "--no-such-flag")
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, stderr, "no-such-flag")
}

func TestCLI_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "--version")
	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "finsurf version dev (none) built unknown\n", stdout)
}

func TestCLI_Chroms(t *testing.T) {
	dir := t.TempDir()
	bed := writeIndexed(t, filepath.Join(dir, "multi.bed.gz"), "1\t10\t20\tA", "2\t10\t20\tB", "X\t5\t6\tC")

	code, stdout, stderr := runCLI(t, "chroms", "--mode", bed)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Equal(t, "# bare\n1\n2\nX\n", stdout)

	code, _, stderr = runCLI(t, "chroms", filepath.Join(dir, "missing.bed.gz"))
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "Error [dataset]")

	plain := writeFile(t, filepath.Join(dir, "plain.bed"), "1\t10\t20\tA\n")
	code, _, stderr = runCLI(t, "chroms", plain)
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "no .tbi or .csi index")
}

func TestCLI_Config(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	var stdout, stderr bytes.Buffer
	code := run([]string{"config", "set", "assembly", "hg38"}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())
	assert.FileExists(t, filepath.Join(home, ".finsurf.yaml"))

	stdout.Reset()
	code = run([]string{"config", "get", "assembly"}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())
	assert.Equal(t, "hg38\n", stdout.String())

	stderr.Reset()
	code = run([]string{"config", "set", "chunksize", "lots"}, &stdout, &stderr)
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr.String(), "Error [config]")

	stderr.Reset()
	code = run([]string{"config", "set", "colour", "blue"}, &stdout, &stderr)
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr.String(), "unknown key")
}
