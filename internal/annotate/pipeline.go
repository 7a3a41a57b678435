package annotate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DyogenIBENS/FINSURF/internal/tabix"
	"github.com/DyogenIBENS/FINSURF/internal/vcf"
)

// DefaultChunkSize is the number of records read per chunk.
const DefaultChunkSize = 5000

// State is a stage of an annotation run.
type State int

// Pipeline states, in processing order.
const (
	StateReadingChunk State = iota
	StateNormalizing
	StateExpanding
	StateIntersectingRegulatory
	StateReconcilingRegulatory
	StateIntersectingScore
	StateReconcilingScore
	StateAccumulating
	StateRanking
	StateWriting
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateReadingChunk:           "READING_CHUNK",
	StateNormalizing:            "NORMALIZING",
	StateExpanding:              "EXPANDING",
	StateIntersectingRegulatory: "INTERSECTING_REGULATORY",
	StateReconcilingRegulatory:  "RECONCILING_REGULATORY",
	StateIntersectingScore:      "INTERSECTING_SCORE",
	StateReconcilingScore:       "RECONCILING_SCORE",
	StateAccumulating:           "ACCUMULATING",
	StateRanking:                "RANKING",
	StateWriting:                "WRITING",
	StateDone:                   "DONE",
	StateFailed:                 "FAILED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StageError records the state in which a run failed.
type StageError struct {
	State State
	Chunk int // chunk sequence number, -1 outside chunk processing
	Err   error
}

func (e *StageError) Error() string {
	if e.Chunk >= 0 {
		return fmt.Sprintf("%s (chunk %d): %v", e.State, e.Chunk, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Sink receives the ranked rows of a run.
type Sink interface {
	WriteHeader() error
	Write(r *RankedResult) error
	Flush() error
}

// Options configures a pipeline.
type Options struct {
	ChunkSize   int
	Workers     int // chunks processed concurrently; <= 1 is sequential
	Assembly    string
	Rank        RankOrder
	Layout      Layout
	SkipInvalid bool // log and skip malformed records instead of failing
}

// DefaultOptions returns the options used by the command line tool.
func DefaultOptions() Options {
	return Options{
		ChunkSize: DefaultChunkSize,
		Workers:   1,
		Assembly:  DefaultAssembly,
		Rank:      RankNumeric,
		Layout:    DefaultLayout(),
	}
}

// Summary describes a completed run.
type Summary struct {
	Chunks    int
	Variants  int64
	Intervals int64
	Rows      int
	Skipped   int
	Elapsed   time.Duration
}

// Pipeline annotates variants against a regulatory and a score dataset.
type Pipeline struct {
	regulatory tabix.Dataset
	score      tabix.Dataset
	opts       Options
	logger     *zap.Logger

	// onExpand observes the intervals of each chunk.
	onExpand func(chunk int, intervals []ExpandedInterval)
}

// NewPipeline creates a pipeline over two opened datasets.
func NewPipeline(regulatory, score tabix.Dataset, opts Options) (*Pipeline, error) {
	if regulatory == nil || score == nil {
		return nil, errors.New("both regulatory and score datasets are required")
	}
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", opts.ChunkSize)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Assembly == "" {
		opts.Assembly = DefaultAssembly
	}
	rank, err := ParseRankOrder(string(opts.Rank))
	if err != nil {
		return nil, err
	}
	opts.Rank = rank
	if err := opts.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("dataset layout: %w", err)
	}

	return &Pipeline{
		regulatory: regulatory,
		score:      score,
		opts:       opts,
		logger:     zap.NewNop(),
	}, nil
}

// SetLogger sets the logger for progress and warning messages.
func (p *Pipeline) SetLogger(l *zap.Logger) {
	p.logger = l
}

// Options returns the effective options.
func (p *Pipeline) Options() Options {
	return p.opts
}

type invalidSkipper interface {
	SetSkipInvalid(fn func(*vcf.RecordError))
}

// Run streams src through the pipeline and writes the ranked rows to sink.
// The header is written and flushed before any record is read, so a failed
// run leaves a header-only output.
func (p *Pipeline) Run(ctx context.Context, src vcf.RecordSource, sink Sink) (*Summary, error) {
	start := time.Now()
	sum := &Summary{}

	if err := sink.WriteHeader(); err != nil {
		return nil, p.fail(StateWriting, -1, fmt.Errorf("write header: %w", err))
	}
	if err := sink.Flush(); err != nil {
		return nil, p.fail(StateWriting, -1, fmt.Errorf("flush header: %w", err))
	}

	if p.opts.SkipInvalid {
		if s, ok := src.(invalidSkipper); ok {
			s.SetSkipInvalid(func(e *vcf.RecordError) { p.skip(sum, e) })
		}
	}

	acc := newAccumulator()
	var err error
	if p.opts.Workers > 1 {
		err = p.runParallel(ctx, src, acc, sum)
	} else {
		err = p.runSequential(ctx, src, acc, sum)
	}
	if err != nil {
		return nil, err
	}

	p.logger.Debug("state", zap.Stringer("state", StateRanking), zap.Int("rows", len(acc.rows)))
	Rank(acc.rows, p.opts.Rank)

	p.logger.Debug("state", zap.Stringer("state", StateWriting))
	for i := range acc.rows {
		if err := sink.Write(&acc.rows[i]); err != nil {
			return nil, p.fail(StateWriting, -1, fmt.Errorf("write row: %w", err))
		}
	}
	if err := sink.Flush(); err != nil {
		return nil, p.fail(StateWriting, -1, fmt.Errorf("flush: %w", err))
	}

	sum.Rows = len(acc.rows)
	sum.Elapsed = time.Since(start)
	p.logger.Debug("state", zap.Stringer("state", StateDone))
	p.logger.Info("annotation complete",
		zap.Int("chunks", sum.Chunks),
		zap.Int64("variants", sum.Variants),
		zap.Int64("intervals", sum.Intervals),
		zap.Int("rows", sum.Rows),
		zap.Int("skipped", sum.Skipped),
		zap.Duration("elapsed", sum.Elapsed))
	return sum, nil
}

func (p *Pipeline) runSequential(ctx context.Context, src vcf.RecordSource, acc *accumulator, sum *Summary) error {
	var offset int64
	for seq := 0; ; seq++ {
		variants, done, err := p.readChunk(ctx, src, seq, sum)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		results, n, err := p.processChunk(seq, offset, variants)
		if err != nil {
			return err
		}
		offset += int64(len(variants))
		sum.Chunks++
		sum.Variants += int64(len(variants))
		sum.Intervals += n

		p.logger.Debug("state", zap.Stringer("state", StateAccumulating), zap.Int("chunk", seq))
		added := acc.add(results)
		p.logger.Debug("chunk done", zap.Int("chunk", seq), zap.Int("variants", len(variants)),
			zap.Int("rows", len(results)), zap.Int("new", added))
	}
}

// readChunk reads and normalizes the next chunk. done is true at end of input.
func (p *Pipeline) readChunk(ctx context.Context, src vcf.RecordSource, seq int, sum *Summary) ([]vcf.Variant, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, p.fail(StateReadingChunk, seq, err)
	}

	p.logger.Debug("state", zap.Stringer("state", StateReadingChunk), zap.Int("chunk", seq))
	records, err := src.NextChunk(p.opts.ChunkSize)
	if err != nil {
		return nil, false, p.fail(StateReadingChunk, seq, err)
	}
	if len(records) == 0 {
		return nil, true, nil
	}

	p.logger.Debug("state", zap.Stringer("state", StateNormalizing), zap.Int("chunk", seq))
	variants := make([]vcf.Variant, 0, len(records))
	for _, r := range records {
		v, err := vcf.Normalize(r)
		if err != nil {
			var rerr *vcf.RecordError
			if p.opts.SkipInvalid && errors.As(err, &rerr) {
				p.skip(sum, rerr)
				continue
			}
			return nil, false, p.fail(StateNormalizing, seq, err)
		}
		variants = append(variants, v)
	}
	return variants, false, nil
}

// processChunk runs the double intersection for one chunk of variants whose
// first row id is offset. It returns the chunk rows and the interval count.
func (p *Pipeline) processChunk(seq int, offset int64, variants []vcf.Variant) ([]RankedResult, int64, error) {
	p.logger.Debug("state", zap.Stringer("state", StateExpanding), zap.Int("chunk", seq))
	intervals, err := Expand(variants, offset)
	if err != nil {
		return nil, 0, p.fail(StateExpanding, seq, err)
	}
	if p.onExpand != nil {
		p.onExpand(seq, intervals)
	}
	n := int64(len(intervals))

	p.logger.Debug("state", zap.Stringer("state", StateIntersectingRegulatory), zap.Int("chunk", seq))
	regOut, err := Intersect(p.regulatory, intervalQueries(intervals))
	if err != nil {
		return nil, n, p.fail(StateIntersectingRegulatory, seq, err)
	}

	p.logger.Debug("state", zap.Stringer("state", StateReconcilingRegulatory), zap.Int("chunk", seq))
	rows, err := reconcileRegulatory(p.regulatory, p.opts.Layout, regOut)
	if err != nil {
		return nil, n, p.fail(StateReconcilingRegulatory, seq, err)
	}
	if len(rows) == 0 {
		return nil, n, nil
	}

	p.logger.Debug("state", zap.Stringer("state", StateIntersectingScore), zap.Int("chunk", seq))
	scoreOut, err := Intersect(p.score, intermediateQueries(rows))
	if err != nil {
		return nil, n, p.fail(StateIntersectingScore, seq, err)
	}

	p.logger.Debug("state", zap.Stringer("state", StateReconcilingScore), zap.Int("chunk", seq))
	results, err := reconcileScore(p.score, p.opts.Layout, p.opts.Assembly, scoreOut)
	if err != nil {
		return nil, n, p.fail(StateReconcilingScore, seq, err)
	}
	return results, n, nil
}

func (p *Pipeline) skip(sum *Summary, e *vcf.RecordError) {
	sum.Skipped++
	p.logger.Warn("skipping invalid record",
		zap.Int("line", e.Line),
		zap.String("reason", e.Message))
}

func (p *Pipeline) fail(state State, chunk int, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	p.logger.Debug("state", zap.Stringer("state", StateFailed), zap.Stringer("from", state), zap.Error(err))
	return &StageError{State: state, Chunk: chunk, Err: err}
}

// accumulator keeps the distinct result rows of a run in arrival order.
type accumulator struct {
	seen map[RankedResult]struct{}
	rows []RankedResult
}

func newAccumulator() *accumulator {
	return &accumulator{seen: make(map[RankedResult]struct{})}
}

// add appends the rows not seen before and returns how many were new.
func (a *accumulator) add(rows []RankedResult) int {
	added := 0
	for _, r := range rows {
		if _, ok := a.seen[r]; ok {
			continue
		}
		a.seen[r] = struct{}{}
		a.rows = append(a.rows, r)
		added++
	}
	return added
}
