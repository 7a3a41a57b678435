package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/DyogenIBENS/FINSURF/internal/annotate"
	"github.com/DyogenIBENS/FINSURF/internal/vcf"
)

// RunInfo describes where a set of results came from.
type RunInfo struct {
	Started    time.Time
	Input      FileFingerprint
	Regulatory string
	Score      string
	Assembly   string
	Rank       annotate.RankOrder
}

// Run is a stored run.
type Run struct {
	ID int64
	RunInfo
	Rows int64
}

const resultColumns = `chrom, pos, end_pos, score, id, ref, alt, vartype, vartrans, ucsc_link, el_id, genes`

// WriteRun stores results, already ranked, as a new run and returns its id.
// Rows are batch-inserted with the Appender API; their order is kept in seq.
func (s *Store) WriteRun(info RunInfo, results []annotate.RankedResult) (int64, error) {
	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var runID int64
	if err := conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(run_id), 0) + 1 FROM runs`).Scan(&runID); err != nil {
		return 0, fmt.Errorf("next run id: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `INSERT INTO runs
		(run_id, started, input, input_size, input_mtime, regulatory, score, assembly, rank_order, row_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, info.Started, info.Input.Path, info.Input.Size, info.Input.ModTime,
		info.Regulatory, info.Score, info.Assembly, string(info.Rank), int64(len(results)),
	); err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	if len(results) == 0 {
		return runID, nil
	}

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "ranked_results")
		return err
	}); err != nil {
		return 0, fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	for i, r := range results {
		num, ok := annotate.ParseScore(r.Score)
		if err := appender.AppendRow(
			runID, int64(i), r.Chrom, r.Pos, r.End, r.Score, num, ok,
			r.ID, r.Ref, r.Alt, string(r.VarType), string(r.VarTrans),
			r.UCSCLink, r.ElementID, r.Genes,
		); err != nil {
			return 0, fmt.Errorf("append result: %w", err)
		}
	}

	if err := appender.Flush(); err != nil {
		return 0, fmt.Errorf("flush results: %w", err)
	}
	return runID, nil
}

// Runs lists stored runs, oldest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT run_id, started, input, input_size, input_mtime,
		regulatory, score, assembly, rank_order, row_count
		FROM runs ORDER BY run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var rank string
		if err := rows.Scan(&r.ID, &r.Started, &r.Input.Path, &r.Input.Size, &r.Input.ModTime,
			&r.Regulatory, &r.Score, &r.Assembly, &rank, &r.Rows); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Rank = annotate.RankOrder(rank)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Results returns the rows of a run in their stored order.
func (s *Store) Results(runID int64) ([]annotate.RankedResult, error) {
	rows, err := s.db.Query(`SELECT `+resultColumns+`
		FROM ranked_results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// FilterByGenes returns the distinct rows of a run whose genes field names
// any of genes, ranked by order.
func (s *Store) FilterByGenes(runID int64, genes []string, order annotate.RankOrder) ([]annotate.RankedResult, error) {
	if len(genes) == 0 {
		return nil, nil
	}

	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	// The gene list lives in a temporary table of this connection.
	if _, err := conn.ExecContext(ctx, `CREATE OR REPLACE TEMP TABLE filter_genes (gene VARCHAR)`); err != nil {
		return nil, fmt.Errorf("create gene table: %w", err)
	}
	defer conn.ExecContext(ctx, `DROP TABLE IF EXISTS filter_genes`)

	for _, g := range genes {
		if _, err := conn.ExecContext(ctx, `INSERT INTO filter_genes VALUES (?)`, g); err != nil {
			return nil, fmt.Errorf("insert gene: %w", err)
		}
	}

	orderBy := `has_score DESC, score_num DESC, seq`
	if order == annotate.RankLexical {
		orderBy = `score DESC, seq`
	}

	rows, err := conn.QueryContext(ctx, `SELECT `+resultColumns+`
		FROM ranked_results r
		WHERE r.run_id = ? AND EXISTS (
			SELECT 1 FROM filter_genes f
			WHERE list_contains(string_split(replace(replace(r.genes, ',', ';'), ' ', ';'), ';'), f.gene)
		)
		ORDER BY `+orderBy, runID)
	if err != nil {
		return nil, fmt.Errorf("filter by genes: %w", err)
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return nil, err
	}
	return unique(results), nil
}

func scanResults(rows *sql.Rows) ([]annotate.RankedResult, error) {
	var results []annotate.RankedResult
	for rows.Next() {
		var r annotate.RankedResult
		var vartype, vartrans string
		if err := rows.Scan(
			&r.Chrom, &r.Pos, &r.End, &r.Score, &r.ID, &r.Ref, &r.Alt,
			&vartype, &vartrans, &r.UCSCLink, &r.ElementID, &r.Genes,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.VarType = vcf.Type(vartype)
		r.VarTrans = vcf.TransitionClass(vartrans)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

func unique(results []annotate.RankedResult) []annotate.RankedResult {
	seen := make(map[annotate.RankedResult]bool, len(results))
	out := results[:0]
	for _, r := range results {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
