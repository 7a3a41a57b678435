package tabix

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/brentp/xopen"
)

// intervalTree provides O(log n + k) overlap queries using a sorted-slice approach.
// Rows are loaded once and never modified after build.
type intervalTree struct {
	rows   []Row
	maxEnd []int64 // maxEnd[i] = max(End) for rows[:i+1]
}

// buildIntervalTree creates an interval tree from rows of one chromosome.
// Rows with equal starts keep their input order.
func buildIntervalTree(rows []Row) *intervalTree {
	if len(rows) == 0 {
		return &intervalTree{}
	}

	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	// Prefix-max array: maxEnd[i] = max(end) for rows[0..i]
	maxEnd := make([]int64, len(sorted))
	maxEnd[0] = sorted[0].End
	for i := 1; i < len(sorted); i++ {
		maxEnd[i] = sorted[i].End
		if maxEnd[i-1] > maxEnd[i] {
			maxEnd[i] = maxEnd[i-1]
		}
	}

	return &intervalTree{rows: sorted, maxEnd: maxEnd}
}

// findOverlaps returns all rows overlapping the 0-based half-open [start, end),
// ordered by start.
func (t *intervalTree) findOverlaps(start, end int64) []Row {
	if len(t.rows) == 0 {
		return nil
	}

	// Binary search: candidates must start before end.
	hi := sort.Search(len(t.rows), func(i int) bool {
		return t.rows[i].Start >= end
	})

	var result []Row
	for i := hi - 1; i >= 0; i-- {
		// Prune: no row in 0..i ends after start.
		if t.maxEnd[i] <= start {
			break
		}
		if t.rows[i].End > start {
			result = append(result, t.rows[i])
		}
	}

	// Scanned backwards; restore file order.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// Memory is a Dataset held entirely in memory. It backs tests and the
// explicit opt-in for small unindexed BED-like files.
type Memory struct {
	path  string
	trees map[string]*intervalTree
	cat   *Catalogue
}

// NewMemory builds an in-memory dataset from rows. The catalogue lists
// chromosomes in order of first appearance.
func NewMemory(path string, rows []Row) (*Memory, error) {
	byChrom := make(map[string][]Row)
	var order []string
	for _, r := range rows {
		if r.End <= r.Start {
			return nil, &DatasetError{Path: path, Op: "load", Err: fmt.Errorf("empty interval %s:%d-%d", r.Chrom, r.Start, r.End)}
		}
		if _, ok := byChrom[r.Chrom]; !ok {
			order = append(order, r.Chrom)
		}
		byChrom[r.Chrom] = append(byChrom[r.Chrom], r)
	}

	m := &Memory{path: path, trees: make(map[string]*intervalTree, len(byChrom)), cat: NewCatalogue(order)}
	for chrom, rs := range byChrom {
		m.trees[chrom] = buildIntervalTree(rs)
	}
	return m, nil
}

// LoadBED reads a BED-like file (chrom, start, end, extra columns) into memory.
// Gzipped files are decompressed transparently. Lines starting with '#',
// "track" or "browser" are ignored.
func LoadBED(path string) (*Memory, error) {
	rdr, err := xopen.Ropen(path)
	if err != nil {
		return nil, &DatasetError{Path: path, Op: "open", Err: err}
	}
	defer rdr.Close()

	rows, err := ReadBED(rdr)
	if err != nil {
		return nil, &DatasetError{Path: path, Op: "read", Err: err}
	}
	return NewMemory(path, rows)
}

// ReadBED parses BED-like rows from r.
func ReadBED(r io.Reader) ([]Row, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var rows []Row
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}
		row, err := ParseRow(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// ParseRow parses one tab-separated BED-like line.
func ParseRow(line string) (Row, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 3 {
		return Row{}, fmt.Errorf("expected at least 3 columns, found %d", len(fields))
	}
	start, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Row{}, fmt.Errorf("invalid start: %s", fields[1])
	}
	end, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Row{}, fmt.Errorf("invalid end: %s", fields[2])
	}
	return Row{Chrom: fields[0], Start: start, End: end, Fields: fields}, nil
}

// Path returns the dataset path.
func (m *Memory) Path() string { return m.path }

// Catalogue returns the chromosomes present in the dataset.
func (m *Memory) Catalogue() *Catalogue { return m.cat }

// Query returns every row overlapping reg on chrom.
func (m *Memory) Query(chrom string, reg Region) ([]Row, error) {
	t, ok := m.trees[chrom]
	if !ok {
		return nil, nil
	}
	return t.findOverlaps(reg.Begin-1, reg.End), nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
