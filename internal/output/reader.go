package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/brentp/xopen"

	"github.com/DyogenIBENS/FINSURF/internal/annotate"
	"github.com/DyogenIBENS/FINSURF/internal/vcf"
)

// ReadResultFile reads a result table written by TabWriter.
// Gzipped files are decompressed transparently.
func ReadResultFile(path string) ([]annotate.RankedResult, error) {
	rdr, err := xopen.Ropen(path)
	if err != nil {
		return nil, fmt.Errorf("open results: %w", err)
	}
	defer rdr.Close()

	results, err := ReadResults(rdr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return results, nil
}

// ReadResults parses result rows from r, skipping the '#' header.
func ReadResults(r io.Reader) ([]annotate.RankedResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var results []annotate.RankedResult
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		res, err := ParseResult(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		results = append(results, res)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	return results, nil
}

// ParseResult parses one result row.
func ParseResult(line string) (annotate.RankedResult, error) {
	f := strings.Split(line, "\t")
	if len(f) != len(annotate.Columns) {
		return annotate.RankedResult{}, fmt.Errorf("expected %d columns, found %d", len(annotate.Columns), len(f))
	}
	pos, err := strconv.ParseInt(f[1], 10, 64)
	if err != nil {
		return annotate.RankedResult{}, fmt.Errorf("invalid pos: %s", f[1])
	}
	end, err := strconv.ParseInt(f[2], 10, 64)
	if err != nil {
		return annotate.RankedResult{}, fmt.Errorf("invalid end: %s", f[2])
	}
	return annotate.RankedResult{
		Chrom:     f[0],
		Pos:       pos,
		End:       end,
		Score:     f[3],
		ID:        f[4],
		Ref:       f[5],
		Alt:       f[6],
		VarType:   vcf.Type(f[7]),
		VarTrans:  vcf.TransitionClass(f[8]),
		UCSCLink:  f[9],
		ElementID: f[10],
		Genes:     f[11],
	}, nil
}
