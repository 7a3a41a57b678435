// Package tabixtest writes small bgzip-compressed, indexed datasets for
// tests.
package tabixtest

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/biogo/hts/bgzf"
	"github.com/biogo/hts/csi"
	"github.com/biogo/hts/tabix"
)

// Index selects the index format written next to the data file.
type Index int

// Index formats.
const (
	TBI Index = iota
	CSI
)

// span is the index entry of one chromosome: every row of the chromosome
// sits in one bgzf block.
type span struct {
	name       string
	id         int
	start, end int
	chunk      bgzf.Chunk
}

func (s span) RefName() string { return s.name }
func (s span) RefID() int      { return s.id }
func (s span) Start() int      { return s.start }
func (s span) End() int        { return s.end }

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// WriteBED writes a BED-like dataset (chrom, 0-based start, end, ...) to
// path with a .tbi index. Header lines start with '#'. Rows must be grouped
// by chromosome and sorted by start.
func WriteBED(t testing.TB, path string, header, rows []string) {
	t.Helper()
	Write(t, path, TBI, header, rows)
}

// Write writes a BED-like dataset to path with an index of the given format.
func Write(t testing.TB, path string, format Index, header, rows []string) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	cw := &countingWriter{w: f}
	bg := bgzf.NewWriter(cw, 1)

	// block writes data as one bgzf block and returns its chunk.
	block := func(data string) bgzf.Chunk {
		if err := bg.Wait(); err != nil {
			t.Fatal(err)
		}
		begin := cw.n
		if _, err := bg.Write([]byte(data)); err != nil {
			t.Fatal(err)
		}
		if err := bg.Flush(); err != nil {
			t.Fatal(err)
		}
		if err := bg.Wait(); err != nil {
			t.Fatal(err)
		}
		return bgzf.Chunk{
			Begin: bgzf.Offset{File: begin},
			End:   bgzf.Offset{File: begin, Block: uint16(len(data))},
		}
	}

	if len(header) > 0 {
		block(strings.Join(header, "\n") + "\n")
	}

	var spans []span
	for i := 0; i < len(rows); {
		chrom := field(t, rows[i], 0)
		s := span{name: chrom, id: len(spans), start: -1}
		var data strings.Builder
		for ; i < len(rows) && field(t, rows[i], 0) == chrom; i++ {
			start, end := number(t, rows[i], 1), number(t, rows[i], 2)
			if s.start < 0 || start < s.start {
				s.start = start
			}
			if end > s.end {
				s.end = end
			}
			data.WriteString(rows[i])
			data.WriteByte('\n')
		}
		s.chunk = block(data.String())
		spans = append(spans, s)
	}

	if err := bg.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	switch format {
	case CSI:
		writeCSI(t, path+".csi", spans)
	default:
		writeTBI(t, path+".tbi", spans)
	}
}

func writeTBI(t testing.TB, path string, spans []span) {
	t.Helper()
	idx := tabix.New()
	idx.NameColumn, idx.BeginColumn, idx.EndColumn = 1, 2, 3
	idx.ZeroBased = true
	idx.MetaChar = '#'
	for _, s := range spans {
		if err := idx.Add(s, s.chunk, true, true); err != nil {
			t.Fatal(err)
		}
	}
	writeIndex(t, path, func(w io.Writer) error { return tabix.WriteTo(w, idx) })
}

func writeCSI(t testing.TB, path string, spans []span) {
	t.Helper()
	idx := csi.New(0, 0)

	var names bytes.Buffer
	for _, s := range spans {
		names.WriteString(s.name)
		names.WriteByte(0)
	}
	var aux bytes.Buffer
	for _, v := range []int32{0x10000, 1, 2, 3, '#', 0, int32(names.Len())} {
		if err := binary.Write(&aux, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}
	aux.Write(names.Bytes())
	idx.Auxilliary = aux.Bytes()

	for _, s := range spans {
		if err := idx.Add(s, s.chunk, true, true); err != nil {
			t.Fatal(err)
		}
	}
	writeIndex(t, path, func(w io.Writer) error { return csi.WriteTo(w, idx) })
}

func writeIndex(t testing.TB, path string, write func(io.Writer) error) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	bg := bgzf.NewWriter(f, 1)
	if err := write(bg); err != nil {
		t.Fatal(err)
	}
	if err := bg.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func field(t testing.TB, row string, i int) string {
	t.Helper()
	fields := strings.Split(row, "\t")
	if len(fields) < 3 {
		t.Fatalf("row %q: expected at least 3 columns", row)
	}
	return fields[i]
}

func number(t testing.TB, row string, i int) int {
	t.Helper()
	n, err := strconv.Atoi(field(t, row, i))
	if err != nil {
		t.Fatalf("row %q: %v", row, err)
	}
	return n
}
