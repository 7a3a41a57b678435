package tabix

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/biogo/hts/bgzf"
	"github.com/biogo/hts/csi"
	htstabix "github.com/biogo/hts/tabix"
	"github.com/brentp/bix"
	"github.com/brentp/irelate/interfaces"
	"github.com/brentp/irelate/parsers"
)

// Index file suffixes, looked up next to the dataset. A CSI index wins over
// a tabix one, as in bix.
const (
	IndexSuffix    = ".tbi"
	CSIIndexSuffix = ".csi"
)

// ErrNoIndex is returned when a dataset has neither a .tbi nor a .csi index.
var ErrNoIndex = errors.New("no .tbi or .csi index next to the file (bgzip and tabix it first)")

// location is the region handed to bix.
type location struct {
	chrom string
	start uint32
	end   uint32
}

func (l location) Chrom() string { return l.chrom }
func (l location) Start() uint32 { return l.start }
func (l location) End() uint32   { return l.end }

var _ interfaces.IPosition = location{}

// Tabix is a Dataset backed by a bgzip-compressed, indexed file.
type Tabix struct {
	path   string
	tbx    *bix.Bix // nil when the index lists no chromosome
	cat    *Catalogue
	layout Layout

	mu sync.Mutex // guards tbx: FastQuery reuses one file handle and bgzf reader
}

// Layout is the column layout recorded in an index header. Columns are
// 1-based; EndColumn 0 means rows span one base.
type Layout struct {
	NameColumn  int
	BeginColumn int
	EndColumn   int
	ZeroBased   bool
}

// IndexInfo is what a dataset index says about its file.
type IndexInfo struct {
	Path   string
	Names  []string
	Layout Layout
}

// zeroBasedFlag marks a 0-based begin column in the index format field.
const zeroBasedFlag = 0x10000

// IndexPath returns the index file of path, or false when there is none.
func IndexPath(path string) (string, bool) {
	for _, suffix := range []string{CSIIndexSuffix, IndexSuffix} {
		if _, err := os.Stat(path + suffix); err == nil {
			return path + suffix, true
		}
	}
	return "", false
}

// OpenTabix opens path and its index.
func OpenTabix(path string) (*Tabix, error) {
	info, err := ReadIndex(path)
	if err != nil {
		return nil, err
	}
	t := &Tabix{path: path, cat: NewCatalogue(info.Names), layout: info.Layout}
	if len(info.Names) == 0 {
		return t, nil
	}
	if t.layout.BeginColumn < 1 {
		return nil, &DatasetError{Path: path, Op: "read index", Err: fmt.Errorf("invalid begin column %d", t.layout.BeginColumn)}
	}

	tbx, err := bix.New(path)
	if err != nil {
		if tbx != nil {
			tbx.Close()
		}
		return nil, &DatasetError{Path: path, Op: "open", Err: err}
	}
	t.tbx = tbx
	return t, nil
}

// ReadCatalogue returns the chromosome names stored in the index of path,
// in index order (the equivalent of `tabix -l`).
func ReadCatalogue(path string) ([]string, error) {
	info, err := ReadIndex(path)
	if err != nil {
		return nil, err
	}
	return info.Names, nil
}

// ReadIndex reads the header of the .csi or .tbi index of path.
func ReadIndex(path string) (*IndexInfo, error) {
	idxPath, ok := IndexPath(path)
	if !ok {
		return nil, &DatasetError{Path: path, Op: "open index", Err: ErrNoIndex}
	}
	f, err := os.Open(idxPath)
	if err != nil {
		return nil, &DatasetError{Path: path, Op: "open index", Err: err}
	}
	defer f.Close()

	bg, err := bgzf.NewReader(f, 1)
	if err != nil {
		return nil, &DatasetError{Path: path, Op: "read index", Err: err}
	}
	defer bg.Close()

	info := &IndexInfo{Path: idxPath}
	if strings.HasSuffix(idxPath, CSIIndexSuffix) {
		err = readCSI(bg, info)
	} else {
		err = readTBI(bg, info)
	}
	if err != nil {
		return nil, &DatasetError{Path: path, Op: "read index", Err: err}
	}
	return info, nil
}

func readTBI(r io.Reader, info *IndexInfo) error {
	idx, err := htstabix.ReadFrom(r)
	if err != nil {
		return err
	}
	if idx == nil {
		// Index of a file without data rows.
		return nil
	}
	info.Names = idx.Names()
	info.Layout = Layout{
		NameColumn:  int(idx.NameColumn),
		BeginColumn: int(idx.BeginColumn),
		EndColumn:   int(idx.EndColumn),
		ZeroBased:   idx.ZeroBased,
	}
	return nil
}

// readCSI reads the tabix auxiliary block of a CSI index: format, name,
// begin and end columns, meta char and skip (six int32), then the length
// of the NUL-terminated names.
func readCSI(r io.Reader, info *IndexInfo) error {
	idx, err := csi.ReadFrom(r)
	if err != nil {
		return err
	}
	aux := idx.Auxilliary
	if len(aux) < 28 {
		return fmt.Errorf("csi index has no tabix header")
	}
	word := func(i int) int { return int(int32(binary.LittleEndian.Uint32(aux[4*i:]))) }
	info.Layout = Layout{
		NameColumn:  word(1),
		BeginColumn: word(2),
		EndColumn:   word(3),
		ZeroBased:   word(0)&zeroBasedFlag != 0,
	}

	n := word(6)
	if n < 0 || 28+n > len(aux) {
		return fmt.Errorf("csi index names truncated")
	}
	for _, name := range bytes.Split(aux[28:28+n], []byte{0}) {
		if len(name) > 0 {
			info.Names = append(info.Names, string(name))
		}
	}
	return nil
}

// Path returns the dataset path.
func (t *Tabix) Path() string { return t.path }

// Catalogue returns the chromosomes present in the index.
func (t *Tabix) Catalogue() *Catalogue { return t.cat }

// Query returns every row overlapping reg on chrom, in file order.
func (t *Tabix) Query(chrom string, reg Region) ([]Row, error) {
	if reg.Begin < 1 || reg.End < reg.Begin-1 {
		return nil, &DatasetError{Path: t.path, Op: "query", Err: fmt.Errorf("invalid region %s:%s", chrom, reg)}
	}
	if t.tbx == nil || !t.cat.Contains(chrom) {
		return nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	op := "query " + chrom + ":" + reg.String()
	// The iterator is not closed: closing it would close the shared reader.
	it, err := t.tbx.FastQuery(location{chrom: chrom, start: uint32(reg.Begin - 1), end: uint32(reg.End)})
	if err != nil {
		return nil, &DatasetError{Path: t.path, Op: op, Err: err}
	}

	var rows []Row
	for {
		rel, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &DatasetError{Path: t.path, Op: op, Err: err}
		}
		row, err := t.toRow(rel)
		if err != nil {
			return nil, &DatasetError{Path: t.path, Op: op, Err: err}
		}
		// The index returns candidates by bin; keep true overlaps only.
		if row.Overlaps(reg) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// toRow converts a bix record. Files whose header names ref and alt
// columns come back as RefAltInterval. Coordinates are read from the fields
// with the index layout, since bix assumes 1-based begins for CSI files.
func (t *Tabix) toRow(rel interfaces.Relatable) (Row, error) {
	var iv *parsers.Interval
	switch v := rel.(type) {
	case *parsers.Interval:
		iv = v
	case *parsers.RefAltInterval:
		iv = &v.Interval
	default:
		return Row{}, fmt.Errorf("unsupported record type %T", rel)
	}

	fields := make([]string, len(iv.Fields))
	for i, f := range iv.Fields {
		fields[i] = string(f)
	}
	row := Row{Chrom: iv.Chrom(), Fields: fields}

	begin, ok := row.Field(t.layout.BeginColumn)
	if !ok {
		return Row{}, fmt.Errorf("row has no begin column %d", t.layout.BeginColumn)
	}
	start, err := strconv.ParseInt(begin, 10, 64)
	if err != nil {
		return Row{}, fmt.Errorf("invalid begin %q", begin)
	}
	if !t.layout.ZeroBased {
		start--
	}
	row.Start, row.End = start, start+1

	if t.layout.EndColumn > 0 {
		end, ok := row.Field(t.layout.EndColumn)
		if !ok {
			return Row{}, fmt.Errorf("row has no end column %d", t.layout.EndColumn)
		}
		if row.End, err = strconv.ParseInt(end, 10, 64); err != nil {
			return Row{}, fmt.Errorf("invalid end %q", end)
		}
	}
	return row, nil
}

// Close closes the underlying file.
func (t *Tabix) Close() error {
	if t.tbx == nil {
		return nil
	}
	return t.tbx.Close()
}

// Open opens an indexed dataset. A file without a .tbi or .csi index is an
// error wrapping ErrNoIndex.
func Open(path string) (Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &DatasetError{Path: path, Op: "open", Err: err}
	}
	return OpenTabix(path)
}

// OpenOrLoad opens path through its index, or loads it whole into memory
// when it has none. Only meant for small files.
func OpenOrLoad(path string) (Dataset, bool, error) {
	if _, ok := IndexPath(path); ok {
		ds, err := Open(path)
		return ds, false, err
	}
	ds, err := LoadBED(path)
	if err != nil {
		return nil, false, err
	}
	return ds, true, nil
}
