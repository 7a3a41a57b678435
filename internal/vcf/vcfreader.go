package vcf

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/brentp/vcfgo"
	"github.com/brentp/xopen"
)

// vcfMagic starts every VCF file.
const vcfMagic = "##fileformat=VCF"

// vcfColumns is the number of fixed VCF columns, CHROM to INFO.
const vcfColumns = 8

// VCFReader reads records from a VCF file. Multi-allelic records are split
// into one record per alternate allele.
type VCFReader struct {
	br        *bufio.Reader
	rdr       *vcfgo.Reader
	closer    io.Closer
	line      int // file line number of the last line read
	eof       bool
	pending   []Record
	onInvalid func(*RecordError)
}

// NewVCFReader creates a VCF reader from r. The header is parsed immediately.
// Data lines are read here and handed to vcfgo one at a time, so records
// keep their file line number and original text.
func NewVCFReader(r io.Reader) (*VCFReader, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	vr := &VCFReader{br: br}

	var header strings.Builder
	for {
		if b, err := br.Peek(1); err != nil || b[0] != '#' {
			break
		}
		line, _, err := vr.readLine()
		if err != nil {
			return nil, &InputFormatError{Columns: -1, Message: "read VCF header", Err: err}
		}
		header.WriteString(line)
		header.WriteByte('\n')
	}

	rdr, err := vcfgo.NewReader(strings.NewReader(header.String()), true)
	if rdr == nil {
		return nil, &InputFormatError{Columns: -1, Message: "read VCF header", Err: err}
	}
	// Malformed INFO/FORMAT definitions are not fatal: those fields are not read.
	rdr.Clear()
	vr.rdr = rdr
	return vr, nil
}

// SetSkipInvalid makes the reader skip records that cannot be parsed,
// reporting each of them to fn instead of failing.
func (r *VCFReader) SetSkipInvalid(fn func(*RecordError)) {
	r.onInvalid = fn
}

// readLine returns the next line without its line terminator.
// ok is false at end of input.
func (r *VCFReader) readLine() (string, bool, error) {
	if r.eof {
		return "", false, nil
	}
	line, err := r.br.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			return "", false, fmt.Errorf("read VCF line: %w", err)
		}
		r.eof = true
		if line == "" {
			return "", false, nil
		}
	}
	r.line++
	return strings.TrimRight(line, "\r\n"), true, nil
}

// NextChunk reads up to n records.
// Returns nil, nil when there are no more records.
func (r *VCFReader) NextChunk(n int) ([]Record, error) {
	if n <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", n)
	}

	for len(r.pending) < n {
		line, ok, err := r.readLine()
		if err != nil {
			return nil, &InputFormatError{Columns: -1, Message: "read VCF", Err: err}
		}
		if !ok {
			break
		}
		if line == "" || line[0] == '#' {
			continue
		}

		records, rerr := r.parse(line)
		if rerr != nil {
			if r.onInvalid != nil {
				r.onInvalid(rerr)
				continue
			}
			return nil, rerr
		}
		r.pending = append(r.pending, records...)
	}

	if len(r.pending) == 0 {
		return nil, nil
	}
	k := min(n, len(r.pending))
	chunk := make([]Record, k)
	copy(chunk, r.pending[:k])
	r.pending = r.pending[k:]
	return chunk, nil
}

// parse hands one data line to vcfgo. Errors vcfgo collects on the line
// become a RecordError when they concern POS; QUAL, INFO and sample errors
// do not touch the columns read here.
func (r *VCFReader) parse(line string) ([]Record, *RecordError) {
	fields := bytes.SplitN([]byte(line), []byte{'\t'}, vcfColumns+1)
	if len(fields) < vcfColumns {
		return nil, &RecordError{
			Line:    r.line,
			Raw:     line,
			Message: fmt.Sprintf("expected at least %d VCF columns, found %d", vcfColumns, len(fields)),
		}
	}
	if len(fields) > vcfColumns && bytes.IndexByte(fields[vcfColumns], '\t') < 0 {
		// FORMAT without sample columns.
		fields = fields[:vcfColumns]
	}

	v := r.rdr.Parse(fields)
	if err := r.rdr.Error(); err != nil {
		r.rdr.Clear()
		if _, perr := strconv.ParseUint(string(fields[1]), 10, 64); perr != nil {
			return nil, &RecordError{
				Line:    r.line,
				Raw:     line,
				Message: fmt.Sprintf("invalid position: %s", fields[1]),
			}
		}
	}
	return SplitMultiAllelic(v, r.line, line), nil
}

// SplitMultiAllelic converts a VCF variant into one record per ALT allele.
// line and raw locate the variant in its file.
func SplitMultiAllelic(v *vcfgo.Variant, line int, raw string) []Record {
	alts := v.Alternate
	if len(alts) == 0 {
		alts = []string{"."}
	}

	records := make([]Record, len(alts))
	for i, alt := range alts {
		records[i] = Record{
			Chrom: v.Chromosome,
			Pos:   int64(v.Pos),
			ID:    v.Id(),
			Ref:   v.Reference,
			Alt:   alt,
			Line:  line,
			Raw:   raw,
		}
	}
	return records
}

// LineNumber returns the file line number of the last line read.
func (r *VCFReader) LineNumber() int {
	return r.line
}

// Close closes the reader and underlying file.
func (r *VCFReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Open opens a variant file and returns the matching RecordSource. Files that
// start with the VCF magic header are read as VCF, everything else as a
// tab-separated table. Gzipped input is decompressed transparently.
func Open(path string) (RecordSource, error) {
	rdr, err := xopen.Ropen(path)
	if err != nil {
		return nil, &InputFormatError{Columns: -1, Message: "open " + path, Err: err}
	}

	src, err := sourceFor(rdr.Reader, rdr)
	if err != nil {
		rdr.Close()
		return nil, err
	}
	return src, nil
}

func sourceFor(br *bufio.Reader, c io.Closer) (RecordSource, error) {
	if IsVCF(br) {
		r, err := NewVCFReader(br)
		if err != nil {
			return nil, err
		}
		r.closer = c
		return r, nil
	}
	return newParser(br, c)
}

// IsVCF reports whether the buffered input starts with the VCF magic header.
// It does not consume input.
func IsVCF(br *bufio.Reader) bool {
	b, _ := br.Peek(len(vcfMagic))
	return string(b) == vcfMagic
}
