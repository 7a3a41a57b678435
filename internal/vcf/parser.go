package vcf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/brentp/xopen"
)

// MinColumns is the number of leading columns every input row must carry:
// chrom, pos, id, ref, alt.
const MinColumns = 5

// probeLines is the number of lines inspected to validate the input layout.
const probeLines = 3

// knownChroms lists chromosome names accepted as data in the first input
// column. A first line whose first field is not one of these is a header.
var knownChroms = func() map[string]bool {
	m := make(map[string]bool)
	for i := 1; i <= 22; i++ {
		m[strconv.Itoa(i)] = true
	}
	for _, c := range []string{"X", "Y", "M", "MT"} {
		m[c] = true
	}
	for c := range m {
		m["chr"+c] = true
	}
	return m
}()

// Parser reads variant records from a tab-separated file whose first five
// columns are chrom, pos, id, ref and alt.
type Parser struct {
	reader     *bufio.Reader
	closer     io.Closer
	lineNumber int
	pending    []string // probed lines not yet consumed
	pendingAt  int      // line number of pending[0]
	header     string
	eof        bool
	onInvalid  func(*RecordError)
}

// NewParser creates a new parser for the given file.
// Gzipped files are decompressed transparently; "-" reads stdin.
func NewParser(path string) (*Parser, error) {
	rdr, err := xopen.Ropen(path)
	if err != nil {
		return nil, &InputFormatError{Columns: -1, Message: "open " + path, Err: err}
	}
	p, err := newParser(rdr.Reader, rdr)
	if err != nil {
		rdr.Close()
		return nil, err
	}
	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader.
func NewParserFromReader(r io.Reader) (*Parser, error) {
	return newParser(bufio.NewReader(r), nil)
}

func newParser(r *bufio.Reader, c io.Closer) (*Parser, error) {
	p := &Parser{reader: r, closer: c}
	if err := p.probe(); err != nil {
		return nil, err
	}
	return p, nil
}

// SetSkipInvalid makes the parser skip rows that cannot be parsed, reporting
// each of them to fn instead of failing. By default an invalid row is fatal.
func (p *Parser) SetSkipInvalid(fn func(*RecordError)) {
	p.onInvalid = fn
}

// probe reads the first lines of the input, validates the column count and
// drops the header line if there is one.
func (p *Parser) probe() error {
	p.pendingAt = p.lineNumber + 1
	for len(p.pending) < probeLines {
		line, ok, err := p.readLine()
		if err != nil {
			return &InputFormatError{Columns: -1, Message: "read input", Err: err}
		}
		if !ok {
			break
		}
		if line == "" && len(p.pending) == 0 {
			p.pendingAt++
			continue
		}
		p.pending = append(p.pending, line)
	}

	if len(p.pending) == 0 {
		return &InputFormatError{Columns: 0, Message: "no variant records found"}
	}

	first := p.pending[0]
	fields := strings.Split(first, "\t")
	if len(fields) < MinColumns {
		return &InputFormatError{Columns: len(fields), Message: "too few columns"}
	}

	if strings.HasPrefix(fields[0], "#") || !knownChroms[fields[0]] {
		p.header = first
		p.pending = p.pending[1:]
		p.pendingAt++
	}
	return nil
}

// readLine returns the next line without its line terminator.
// ok is false at end of input.
func (p *Parser) readLine() (string, bool, error) {
	if p.eof {
		return "", false, nil
	}
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			return "", false, fmt.Errorf("read variant line: %w", err)
		}
		p.eof = true
		if line == "" {
			return "", false, nil
		}
	}
	p.lineNumber++
	return strings.TrimRight(line, "\r\n"), true, nil
}

// next returns the next unconsumed line and its line number.
func (p *Parser) next() (string, int, bool, error) {
	if len(p.pending) > 0 {
		line := p.pending[0]
		n := p.pendingAt
		p.pending = p.pending[1:]
		p.pendingAt++
		return line, n, true, nil
	}
	line, ok, err := p.readLine()
	return line, p.lineNumber, ok, err
}

// NextChunk reads up to n records.
// Returns nil, nil when there are no more records.
func (p *Parser) NextChunk(n int) ([]Record, error) {
	if n <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", n)
	}

	var records []Record
	for len(records) < n {
		line, lineNo, ok, err := p.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rec, rerr := parseLine(line, lineNo)
		if rerr != nil {
			if p.onInvalid != nil {
				p.onInvalid(rerr)
				continue
			}
			return nil, rerr
		}
		records = append(records, rec)
	}
	return records, nil
}

// parseLine parses a single data line into a Record.
func parseLine(line string, lineNo int) (Record, *RecordError) {
	fields := strings.Split(line, "\t")
	if len(fields) < MinColumns {
		return Record{}, &RecordError{
			Line:    lineNo,
			Raw:     line,
			Message: fmt.Sprintf("expected at least %d columns, found %d", MinColumns, len(fields)),
		}
	}

	pos, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		return Record{}, &RecordError{
			Line:    lineNo,
			Raw:     line,
			Message: fmt.Sprintf("invalid position: %s", fields[1]),
		}
	}

	return Record{
		Chrom: fields[0],
		Pos:   pos,
		ID:    fields[2],
		Ref:   fields[3],
		Alt:   fields[4],
		Line:  lineNo,
		Raw:   line,
	}, nil
}

// Header returns the header line that was skipped, or "" if there was none.
func (p *Parser) Header() string {
	return p.header
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// Close closes the parser and underlying file.
func (p *Parser) Close() error {
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}
