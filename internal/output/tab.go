// Package output writes and reads ranked result tables.
package output

import (
	"bufio"
	"io"
	"strings"

	"github.com/DyogenIBENS/FINSURF/internal/annotate"
)

// TabWriter writes ranked results in tab-delimited format.
type TabWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewTabWriter creates a new tab-delimited writer.
func NewTabWriter(w io.Writer) *TabWriter {
	return &TabWriter{
		w:       bufio.NewWriter(w),
		columns: annotate.Columns,
	}
}

// WriteHeader writes the header line, prefixed with '#'.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString("#" + strings.Join(tw.columns, "\t") + "\n")
	return err
}

// Write writes a single result row.
func (tw *TabWriter) Write(r *annotate.RankedResult) error {
	_, err := tw.w.WriteString(strings.Join(r.Fields(), "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}
