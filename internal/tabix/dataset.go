// Package tabix provides interval-indexed reference datasets: coordinate
// sorted tables queried by region, each with a chromosome catalogue.
package tabix

import (
	"fmt"
	"strings"
)

// Row is one line of a dataset that overlapped a query.
// Start and End are 0-based half-open; Fields holds every column of the line.
type Row struct {
	Chrom  string
	Start  int64
	End    int64
	Fields []string
}

// Last returns the last column of the row.
func (r Row) Last() string {
	if len(r.Fields) == 0 {
		return ""
	}
	return r.Fields[len(r.Fields)-1]
}

// Field returns the 1-based column col, and false if the row is too short.
func (r Row) Field(col int) (string, bool) {
	if col < 1 || col > len(r.Fields) {
		return "", false
	}
	return r.Fields[col-1], true
}

// Overlaps reports whether the row overlaps the region.
func (r Row) Overlaps(reg Region) bool {
	return r.Start < reg.End && r.End > reg.Begin-1
}

// Region is a 1-based, inclusive query region as understood by tabix.
type Region struct {
	Begin int64
	End   int64
}

// QueryRegion converts a 0-based half-open interval [start, end) into the
// region used to query an index. A one-base interval [n, n+1) is queried at
// position n+1 so that it lands inside the stored interval instead of
// touching two adjacent ones.
func QueryRegion(start, end int64) Region {
	return Region{Begin: start + 1, End: end}
}

func (r Region) String() string {
	return fmt.Sprintf("%d-%d", r.Begin, r.End)
}

// Dataset is an interval-indexed table.
type Dataset interface {
	// Path identifies the dataset in logs and errors.
	Path() string

	// Catalogue returns the chromosomes present in the dataset.
	Catalogue() *Catalogue

	// Query returns every row overlapping reg on chrom, in file order.
	// chrom must use the dataset's own naming (see Catalogue.Lookup).
	Query(chrom string, reg Region) ([]Row, error)

	// Close releases the dataset.
	Close() error
}

// ChromMode tells whether a dataset names chromosomes "chr1" or "1".
type ChromMode int

// Chromosome naming modes.
const (
	ChromPrefixed ChromMode = iota
	ChromBare
)

func (m ChromMode) String() string {
	if m == ChromBare {
		return "bare"
	}
	return "prefixed"
}

// Apply renames chrom to the naming used by mode.
func (m ChromMode) Apply(chrom string) string {
	bare := strings.TrimPrefix(chrom, "chr")
	if m == ChromBare {
		return bare
	}
	return "chr" + bare
}

// Catalogue is the set of chromosome names of a dataset together with its
// naming mode. It is computed once when the dataset is opened.
type Catalogue struct {
	mode  ChromMode
	names map[string]bool
	list  []string
}

// NewCatalogue builds a catalogue from the chromosome names stored in a
// dataset. The mode is prefixed when most names carry "chr". A dataset with
// no rows has an empty catalogue, in which every lookup fails.
func NewCatalogue(names []string) *Catalogue {
	c := &Catalogue{names: make(map[string]bool, len(names))}
	prefixed := 0
	for _, n := range names {
		if c.names[n] {
			continue
		}
		c.names[n] = true
		c.list = append(c.list, n)
		if strings.HasPrefix(n, "chr") {
			prefixed++
		}
	}
	if prefixed*2 < len(c.list) {
		c.mode = ChromBare
	}
	return c
}

// Mode returns the naming mode of the dataset.
func (c *Catalogue) Mode() ChromMode {
	return c.mode
}

// Names returns the chromosome names in index order.
func (c *Catalogue) Names() []string {
	return c.list
}

// Contains reports whether name is present verbatim.
func (c *Catalogue) Contains(name string) bool {
	return c.names[name]
}

// Lookup resolves chrom (in any naming) to the name stored in the dataset.
// The dataset's own mode is tried first, then the other form.
func (c *Catalogue) Lookup(chrom string) (string, bool) {
	primary := c.mode.Apply(chrom)
	if c.names[primary] {
		return primary, true
	}
	other := ChromBare
	if c.mode == ChromBare {
		other = ChromPrefixed
	}
	if alt := other.Apply(chrom); c.names[alt] {
		return alt, true
	}
	return "", false
}

// DatasetError reports a failure to open or query a dataset.
type DatasetError struct {
	Path string
	Op   string
	Err  error
}

func (e *DatasetError) Error() string {
	return fmt.Sprintf("dataset %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *DatasetError) Unwrap() error { return e.Err }
