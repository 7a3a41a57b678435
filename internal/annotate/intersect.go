package annotate

import (
	"fmt"

	"github.com/DyogenIBENS/FINSURF/internal/tabix"
)

// Status tells whether an intersection key overlapped any dataset row.
type Status int

// Intersection statuses.
const (
	StatusNoMatch Status = iota
	StatusHits
)

func (s Status) String() string {
	if s == StatusHits {
		return "hits"
	}
	return "no_match"
}

// Query is one intersection key: a 0-based half-open interval plus the
// caller's payload. Keys are compared by value.
type Query[T comparable] struct {
	Chrom   string
	Start   int64
	End     int64
	Payload T
}

// Outcome is the result of intersecting one key.
type Outcome[T comparable] struct {
	Query  Query[T]
	Status Status
	Hits   []tabix.Row // every overlapping row, in dataset order
}

// Intersect queries ds for every distinct key in queries. Outcomes follow
// the first-seen order of the keys, and each key yields exactly one outcome.
// A chromosome missing from the dataset catalogue is a no-match and is not
// queried.
func Intersect[T comparable](ds tabix.Dataset, queries []Query[T]) ([]Outcome[T], error) {
	cat := ds.Catalogue()
	seen := make(map[Query[T]]struct{}, len(queries))
	out := make([]Outcome[T], 0, len(queries))

	for _, q := range queries {
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}

		name, ok := cat.Lookup(q.Chrom)
		if !ok {
			out = append(out, Outcome[T]{Query: q, Status: StatusNoMatch})
			continue
		}

		hits, err := ds.Query(name, tabix.QueryRegion(q.Start, q.End))
		if err != nil {
			return nil, fmt.Errorf("intersect %s:%d-%d: %w", q.Chrom, q.Start, q.End, err)
		}
		if len(hits) == 0 {
			out = append(out, Outcome[T]{Query: q, Status: StatusNoMatch})
			continue
		}
		out = append(out, Outcome[T]{Query: q, Status: StatusHits, Hits: hits})
	}
	return out, nil
}
