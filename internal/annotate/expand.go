// Package annotate intersects canonical variants with regulatory and score
// datasets and ranks the resulting rows.
package annotate

import (
	"errors"
	"fmt"

	"github.com/DyogenIBENS/FINSURF/internal/vcf"
)

// ErrMalformedVariant is returned when a variant does not cover any base.
var ErrMalformedVariant = errors.New("malformed variant")

// ExpandedInterval is one base of a variant. All intervals of a variant
// share its RowID.
type ExpandedInterval struct {
	Chrom      string
	VariantPos int64 // 1-based input position
	BaseStart  int64 // 0-based
	BaseEnd    int64 // BaseStart + 1
	ID         string
	Ref        string
	Alt        string
	RowID      int64
	Type       vcf.Type
	Trans      vcf.TransitionClass
}

// Expand emits one interval per base in [Start, End) of each variant.
// Variant i gets RowID offset+i; the caller continues with offset+len(variants).
func Expand(variants []vcf.Variant, offset int64) ([]ExpandedInterval, error) {
	var total int64
	for i := range variants {
		v := &variants[i]
		if v.End <= v.Start {
			return nil, fmt.Errorf("%w: %s:%d %s>%s has end %d <= start %d (line %d)",
				ErrMalformedVariant, v.Chrom, v.Pos, v.Ref, v.Alt, v.End, v.Start, v.Line)
		}
		total += v.Len()
	}

	out := make([]ExpandedInterval, 0, total)
	for i := range variants {
		v := &variants[i]
		rowID := offset + int64(i)
		for base := v.Start; base < v.End; base++ {
			out = append(out, ExpandedInterval{
				Chrom:      v.Chrom,
				VariantPos: v.Pos,
				BaseStart:  base,
				BaseEnd:    base + 1,
				ID:         v.ID,
				Ref:        v.Ref,
				Alt:        v.Alt,
				RowID:      rowID,
				Type:       v.Type,
				Trans:      v.Trans,
			})
		}
	}
	return out, nil
}
