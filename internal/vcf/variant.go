// Package vcf reads variant records and normalizes them into canonical variants.
package vcf

import "strings"

// Type is the shape category of a variant derived from its allele lengths.
type Type string

// Variant types.
const (
	TypeSNV   Type = "SNV"
	TypeINS   Type = "INS"
	TypeDEL   Type = "DEL"
	TypeINDEL Type = "INDEL"
)

// TransitionClass sub-classifies single-nucleotide substitutions.
type TransitionClass string

// Transition classes.
const (
	Transition   TransitionClass = "transition"
	Transversion TransitionClass = "transversion"
	NotSNV       TransitionClass = "not_SNV"
	Unknown      TransitionClass = "unknown"
)

// Record is a raw input row before normalization.
type Record struct {
	Chrom string // Chromosome name as found in the input (e.g., "1", "chr1")
	Pos   int64  // 1-based position
	ID    string
	Ref   string
	Alt   string
	Line  int    // Input line number, 0 if unknown
	Raw   string // Raw line content
}

// Variant is a canonical variant with interval coordinates.
// Start is 0-based and End is exclusive; Start < End always holds.
type Variant struct {
	Chrom string // Always carries the "chr" prefix
	Pos   int64  // 1-based input position
	Start int64
	End   int64
	ID    string
	Ref   string
	Alt   string
	Type  Type
	Trans TransitionClass
	Line  int
}

// Len returns the number of bases covered by [Start, End).
func (v *Variant) Len() int64 {
	return v.End - v.Start
}

// ClassifyType returns the variant type for the given alleles.
func ClassifyType(ref, alt string) Type {
	if len(ref) == 1 {
		if len(alt) == 1 {
			return TypeSNV
		}
		return TypeINS
	}
	if len(alt) == 1 {
		return TypeDEL
	}
	return TypeINDEL
}

// ClassifyTransition returns the transition class for the given alleles.
// Only single-base alleles drawn from ACGT (any case) are classified.
func ClassifyTransition(ref, alt string) TransitionClass {
	if len(ref) != 1 || len(alt) != 1 {
		return NotSNV
	}
	r, a := upperBase(ref[0]), upperBase(alt[0])
	if !isNucleotide(r) || !isNucleotide(a) {
		return Unknown
	}
	switch {
	case r == 'A' && a == 'G', r == 'G' && a == 'A',
		r == 'C' && a == 'T', r == 'T' && a == 'C':
		return Transition
	}
	return Transversion
}

func upperBase(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

func isNucleotide(b byte) bool {
	return b == 'A' || b == 'C' || b == 'G' || b == 'T'
}

// PrefixChrom returns the chromosome name with a "chr" prefix.
func PrefixChrom(chrom string) string {
	if strings.HasPrefix(chrom, "chr") {
		return chrom
	}
	return "chr" + chrom
}

// StripChrom returns the chromosome name without a "chr" prefix.
func StripChrom(chrom string) string {
	return strings.TrimPrefix(chrom, "chr")
}

// Normalize converts a raw record into a canonical variant.
//
// Coordinates are derived from the 1-based position: start = pos-1. SNVs
// cover one base. Insertions cover the bases before and after the insertion
// site. Deletions and complex indels cover the deleted span plus one flanking
// base.
func Normalize(r Record) (Variant, error) {
	if r.Pos < 1 {
		return Variant{}, &RecordError{
			Line:    r.Line,
			Raw:     r.Raw,
			Message: "position must be a positive 1-based integer",
		}
	}

	typ := ClassifyType(r.Ref, r.Alt)
	start := r.Pos - 1
	end := start + 1
	switch typ {
	case TypeINS:
		end = start + 2
	case TypeDEL, TypeINDEL:
		end = start + int64(len(r.Ref)) + 1
	}

	return Variant{
		Chrom: PrefixChrom(r.Chrom),
		Pos:   r.Pos,
		Start: start,
		End:   end,
		ID:    r.ID,
		Ref:   r.Ref,
		Alt:   r.Alt,
		Type:  typ,
		Trans: ClassifyTransition(r.Ref, r.Alt),
		Line:  r.Line,
	}, nil
}
