package annotate

import (
	"fmt"
	"strconv"

	"github.com/DyogenIBENS/FINSURF/internal/tabix"
	"github.com/DyogenIBENS/FINSURF/internal/vcf"
)

// DefaultAssembly is the UCSC genome browser database used for links.
const DefaultAssembly = "hg19"

// ucscFlank is the number of bases shown on each side of a variant base.
const ucscFlank = 100

// Layout gives the 1-based columns read from dataset rows.
type Layout struct {
	ElementColumn    int // regulatory element identifier
	GenesColumn      int // genes associated with the element
	TransitionColumn int // score used for transitions
	GeneralColumn    int // score used for everything else; 0 is the last column
}

// DefaultLayout returns the column layout of the FINSURF datasets.
func DefaultLayout() Layout {
	return Layout{
		ElementColumn:    4,
		GenesColumn:      5,
		TransitionColumn: 6,
		GeneralColumn:    0,
	}
}

// Validate checks that all columns are usable.
func (l Layout) Validate() error {
	switch {
	case l.ElementColumn < 1:
		return fmt.Errorf("element column must be >= 1, got %d", l.ElementColumn)
	case l.GenesColumn < 1:
		return fmt.Errorf("genes column must be >= 1, got %d", l.GenesColumn)
	case l.TransitionColumn < 1:
		return fmt.Errorf("transition column must be >= 1, got %d", l.TransitionColumn)
	case l.GeneralColumn < 0:
		return fmt.Errorf("general column must be >= 0, got %d", l.GeneralColumn)
	}
	return nil
}

// IntermediateRow is an expanded interval that overlapped a regulatory element.
type IntermediateRow struct {
	ExpandedInterval
	ElementID string
	Genes     string
}

// RankedResult is one row of the final table.
type RankedResult struct {
	Chrom     string
	Pos       int64 // 1-based variant position
	End       int64 // end of the annotated base
	Score     string
	ID        string
	Ref       string
	Alt       string
	VarType   vcf.Type
	VarTrans  vcf.TransitionClass
	UCSCLink  string
	ElementID string
	Genes     string
}

// Columns are the output column names, in order.
var Columns = []string{
	"chrom", "pos", "end", "score", "id", "ref", "alt",
	"vartype", "vartrans", "ucsc_link", "el_id", "genes",
}

// Fields returns the row values in Columns order.
func (r *RankedResult) Fields() []string {
	return []string{
		r.Chrom,
		strconv.FormatInt(r.Pos, 10),
		strconv.FormatInt(r.End, 10),
		r.Score,
		r.ID,
		r.Ref,
		r.Alt,
		string(r.VarType),
		string(r.VarTrans),
		r.UCSCLink,
		r.ElementID,
		r.Genes,
	}
}

// UCSCLink returns a genome browser link centred on the base [start, end).
func UCSCLink(assembly, chrom string, start, end int64) string {
	from := start - ucscFlank
	if from < 0 {
		from = 0
	}
	return fmt.Sprintf("https://genome.ucsc.edu/cgi-bin/hgTracks?db=%s&position=%s%%3A%d-%d",
		assembly, chrom, from, end+ucscFlank)
}

func intervalQueries(intervals []ExpandedInterval) []Query[ExpandedInterval] {
	qs := make([]Query[ExpandedInterval], len(intervals))
	for i, iv := range intervals {
		qs[i] = Query[ExpandedInterval]{Chrom: iv.Chrom, Start: iv.BaseStart, End: iv.BaseEnd, Payload: iv}
	}
	return qs
}

// reconcileRegulatory turns regulatory hits into intermediate rows, one per
// hit. No-match outcomes are dropped.
func reconcileRegulatory(ds tabix.Dataset, layout Layout, outcomes []Outcome[ExpandedInterval]) ([]IntermediateRow, error) {
	var rows []IntermediateRow
	for _, o := range outcomes {
		if o.Status != StatusHits {
			continue
		}
		for _, hit := range o.Hits {
			el, ok := hit.Field(layout.ElementColumn)
			if !ok {
				return nil, missingColumn(ds, hit, layout.ElementColumn)
			}
			genes, ok := hit.Field(layout.GenesColumn)
			if !ok {
				return nil, missingColumn(ds, hit, layout.GenesColumn)
			}
			rows = append(rows, IntermediateRow{
				ExpandedInterval: o.Query.Payload,
				ElementID:        el,
				Genes:            genes,
			})
		}
	}
	return rows, nil
}

func intermediateQueries(rows []IntermediateRow) []Query[IntermediateRow] {
	qs := make([]Query[IntermediateRow], len(rows))
	for i, r := range rows {
		qs[i] = Query[IntermediateRow]{Chrom: r.Chrom, Start: r.BaseStart, End: r.BaseEnd, Payload: r}
	}
	return qs
}

// reconcileScore picks the score of every hit and builds the final rows.
func reconcileScore(ds tabix.Dataset, layout Layout, assembly string, outcomes []Outcome[IntermediateRow]) ([]RankedResult, error) {
	var results []RankedResult
	for _, o := range outcomes {
		if o.Status != StatusHits {
			continue
		}
		r := o.Query.Payload
		link := UCSCLink(assembly, r.Chrom, r.BaseStart, r.BaseEnd)
		for _, hit := range o.Hits {
			score, err := pickScore(ds, layout, r.Trans, hit)
			if err != nil {
				return nil, err
			}
			results = append(results, RankedResult{
				Chrom:     r.Chrom,
				Pos:       r.VariantPos,
				End:       r.BaseEnd,
				Score:     score,
				ID:        r.ID,
				Ref:       r.Ref,
				Alt:       r.Alt,
				VarType:   r.Type,
				VarTrans:  r.Trans,
				UCSCLink:  link,
				ElementID: r.ElementID,
				Genes:     r.Genes,
			})
		}
	}
	return results, nil
}

func pickScore(ds tabix.Dataset, layout Layout, trans vcf.TransitionClass, hit tabix.Row) (string, error) {
	col := layout.GeneralColumn
	if trans == vcf.Transition {
		col = layout.TransitionColumn
	}
	if col == 0 {
		if len(hit.Fields) == 0 {
			return "", missingColumn(ds, hit, 1)
		}
		return hit.Last(), nil
	}
	v, ok := hit.Field(col)
	if !ok {
		return "", missingColumn(ds, hit, col)
	}
	return v, nil
}

func missingColumn(ds tabix.Dataset, hit tabix.Row, col int) error {
	return &tabix.DatasetError{
		Path: ds.Path(),
		Op:   "read row",
		Err: fmt.Errorf("%s:%d-%d has %d columns, column %d required",
			hit.Chrom, hit.Start, hit.End, len(hit.Fields), col),
	}
}
