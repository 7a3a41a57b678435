// Package manifest describes the reference datasets of a run: where they
// live and which of their columns carry elements, genes and scores.
package manifest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/DyogenIBENS/FINSURF/internal/annotate"
)

// Manifest is the decoded TOML dataset description.
//
//	base = "/data/finsurf"
//	assembly = "hg19"
//
//	[regulatory]
//	file = "regulatory.bed.gz"
//	element_column = 4
//	genes_column = 5
//
//	[score]
//	file = "scores.tsv.gz"
//	transition_column = 6
//	general_column = 0   # 0 = last column
type Manifest struct {
	// Base is prepended to relative dataset paths. When empty, paths are
	// relative to the manifest file.
	Base       string     `toml:"base"`
	Assembly   string     `toml:"assembly"`
	Regulatory Regulatory `toml:"regulatory"`
	Score      Score      `toml:"score"`
}

// Regulatory describes the regulatory element dataset.
type Regulatory struct {
	File          string `toml:"file"`
	ElementColumn int    `toml:"element_column"`
	GenesColumn   int    `toml:"genes_column"`
}

// Score describes the functional score dataset.
type Score struct {
	File             string `toml:"file"`
	TransitionColumn int    `toml:"transition_column"`
	GeneralColumn    int    `toml:"general_column"`
}

// Default returns a manifest with the standard column layout and no files.
func Default() *Manifest {
	l := annotate.DefaultLayout()
	return &Manifest{
		Assembly: annotate.DefaultAssembly,
		Regulatory: Regulatory{
			ElementColumn: l.ElementColumn,
			GenesColumn:   l.GenesColumn,
		},
		Score: Score{
			TransitionColumn: l.TransitionColumn,
			GeneralColumn:    l.GeneralColumn,
		},
	}
}

// Load decodes the manifest at path on top of the defaults and resolves
// relative dataset paths.
func Load(path string) (*Manifest, error) {
	m := Default()
	md, err := toml.DecodeFile(path, m)
	if err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("manifest %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	base := m.Base
	if base == "" {
		base = filepath.Dir(path)
	}
	m.Regulatory.File = resolve(base, m.Regulatory.File)
	m.Score.File = resolve(base, m.Score.File)
	return m, nil
}

func resolve(base, file string) string {
	if file == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}

// Override replaces the dataset files with non-empty arguments.
func (m *Manifest) Override(regulatory, score string) {
	if regulatory != "" {
		m.Regulatory.File = regulatory
	}
	if score != "" {
		m.Score.File = score
	}
}

// Layout returns the column layout used by the pipeline.
func (m *Manifest) Layout() annotate.Layout {
	return annotate.Layout{
		ElementColumn:    m.Regulatory.ElementColumn,
		GenesColumn:      m.Regulatory.GenesColumn,
		TransitionColumn: m.Score.TransitionColumn,
		GeneralColumn:    m.Score.GeneralColumn,
	}
}

// Validate checks that both datasets are named and the layout is usable.
func (m *Manifest) Validate() error {
	var errs []error
	if m.Regulatory.File == "" {
		errs = append(errs, errors.New("regulatory dataset file is required"))
	}
	if m.Score.File == "" {
		errs = append(errs, errors.New("score dataset file is required"))
	}
	if err := m.Layout().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
