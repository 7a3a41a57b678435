package output

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/brentp/xopen"
)

// ReadGeneList reads gene names, one per line. Blank lines and lines
// starting with '#' are ignored; duplicates are dropped.
func ReadGeneList(path string) ([]string, error) {
	rdr, err := xopen.Ropen(path)
	if err != nil {
		return nil, fmt.Errorf("open gene list: %w", err)
	}
	defer rdr.Close()

	var genes []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(rdr)
	for scanner.Scan() {
		g := strings.TrimSpace(scanner.Text())
		if g == "" || strings.HasPrefix(g, "#") || seen[g] {
			continue
		}
		seen[g] = true
		genes = append(genes, g)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read gene list: %w", err)
	}
	return genes, nil
}

// SplitGenes splits a genes field into gene names.
func SplitGenes(field string) []string {
	return strings.FieldsFunc(field, func(r rune) bool {
		return r == ';' || r == ',' || r == ' '
	})
}
