package simhash

import (
	"strconv"
	"strings"
)

// Table fingerprints the cells of a table. Each cell is tokenised together
// with its column index, so the same value in a different column counts as
// different content. Blank cells are ignored.
func Table(rows [][]string) uint64 {
	var tokens []string
	for _, row := range rows {
		for col, cell := range row {
			cell = strings.Join(strings.Fields(cell), " ")
			if cell == "" {
				continue
			}
			tokens = append(tokens, strconv.Itoa(col)+":"+cell)
		}
	}
	return Fingerprint(tokens)
}
