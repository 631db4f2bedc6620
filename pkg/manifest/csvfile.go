// Package manifest assembles load-manifest JSON documents from CSV rows and
// JSON templates, one manifest per non-empty data row.
package manifest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// readCSV reads a whole CSV file, tolerating an optional UTF-8 BOM, and
// returns the header row and the data rows in file order.
func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(transform.NewReader(f, unicode.UTF8BOM.NewDecoder()))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("csv %s has no header row", path)
	}
	return records[0], records[1:], nil
}

// rowIsEmpty reports whether every cell of a row is blank.
func rowIsEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
