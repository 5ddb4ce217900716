package adapter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVInfo describes a CSV file about to be bulk-loaded.
type CSVInfo struct {
	Header []string
	Rows   int64
}

// InspectCSV reads the header of a CSV file and counts its data rows.
// Adapters whose bulk-load statement does not report a row count use it.
func InspectCSV(path string) (*CSVInfo, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the project's sources file
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.ReuseRecord = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	info := &CSVInfo{Header: append([]string(nil), header...)}

	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", info.Rows+2, err)
		}
		info.Rows++
	}
	return info, nil
}

// SanitizeIdentifier makes a CSV header safe to use as a column name.
func SanitizeIdentifier(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, safe)
	if safe == "" || (safe[0] >= '0' && safe[0] <= '9') {
		safe = "_" + safe
	}
	return safe
}

// TextColumns builds a column list where every column has the given type.
func TextColumns(header []string, textType string, quote func(string) string) string {
	defs := make([]string, len(header))
	for i, col := range header {
		defs[i] = quote(SanitizeIdentifier(col)) + " " + textType
	}
	return strings.Join(defs, ", ")
}
