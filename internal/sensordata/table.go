package sensordata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// table is a header-indexed CSV body.
type table struct {
	index map[string]int
	rows  [][]string
	lines []int // source line number of each row
}

func readTable(r io.Reader) (*table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty input: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	t := &table{index: make(map[string]int, len(header))}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q in header", name)
		}
		t.index[name] = i
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line, _ := reader.FieldPos(0)
		t.rows = append(t.rows, record)
		t.lines = append(t.lines, line)
	}
	return t, nil
}

// col returns the index of the first present name, or -1.
func (t *table) col(names ...string) int {
	for _, n := range names {
		if i, ok := t.index[n]; ok {
			return i
		}
	}
	return -1
}

// require returns the index of the first present name or an error naming
// the canonical (first) one.
func (t *table) require(names ...string) (int, error) {
	i := t.col(names...)
	if i < 0 {
		return -1, fmt.Errorf("missing required column %q", names[0])
	}
	return i, nil
}

func (t *table) float(row, col int, name string) (float64, error) {
	cell := strings.TrimSpace(t.rows[row][col])
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s at line %d: %q", name, t.lines[row], cell)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite %s at line %d: %q", name, t.lines[row], cell)
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
