package datasets

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// DateColumn is the name of the key column in panel CSV files.
const DateColumn = "date"

// LoadPanel reads a cleaned panel CSV from path.
func LoadPanel(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open panel %s: %w", path, err)
	}
	defer file.Close()

	f, err := ReadPanel(file)
	if err != nil {
		return nil, fmt.Errorf("panel %s: %w", path, err)
	}
	return f, nil
}

// ReadPanel parses a panel CSV: a date column plus one numeric column per
// series. Rows are sorted by date; a repeated date is an error.
func ReadPanel(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	dateIdx := -1
	var columns []string
	var colPos []int
	for i, name := range header {
		if normalizeName(name) == DateColumn {
			dateIdx = i
			continue
		}
		columns = append(columns, name)
		colPos = append(colPos, i)
	}
	if dateIdx < 0 {
		return nil, fmt.Errorf("required column %q not found in CSV", DateColumn)
	}

	type row struct {
		date time.Time
		vals []float64
	}
	var rows []row
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}

		d, err := ParseDate(record[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		vals := make([]float64, len(colPos))
		for j, pos := range colPos {
			v, err := parseValue(record[pos])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", line, columns[j], err)
			}
			vals[j] = v
		}
		rows = append(rows, row{date: d, vals: vals})
	}

	sort.SliceStable(rows, func(a, b int) bool { return rows[a].date.Before(rows[b].date) })

	dates := make([]time.Time, len(rows))
	for i, r := range rows {
		dates[i] = r.date
	}
	f, err := NewFrame(dates, columns)
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		for j, v := range r.vals {
			f.values[j][i] = v
		}
	}
	return f, nil
}

// WriteCSV writes the frame with a leading date column. Null cells are
// written empty.
func (f *Frame) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	header := append([]string{DateColumn}, f.columns...)
	if err := writer.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for i, d := range f.dates {
		record[0] = d.Format(DateLayout)
		for j := range f.columns {
			record[j+1] = formatValue(f.values[j][i])
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
