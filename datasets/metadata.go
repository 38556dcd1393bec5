package datasets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrMissingMetadata is returned when a panel column has no metadata entry.
var ErrMissingMetadata = errors.New("missing metadata entry")

// Frequency is the reporting frequency of a series.
type Frequency int

const (
	Monthly Frequency = iota
	Quarterly
)

func (f Frequency) String() string {
	switch f {
	case Monthly:
		return "monthly"
	case Quarterly:
		return "quarterly"
	}
	return fmt.Sprintf("Frequency(%d)", int(f))
}

// ParseFrequency accepts m, monthly, q or quarterly in any case.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "monthly":
		return Monthly, nil
	case "q", "quarterly":
		return Quarterly, nil
	}
	return 0, fmt.Errorf("unknown frequency %q", s)
}

// SeriesInfo describes the publication schedule of one series.
type SeriesInfo struct {
	Series    string
	Freq      Frequency
	MonthsLag int
}

// Metadata maps series identifiers to their publication schedules. Lookups
// are case-insensitive.
type Metadata struct {
	entries map[string]SeriesInfo
	order   []string
}

// NewMetadata builds a metadata table, rejecting duplicates and negative lags.
func NewMetadata(infos ...SeriesInfo) (*Metadata, error) {
	m := &Metadata{entries: make(map[string]SeriesInfo, len(infos))}
	for _, info := range infos {
		key := normalizeName(info.Series)
		if key == "" {
			return nil, errors.New("metadata entry with empty series name")
		}
		if _, ok := m.entries[key]; ok {
			return nil, fmt.Errorf("duplicate metadata entry for %q", info.Series)
		}
		if info.MonthsLag < 0 {
			return nil, fmt.Errorf("series %q: months_lag must be >= 0, got %d", info.Series, info.MonthsLag)
		}
		m.entries[key] = info
		m.order = append(m.order, info.Series)
	}
	return m, nil
}

// Len returns the number of series described.
func (m *Metadata) Len() int { return len(m.entries) }

// Series returns the series identifiers in file order.
func (m *Metadata) Series() []string { return m.order }

// Lookup returns the entry for series.
func (m *Metadata) Lookup(series string) (SeriesInfo, error) {
	info, ok := m.entries[normalizeName(series)]
	if !ok {
		return SeriesInfo{}, fmt.Errorf("%w: %q", ErrMissingMetadata, series)
	}
	return info, nil
}

// Covers checks that every column of f, other than those listed in except,
// has an entry.
func (m *Metadata) Covers(f *Frame, except ...string) error {
	skip := make(map[string]bool, len(except))
	for _, e := range except {
		skip[normalizeName(e)] = true
	}
	var missing []string
	for _, col := range f.Columns() {
		if skip[normalizeName(col)] {
			continue
		}
		if _, ok := m.entries[normalizeName(col)]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingMetadata, strings.Join(missing, ", "))
	}
	return nil
}

// LoadMetadata reads a metadata CSV from path.
func LoadMetadata(path string) (*Metadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata %s: %w", path, err)
	}
	defer file.Close()

	m, err := ReadMetadata(file)
	if err != nil {
		return nil, fmt.Errorf("metadata %s: %w", path, err)
	}
	return m, nil
}

// ReadMetadata parses a CSV with columns series, freq and months_lag. Extra
// columns are ignored.
func ReadMetadata(r io.Reader) (*Metadata, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[normalizeName(col)] = i
	}
	for _, col := range []string{"series", "freq", "months_lag"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("required column %q not found in CSV", col)
		}
	}

	var infos []SeriesInfo
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

		freq, err := ParseFrequency(record[colIndex["freq"]])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		lag, err := strconv.Atoi(strings.TrimSpace(record[colIndex["months_lag"]]))
		if err != nil {
			return nil, fmt.Errorf("row %d: months_lag: %w", line, err)
		}
		infos = append(infos, SeriesInfo{
			Series:    strings.TrimSpace(record[colIndex["series"]]),
			Freq:      freq,
			MonthsLag: lag,
		})
	}
	return NewMetadata(infos...)
}
