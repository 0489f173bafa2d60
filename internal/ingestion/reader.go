package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// rawFrame is the untyped source content: lowercased header plus cell text
// per row. Both readers emit this shape so every later stage is shared.
type rawFrame struct {
	header []string
	rows   [][]string
}

// columnIndex returns the position of name in the header, or -1.
func (f *rawFrame) columnIndex(name string) int {
	for i, h := range f.header {
		if h == name {
			return i
		}
	}
	return -1
}

// timestampIndex locates the timestamp column among the accepted aliases.
// The canonical name takes precedence when both are present.
func (f *rawFrame) timestampIndex() int {
	for _, alias := range timestampAliases {
		if idx := f.columnIndex(alias); idx >= 0 {
			return idx
		}
	}
	return -1
}

// readSource loads a source file into a raw frame, dispatching on extension.
// Returns ErrSourceNotFound when the file does not exist and ErrEmptySource
// when it holds no data rows.
func readSource(path string) (*rawFrame, string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, "", fmt.Errorf("stat source: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		f, err := readJSONFrame(path)
		return f, "json", err
	}
	f, err := readCSVFrame(path)
	return f, "csv", err
}

// readCSVFrame parses a delimited file into a raw frame.
func readCSVFrame(path string) (*rawFrame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1 // length checked against the header below

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %s", ErrEmptySource, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	frame := &rawFrame{header: header}
	row := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}
		if len(record) != len(header) {
			return nil, &RowError{Row: row, Column: "*",
				Err: fmt.Errorf("has %d fields, header has %d", len(record), len(header))}
		}
		frame.rows = append(frame.rows, record)
	}

	if len(frame.rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySource, path)
	}
	return frame, nil
}
