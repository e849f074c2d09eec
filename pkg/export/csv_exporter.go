package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/noah-isme/sma-timetable/internal/dto"
)

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// RenderTimetable writes one record per class cell, including breaks and free cells.
func (e *CSVExporter) RenderTimetable(view dto.TimetableView) ([]byte, error) {
	if len(view.Classes) == 0 {
		return nil, fmt.Errorf("timetable has no classes")
	}
	return e.Render(cellDataset(view))
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func itoa(v int) string { return strconv.Itoa(v) }
