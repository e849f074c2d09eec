package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/sma-timetable/internal/dto"
)

const (
	defaultSheet  = "Sheet1"
	unplacedSheet = "Unplaced"
	maxSheetName  = 31
)

// XLSXExporter renders one worksheet per class.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// RenderTimetable writes each class grid on its own sheet with days as rows and slots as columns.
func (e *XLSXExporter) RenderTimetable(view dto.TimetableView) ([]byte, error) {
	if len(view.Classes) == 0 {
		return nil, fmt.Errorf("timetable has no classes")
	}
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#F5F5F5"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#808080"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("xlsx header style: %w", err)
	}
	bodyStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return nil, fmt.Errorf("xlsx body style: %w", err)
	}

	used := map[string]struct{}{}
	for i, class := range view.Classes {
		sheet := sheetName(class.ClassID, used)
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", sheet, err)
		}
		if err := writeClassSheet(f, sheet, view.Slots, class, headerStyle, bodyStyle); err != nil {
			return nil, err
		}
	}

	if len(view.Unplaced) > 0 {
		if _, err := f.NewSheet(unplacedSheet); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", unplacedSheet, err)
		}
		data := unplacedDataset(view)
		if err := writeDatasetSheet(f, unplacedSheet, data, headerStyle); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func writeClassSheet(f *excelize.File, sheet string, slots []string, class dto.ClassTimetable, headerStyle, bodyStyle int) error {
	header := make([]interface{}, 0, len(slots)+1)
	header = append(header, dayHeader)
	for _, slot := range slots {
		header = append(header, slot)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	for r, row := range class.Rows {
		values := make([]interface{}, 0, len(row.Cells)+1)
		values = append(values, row.Day)
		for _, cell := range row.Cells {
			values = append(values, cell.Label)
		}
		start, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, start, &values); err != nil {
			return fmt.Errorf("write xlsx row: %w", err)
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(slots) + 1)
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 22); err != nil {
		return fmt.Errorf("xlsx column width: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("xlsx header style: %w", err)
	}
	if len(class.Rows) > 0 {
		if err := f.SetCellStyle(sheet, "A2", fmt.Sprintf("%s%d", lastCol, len(class.Rows)+1), bodyStyle); err != nil {
			return fmt.Errorf("xlsx body style: %w", err)
		}
	}
	return nil
}

func writeDatasetSheet(f *excelize.File, sheet string, data Dataset, headerStyle int) error {
	header := make([]interface{}, len(data.Headers))
	for i, h := range data.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	for r, row := range data.Rows {
		values := make([]interface{}, len(data.Headers))
		for i, h := range data.Headers {
			values[i] = row[h]
		}
		start, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, start, &values); err != nil {
			return fmt.Errorf("write xlsx row: %w", err)
		}
	}
	lastCol, err := excelize.ColumnNumberToName(len(data.Headers))
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle)
}

// sheetName strips characters Excel rejects, truncates to 31 runes and keeps names unique.
func sheetName(classID string, used map[string]struct{}) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, classID)
	name = strings.Trim(name, "'")
	if name == "" {
		name = "Class"
	}
	base := truncate(name, maxSheetName)
	name = base
	for n := 2; ; n++ {
		if _, taken := used[strings.ToLower(name)]; !taken && !strings.EqualFold(name, unplacedSheet) {
			break
		}
		suffix := fmt.Sprintf("~%d", n)
		name = truncate(base, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = struct{}{}
	return name
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
