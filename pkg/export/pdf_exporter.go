package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/noah-isme/sma-timetable/internal/dto"
)

const (
	pdfMargin     = 10.0
	pdfLineHeight = 4.5
	pdfBottom     = 20.0
	dayHeader     = "Day/Time"
)

// PDFExporter renders timetables into one page per class.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderTimetable draws a day x slot grid per class titled "Timetable for Class {id}".
// Unplaced sessions, when any, are listed on a final page.
func (e *PDFExporter) RenderTimetable(view dto.TimetableView) ([]byte, error) {
	if len(view.Classes) == 0 {
		return nil, fmt.Errorf("timetable has no classes")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, 15, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfBottom)

	pageWidth, _ := pdf.GetPageSize()
	usable := pageWidth - 2*pdfMargin
	colWidth := usable / float64(len(view.Slots)+1)
	widths := make([]float64, len(view.Slots)+1)
	for i := range widths {
		widths[i] = colWidth
	}

	for _, class := range view.Classes {
		pdf.AddPage()
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, fmt.Sprintf("Timetable for Class %s", class.ClassID), "", 1, "L", false, 0, "")
		pdf.Ln(3)

		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(128, 128, 128)
		pdf.SetTextColor(245, 245, 245)
		drawRow(pdf, widths, append([]string{dayHeader}, view.Slots...), true)

		pdf.SetFont("Arial", "", 8)
		pdf.SetFillColor(245, 245, 220)
		pdf.SetTextColor(0, 0, 0)
		for _, row := range class.Rows {
			texts := make([]string, 0, len(row.Cells)+1)
			texts = append(texts, row.Day)
			for _, cell := range row.Cells {
				texts = append(texts, cell.Label)
			}
			drawRow(pdf, widths, texts, true)
		}
	}

	if len(view.Unplaced) > 0 {
		pdf.AddPage()
		if err := writeTable(pdf, unplacedDataset(view), "Unplaced sessions", usable); err != nil {
			return nil, err
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(pdf *gofpdf.Fpdf, data Dataset, title string, width float64) error {
	if len(data.Headers) == 0 {
		return fmt.Errorf("pdf requires at least one header")
	}
	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	widths := make([]float64, len(data.Headers))
	for i := range widths {
		widths[i] = width / float64(len(data.Headers))
	}
	pdf.SetFont("Arial", "B", 10)
	drawRow(pdf, widths, data.Headers, false)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		values := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			values[i] = row[header]
		}
		drawRow(pdf, widths, values, false)
	}
	return pdf.Error()
}

// drawRow renders bordered cells whose text wraps, all sized to the tallest cell.
func drawRow(pdf *gofpdf.Fpdf, widths []float64, texts []string, fill bool) {
	lines := 1
	for i, text := range texts {
		if n := len(pdf.SplitLines([]byte(text), widths[i]-2)); n > lines {
			lines = n
		}
	}
	height := float64(lines)*pdfLineHeight + 2

	_, pageHeight := pdf.GetPageSize()
	if pdf.GetY()+height > pageHeight-pdfBottom {
		pdf.AddPage()
	}

	style := "D"
	if fill {
		style = "FD"
	}
	x, y := pdf.GetXY()
	for i, text := range texts {
		pdf.Rect(x, y, widths[i], height, style)
		pdf.SetXY(x+1, y+1)
		pdf.MultiCell(widths[i]-2, pdfLineHeight, text, "", "C", false)
		x += widths[i]
	}
	pdf.SetXY(pdfMargin, y+height)
}
