package pipeline

import (
	"encoding/csv"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"shadeqc/internal"
)

const (
	reportSheet       = "Shade Report"
	defaultReportName = "Shade Grouping QC Report"
	reportTableRow    = 8
)

var reportHeaders = []string{
	"Date", "Roll No", "Buyer", "Supplier", "Quantity (m)", "Delta E", "Shade Group", "Verdict", "Image Name",
}

var reportWidths = []float64{12, 15, 18, 22, 12, 10, 12, 10, 25}

type ReportMeta struct {
	Title       string
	Buyer       string
	Contract    string
	GeneratedAt time.Time
}

// BuildReport lays records out as a single "Shade Report" sheet: a title, a
// buyer/contract block and the roll table starting at row 8.
func BuildReport(records []internal.InspectionRecord, meta ReportMeta) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), reportSheet); err != nil {
		f.Close()
		return nil, err
	}

	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		f.Close()
		return nil, err
	}
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, Border: border})
	if err != nil {
		f.Close()
		return nil, err
	}
	cellStyle, err := f.NewStyle(&excelize.Style{Border: border})
	if err != nil {
		f.Close()
		return nil, err
	}

	title := meta.Title
	if strings.TrimSpace(title) == "" {
		title = defaultReportName
	}
	generated := meta.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	_ = f.SetCellValue(reportSheet, "A1", title)
	_ = f.SetCellStyle(reportSheet, "A1", "A1", titleStyle)
	_ = f.SetCellValue(reportSheet, "A3", "Buyer Name:")
	_ = f.SetCellValue(reportSheet, "B3", meta.Buyer)
	_ = f.SetCellValue(reportSheet, "A4", "Contract No:")
	_ = f.SetCellValue(reportSheet, "B4", meta.Contract)
	_ = f.SetCellValue(reportSheet, "A5", "Report Date:")
	_ = f.SetCellValue(reportSheet, "B5", generated.Format("02-01-2006 15:04"))

	for i, h := range reportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, reportTableRow)
		_ = f.SetCellValue(reportSheet, cell, h)
		_ = f.SetCellStyle(reportSheet, cell, cell, headerStyle)
	}

	for i, rec := range records {
		r := reportTableRow + 1 + i
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(reportSheet, cell, value)
			_ = f.SetCellStyle(reportSheet, cell, cell, cellStyle)
		}

		set(1, rec.Date)
		set(2, rec.RollNo)
		set(3, rec.Buyer)
		set(4, rec.Supplier)
		set(5, rec.Quantity)
		set(6, rec.DeltaE)
		set(7, string(rec.Shade))
		set(8, string(rec.Decision))
		set(9, imageName(rec.Image))
	}

	for i, w := range reportWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(reportSheet, col, col, w)
	}
	return f, nil
}

func ExportRecordsToXLSX(records []internal.InspectionRecord, meta ReportMeta, outputPath string) error {
	f, err := BuildReport(records, meta)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func WriteReportXLSX(w io.Writer, records []internal.InspectionRecord, meta ReportMeta) error {
	f, err := BuildReport(records, meta)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// WriteRecordsCSV writes records under the canonical headers. Reading the
// output back through the CSV adapter and the Normalizer reproduces them.
func WriteRecordsCSV(w io.Writer, records []internal.InspectionRecord) error {
	cw := csv.NewWriter(w)
	fields := Fields()
	header := make([]string, 0, len(fields))
	for _, f := range fields {
		header = append(header, f.Label())
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		raw := RecordRawRow(rec)
		line := make([]string, 0, len(fields))
		for _, f := range fields {
			line = append(line, raw[f.Label()])
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func imageName(image *string) string {
	if image == nil {
		return ""
	}
	return path.Base(strings.ReplaceAll(*image, `\`, "/"))
}
