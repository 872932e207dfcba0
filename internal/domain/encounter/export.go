package encounter

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Encounters"

const exportTimeLayout = "2006-01-02 15:04:05"

var exportColumns = []struct {
	header string
	width  float64
	value  func(s *Summary) interface{}
}{
	{"Stay ID", 12, func(s *Summary) interface{} { return s.StayID }},
	{"Subject ID", 12, func(s *Summary) interface{} { return s.SubjectID }},
	{"Hadm ID", 12, func(s *Summary) interface{} { return derefInt64(s.HadmID) }},
	{"Arrival", 20, func(s *Summary) interface{} { return s.InTime.UTC().Format(exportTimeLayout) }},
	{"Departure", 20, func(s *Summary) interface{} { return s.OutTime.UTC().Format(exportTimeLayout) }},
	{"Duration (h)", 12, func(s *Summary) interface{} { return s.DurationHours }},
	{"Gender", 8, func(s *Summary) interface{} { return s.Gender }},
	{"Race", 30, func(s *Summary) interface{} { return derefString(s.Race) }},
	{"Arrival Transport", 18, func(s *Summary) interface{} { return derefString(s.ArrivalTransport) }},
	{"Disposition", 18, func(s *Summary) interface{} { return s.Disposition }},
	{"Chief Complaint", 40, func(s *Summary) interface{} { return derefString(s.ChiefComplaint) }},
	{"Acuity", 8, func(s *Summary) interface{} { return derefInt(s.Acuity) }},
}

// WriteWorkbook renders the encounter rows as a single-sheet XLSX workbook.
func WriteWorkbook(items []*Summary, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, col := range exportColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(exportSheet, cell, col.header); err != nil {
			return nil, fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(exportSheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(exportSheet, name, name, col.width); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for r, item := range items {
		row := make([]interface{}, len(exportColumns))
		for i, col := range exportColumns {
			row[i] = col.value(item)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", r+2, err)
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "ED encounters",
		Created: generatedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, fmt.Errorf("set doc props: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportFilename names the download for a given generation time.
func ExportFilename(generatedAt time.Time) string {
	return fmt.Sprintf("encounters-%s.xlsx", generatedAt.UTC().Format("20060102-150405"))
}

// nil values become empty cells.
func derefString(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func derefInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func derefInt64(p *int64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
