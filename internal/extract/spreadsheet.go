package extract

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
)

// extractSpreadsheet parses a tabular file and renders it as a Markdown
// table so the downstream model can read row/column structure as text.
func extractSpreadsheet(path string) (string, error) {
	var (
		rows [][]string
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xls":
		rows, err = readLegacyWorkbook(path)
	default:
		rows, err = readWorkbook(path)
	}
	if err != nil {
		return "", err
	}

	return renderMarkdownTable(rows), nil
}

// readCSV reads all records from a CSV file. Ragged rows are accepted.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	return rows, nil
}

// readWorkbook reads all rows of the first sheet of an xlsx file.
func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	return rows, nil
}

// readLegacyWorkbook reads all rows of the first sheet of a pre-2007
// binary workbook. Legacy xls files are OLE compound documents, not
// zip archives, so excelize cannot open them.
func readLegacyWorkbook(path string) ([][]string, error) {
	workbook, err := xls.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening legacy workbook: %w", err)
	}

	sheet, err := workbook.GetSheet(0)
	if err != nil {
		return nil, fmt.Errorf("legacy workbook has no sheets: %w", err)
	}

	var rows [][]string
	for i := 0; i < sheet.GetNumberRows(); i++ {
		r, err := sheet.GetRow(i)
		if err != nil {
			continue
		}
		var cells []string
		for _, cell := range r.GetCols() {
			cells = append(cells, cell.GetString())
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// renderMarkdownTable renders rows as a Markdown table. The first row is
// taken as the header. Ragged rows are padded to the widest row.
func renderMarkdownTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	if width == 0 {
		return ""
	}

	var b strings.Builder
	writeRow := func(row []string) {
		b.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(row) {
				cell = markdownCell(row[i])
			}
			b.WriteString(" ")
			b.WriteString(cell)
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	writeRow(rows[0])
	b.WriteString("|")
	for i := 0; i < width; i++ {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range rows[1:] {
		writeRow(row)
	}

	return b.String()
}

// markdownCell escapes characters that would break table layout.
func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
