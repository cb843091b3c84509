package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	indexSheet    = "Index"
	maxSheetName  = 31
	sheetNameBad  = `:\/?*[]`
	headerRow     = 3
	firstDataRow  = 4
	defaultColWid = 12
)

// WorkbookWriter writes tables to an XLSX workbook, one sheet per table
// behind an index sheet.
type WorkbookWriter struct {
	logger *slog.Logger
}

// NewWorkbookWriter creates a workbook writer
func NewWorkbookWriter(logger *slog.Logger) *WorkbookWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkbookWriter{logger: logger.With(slog.String("component", "workbook_writer"))}
}

// Build returns an in-memory workbook holding tables. The caller closes it.
func (w *WorkbookWriter) Build(title string, tables []Table) (*excelize.File, error) {
	f := excelize.NewFile()

	styles, err := newWorkbookStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	if err := f.SetSheetName(f.GetSheetName(0), indexSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename index sheet: %w", err)
	}
	if err := f.SetCellValue(indexSheet, "A1", title); err != nil {
		f.Close()
		return nil, err
	}
	f.SetCellStyle(indexSheet, "A1", "A1", styles.title)
	f.SetSheetRow(indexSheet, "A3", &[]interface{}{"Sheet", "Section"})
	f.SetCellStyle(indexSheet, "A3", "B3", styles.header)
	f.SetColWidth(indexSheet, "A", "A", 34)
	f.SetColWidth(indexSheet, "B", "B", 60)

	used := map[string]bool{strings.ToLower(indexSheet): true}
	for i, t := range tables {
		sheet := uniqueSheetName(t.ID, used)
		if _, err := f.NewSheet(sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", sheet, err)
		}
		if err := writeTableSheet(f, sheet, t, styles); err != nil {
			f.Close()
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}

		ref, _ := excelize.CoordinatesToCellName(1, headerRow+1+i)
		f.SetSheetRow(indexSheet, ref, &[]interface{}{sheet, t.Title})
		f.SetCellHyperLink(indexSheet, ref, fmt.Sprintf("'%s'!A1", sheet), "Location")
	}

	f.SetActiveSheet(0)
	return f, nil
}

// WriteWorkbook builds the workbook and saves it at path.
func (w *WorkbookWriter) WriteWorkbook(path, title string, tables []Table) error {
	f, err := w.Build(title, tables)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}

	w.logger.Info("Workbook written",
		slog.String("path", path),
		slog.Int("sheets", len(tables)+1))
	return nil
}

type workbookStyles struct {
	title, header, percent, note int
}

func newWorkbookStyles(f *excelize.File) (workbookStyles, error) {
	var s workbookStyles
	var err error
	if s.title, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}); err != nil {
		return s, fmt.Errorf("title style: %w", err)
	}
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1F4E78"}},
		Alignment: &excelize.Alignment{Horizontal: "center", WrapText: true},
	}); err != nil {
		return s, fmt.Errorf("header style: %w", err)
	}
	numFmt := "0.0"
	if s.percent, err = f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt}); err != nil {
		return s, fmt.Errorf("percent style: %w", err)
	}
	if s.note, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Italic: true, Color: "595959"}}); err != nil {
		return s, fmt.Errorf("note style: %w", err)
	}
	return s, nil
}

func writeTableSheet(f *excelize.File, sheet string, t Table, styles workbookStyles) error {
	if err := f.SetCellValue(sheet, "A1", t.Title); err != nil {
		return err
	}
	f.SetCellStyle(sheet, "A1", "A1", styles.title)

	header := make([]interface{}, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, cellName(1, headerRow), &header); err != nil {
		return err
	}
	if len(t.Headers) > 0 {
		f.SetCellStyle(sheet, cellName(1, headerRow), cellName(len(t.Headers), headerRow), styles.header)
		last, _ := excelize.ColumnNumberToName(len(t.Headers))
		f.SetColWidth(sheet, "A", last, defaultColWid)
		f.SetColWidth(sheet, "A", "A", 18)
	}

	for i, row := range t.Rows {
		r := firstDataRow + i
		if err := f.SetSheetRow(sheet, cellName(1, r), &row); err != nil {
			return err
		}
		for j, v := range row {
			if _, ok := v.(float64); ok {
				f.SetCellStyle(sheet, cellName(j+1, r), cellName(j+1, r), styles.percent)
			}
		}
	}

	noteRow := firstDataRow + len(t.Rows) + 1
	for i, note := range t.Notes {
		ref := cellName(1, noteRow+i)
		if err := f.SetCellValue(sheet, ref, note); err != nil {
			return err
		}
		f.SetCellStyle(sheet, ref, ref, styles.note)
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      headerRow,
		TopLeftCell: cellName(1, firstDataRow),
		ActivePane:  "bottomLeft",
	})
}

// uniqueSheetName sanitises id into a valid sheet name not yet in used.
// Sheet names compare case-insensitively.
func uniqueSheetName(id string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(sheetNameBad, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(id))
	name = strings.Trim(name, "'")
	if name == "" {
		name = "Section"
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}

	candidate := name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf("_%d", n)
		base := name
		if len(base)+len(suffix) > maxSheetName {
			base = base[:maxSheetName-len(suffix)]
		}
		candidate = base + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func cellName(col, row int) string {
	ref, _ := excelize.CoordinatesToCellName(col, row)
	return ref
}
