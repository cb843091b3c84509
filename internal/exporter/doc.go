// Package exporter writes report sections to disk.
//
// Sections are first converted to a format-neutral Table:
//
//	SharesTable:       labelled vote shares (overall, moving averages, breakdowns)
//	TrendTable:        one row per trend date
//	MatrixTable:       gains/losses and transferability matrices
//	DistributionTable: single-choice questions by answer code
//
// CSVWriter writes one UTF-8 CSV per table with a BOM so Excel opens it
// correctly. WorkbookWriter writes all tables into one XLSX workbook with
// an index sheet linking to a sheet per section.
//
// Example usage:
//
//	tables := []exporter.Table{exporter.SharesTable("overall", "Overall vote share", rows)}
//
//	csvWriter := exporter.NewCSVWriter("reports", logger)
//	paths, err := csvWriter.WriteTables(tables)
//
//	wb := exporter.NewWorkbookWriter(logger)
//	err = wb.WriteWorkbook("reports/voteshare_report.xlsx", "Vote share 2025-10-31", tables)
package exporter
