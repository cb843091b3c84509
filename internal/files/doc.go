// Package files locates survey exports on disk.
//
// Exports are usually dropped into one folder as the fieldwork progresses,
// so an input path may name either a workbook or that folder. In the latter
// case the most recently modified workbook is used:
//
//	d := files.NewDiscovery("")
//	path, err := d.ResolveSurveyInput("exports/")
package files
