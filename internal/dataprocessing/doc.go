// Package dataprocessing reads survey exports into domain datasets.
//
// A survey workbook has one header row followed by one row per respondent.
// Columns are matched by their questionnaire header; weight columns are
// recognised by the "Weight - with Vote Share - AE 2021 - <Level> [<Period>]"
// pattern, so a workbook may carry any subset of the nine weight columns.
//
// # Usage
//
//	res, err := dataprocessing.ParseSurveyFile(ctx, "survey.xlsx", "")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Dataset.Len(), "respondents,", res.Skipped, "rows skipped")
//
// An empty sheet name picks the first sheet holding a survey date column.
//
// # Dates
//
// Survey dates may be Excel serials or text. Text dates are read ISO first,
// then day first (02/01/2006 is 2 January). Rows whose date cannot be read
// are skipped and counted.
package dataprocessing
