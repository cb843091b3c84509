// Package validation holds the checks shared by the HTTP layer, the report
// plan loader and the command line tools: a go-playground validator with
// the survey rules registered, and file checks for workbooks, plans and
// output directories.
package validation
