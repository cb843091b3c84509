// Package http implements the HTTP handlers of the vote share API. Handlers
// stay thin: decode and validate the request, fetch the survey snapshot,
// call the calculator or report service, render the result.
//
// # Endpoints
//
//	POST /api/v1/voteshare                    one vote share
//	POST /api/v1/voteshare/trend              a trend series
//	POST /api/v1/voteshare/breakdown          one share per dimension value
//	POST /api/v1/voteshare/transition         gains/losses or transferability matrix
//	POST /api/v1/voteshare/distribution       single-choice answer distribution
//	GET  /api/v1/voteshare/dimensions/{dim}   values a dimension takes
//	GET  /api/v1/reports/plan                 the default report plan
//	POST /api/v1/reports                      run a plan (default when the body is empty)
//	GET  /api/v1/dataset                      loaded survey description
//
// A query body looks like:
//
//	{
//	    "reference_date": "2025-10-31",
//	    "level": "District",
//	    "window": {"kind": "dma", "days": 7},
//	    "filter": {"gender": "female", "age_band": "18-25"}
//	}
//
// # Error Handling
//
// Errors are rendered as RFC 7807 problem details by the shared
// ErrorHandler. Request validation failures are 400; a computation that
// needs a column the survey lacks is 422; no loaded dataset is 503.
//
// # Testing
//
// Handlers are tested with httptest against an in-memory dataset; the
// dataset provider is mocked with testify/mock where failures matter.
package http
