// Package app wires the vote share API server: configuration, logging,
// OpenTelemetry, services, middleware and routes.
//
// # Initialization Flow
//
//	1. Load configuration from defaults, an optional YAML file and OPINE_* variables
//	2. Initialize logging and OpenTelemetry
//	3. Build the calculator, dataset, report and health services
//	4. Set up middleware and routes
//	5. Load the configured survey workbook and start the HTTP server
//
// A survey that fails to load does not stop the server; readiness stays 503
// and queries answer DATASET_UNAVAILABLE until a dataset is present.
//
// # Usage
//
//	a, err := app.NewApplication()
//	if err != nil {
//	    return err
//	}
//	return a.Run()
//
// # Graceful Shutdown
//
// Run blocks until SIGINT or SIGTERM, then drains in-flight requests within
// the configured shutdown timeout and flushes telemetry. The package never
// calls os.Exit.
package app
