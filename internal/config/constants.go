package config

// Application constants
const (
	// Application Info
	AppName    = "opine"
	AppVersion = "1.0.0"

	// EnvPrefix namespaces every environment variable, e.g. OPINE_SERVER_PORT
	EnvPrefix = "OPINE"

	// DotEnvFile is loaded into the environment at startup when present
	DotEnvFile = ".env"

	// DateLayout is the format of every configured date
	DateLayout = "2006-01-02"

	// Missing weight policies
	MissingWeightsStrict = "strict"
	MissingWeightsRaw    = "raw"

	// Server
	DefaultPort      = 8080
	DefaultRateLimit = 50 // requests per second
	DefaultBurstSize = 100

	// Report generation
	DefaultOutputDir = "reports"
	DefaultWorkers   = 4
	AuditFileName    = "calculation_audit.txt"
	WorkbookFileName = "voteshare_report.xlsx"

	// Log Settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	DefaultLogFile   = "logs/opine.log"

	// API Endpoints
	APIBasePath     = "/api/v1"
	HealthEndpoint  = "/healthz"
	MetricsEndpoint = "/metrics"
)
