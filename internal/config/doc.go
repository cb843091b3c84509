// Package config provides centralized configuration management.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. A YAML configuration file
//	3. Default values (lowest priority)
//
// A .env file in the working directory is read into the process environment
// before the environment is consulted; variables already set win over it.
//
// # Environment Variables
//
// All environment variables follow the pattern OPINE_<SECTION>_<FIELD>:
//
//	OPINE_SERVER_PORT=8080
//	OPINE_LOGGING_LEVEL=debug
//	OPINE_REPORT_INPUT_PATH=data/survey.xlsx
//	OPINE_REPORT_SKIP_DATES=2025-10-19
//	OPINE_REPORT_MISSING_WEIGHTS=raw
//
// OPINE_CONFIG points at the YAML file; without it config.yaml and
// configs/config.yaml are tried.
package config
