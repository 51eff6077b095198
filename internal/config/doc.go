// Package config handles configuration loading for chatflow.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHATFLOW_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/chatflow/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	bots:
//	  - token: "${CHATFLOW_WEATHER_TOKEN}"
//	    feature: "weather"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	polling:
//	  timeout: "30s"
//	  backoff: "2s"
//	dispatch:
//	  dedupe_ttl: "10m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Database and platform endpoint:
//
//	database:
//	  path: "./chatflow.db"
//	platform:
//	  base_url: "https://api.example.org"
//
// Event handling:
//
//	dispatch:
//	  workers: 8
//	  queue_size: 256
//
// Bot bindings map each token to one of the features weather, directions,
// files, or relay. Weather and directions bots additionally need their
// provider endpoints under the providers section. The alerts section lists
// "HH:MM" wall-clock times for the scheduled weather pushes; leaving it
// empty disables the job.
package config
