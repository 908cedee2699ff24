// Package config handles configuration loading for friendgraph.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by the .toml
// extension) with environment variable expansion. The package provides
// validation and sensible defaults.
//
// # Configuration File
//
// The binary looks for, in order:
//
//  1. Path from FRIENDGRAPH_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/friendgraph/config.yaml
//  3. ~/.config/friendgraph/config.yaml
//
// A .env file next to the config file is loaded first. Variables already set
// in the process environment win.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${FRIENDGRAPH_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	database:
//	  path: "/var/lib/friendgraph/friendgraph.db"
//	  driver: "sqlite"          # sqlite (pure Go) or sqlite3 (cgo)
//
//	auth:
//	  jwt_secret: "${FRIENDGRAPH_JWT_SECRET}"   # at least 32 bytes
//	  access_ttl: "5m"
//	  refresh_ttl: "24h"
//
//	limits:
//	  send_per_window: 3        # friend requests per sender
//	  send_window: "1m"
//	  auth_rps: 1               # /signup and /login, per client address
//	  auth_burst: 5
//
//	nats:
//	  url: "nats://localhost:4222"   # empty disables publishing
//	  subject_prefix: "friends.request"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// Duration values use Go's time.ParseDuration syntax.
package config
