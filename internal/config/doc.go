// Package config handles configuration loading for runi-mcp.
//
// # Configuration File
//
// The default location is $XDG_CONFIG_HOME/runi/mcp.yaml. A missing file
// means every setting takes its default. Files ending in .toml are read as
// TOML; anything else is YAML.
//
// # Environment Variables
//
// Values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${RUNI_JWT_SECRET}"
//
// RUNI_COLLECTIONS_DIR overrides collections.dir after the file is read.
//
// # Durations
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  shutdown_timeout: "10s"
//	streams:
//	  cleanup_interval: "1m"
//
// # Example
//
//	server:
//	  http_addr: "127.0.0.1:7331"
//	collections:
//	  dir: "~/runi/collections"
//	journal:
//	  enabled: true
//	  path: "~/.local/share/runi/journal.db"
//	auth:
//	  jwt_secret: "${RUNI_JWT_SECRET}"
//	  require_auth: false
//	rate_limit:
//	  requests_per_second: 50
//	  burst: 20
//	logging:
//	  level: "info"
//	  format: "text"
package config
