// Package config handles configuration loading for coven-inbox and
// coven-inbox-server.
//
// # Configuration File
//
// Location (in order):
//
//  1. Path from COVEN_INBOX_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/inbox.yaml
//  3. ~/.config/coven/inbox.yaml
//
// Files ending in .toml are read as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Values can reference environment variables:
//
//	remote:
//	  token: "${COVEN_INBOX_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Durations
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sync:
//	  list_interval: "5s"
//	  timeline_interval: "4s"
//	  request_timeout: "10s"
//	  backoff:
//	    strategy: "exponential"   # or "constant" (default)
//	    max_interval: "1m"
//
// # Validation
//
// Load checks settings shared by both binaries. ValidateClient and
// ValidateServer check what each binary additionally requires.
package config
