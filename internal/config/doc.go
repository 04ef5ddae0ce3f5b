// Package config loads crawldeck's client configuration.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/crawldeck/config.toml (default)
//  3. If the config file doesn't exist, fall back to defaults
//  4. If the file exists but fields are missing/empty, use defaults
//
// # TOML Format
//
//	api_url = "http://localhost:8080/api"
//	page_size = 10
//	poll_interval = "5s"
//	request_timeout = "30s"
//	session_path = "~/.config/crawldeck/session.toml"
//	log_path = "~/.local/state/crawldeck/crawldeck.log"
//
// Durations use time.ParseDuration syntax and must be positive. page_size
// must be between 1 and 100.
//
// # Path Expansion
//
// Paths starting with ~ are expanded using os.UserHomeDir and made absolute.
//
// # Error Handling
//
// Missing files are not errors. Unreadable files, malformed TOML and invalid
// values are returned as errors wrapped with context ("open config",
// "read config", "parse config").
package config
