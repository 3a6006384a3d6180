// Package config loads runtime configuration for the gophvault CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c or -config. Files ending in
//     .yaml or .yml are parsed as YAML, anything else as JSON.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-d string   data directory
//	-s string   storage driver (sqlite or bolt)
//	-k string   host key file (default <data dir>/host.key)
//	-l string   log level
//
// # File schema
//
// Durations use timex.Duration, so values can be strings like "30s" or
// integer nanoseconds:
//
//	data_dir: /home/me/.config/gophvault
//	storage_driver: bolt
//	save_debounce: 500ms
//	auto_lock_timeout: 5m
//	max_failed_attempts: 5
//	lockout_duration: 30s
//	recovery_word_count: 24
//	log_backend: zerolog
//	log_level: debug
//
// Environment variables are not read.
package config
