// Package config loads, validates, and defaults aria's TOML configuration.
package config
