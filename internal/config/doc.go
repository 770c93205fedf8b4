// Package config loads, normalizes, and validates the formlo client
// configuration from TOML with optional dotenv and environment overrides.
package config
