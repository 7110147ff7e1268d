// Package config loads fleet configuration from defaults, a YAML file
// and environment variable overrides, in that order of precedence.
package config
