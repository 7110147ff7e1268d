package config

import (
	"github.com/Juancams/behaviorfleets/bus/redisbus"
	"github.com/Juancams/behaviorfleets/fleet"
)

// DefaultConfig returns the configuration a fleet process starts from
// before any file or environment override.
func DefaultConfig() *Config {
	return &Config{
		Agent:    fleet.DefaultExecutorConfig(),
		Delegate: fleet.DefaultProxyConfig(),
		Bus:      DefaultBusConfig(),
		Log:      DefaultLogConfig(),
		Metrics:  DefaultMetricsConfig(),
	}
}

// DefaultBusConfig returns the default transport configuration. The
// in-process transport is the default so a single binary can host a
// whole fleet without external infrastructure.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		Kind:        "inproc",
		MailboxSize: 64,
		Redis:       redisbus.DefaultConfig(),
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Namespace: "behaviorfleets",
	}
}
