package config

// ObservabilityConfig groups configuration that controls metrics.
type ObservabilityConfig struct {
	Metrics ObservabilityMetricsConfig
}

// ObservabilityMetricsConfig controls the Prometheus endpoint.
type ObservabilityMetricsConfig struct {
	Enabled bool `env:"OBSERVABILITY_METRICS_ENABLED" envDefault:"true"`
}

// IsEnabled returns true when metrics collection is active.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled
}
