package config

import "time"

// DefaultConfig returns a configuration that works out of the box: in-memory
// stores, no persistence, hour-scale TTLs.
func DefaultConfig() *Config {
	return &Config{
		Hub: HubConfig{
			Name:             "agenthub",
			DefaultTimeout:   30 * time.Second,
			MetricsNamespace: "agenthub",
			MetricsAddr:      ":9090",
		},
		Registry: RegistryConfig{
			DefaultTTL:    5 * time.Minute,
			SweepInterval: 30 * time.Second,
			EnableSweep:   true,
			Store:         "memory",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "agenthub:",
		},
		Database: DatabaseConfig{
			Enabled: false,
			Driver:  "sqlite",
			Name:    "agenthub.db",
			SSLMode: "disable",
		},
		Workflow: WorkflowConfig{
			StepTimeout: 30 * time.Second,
		},
		Monitor: MonitorConfig{
			SampleCapacity:  1000,
			AlertsPerMinute: 6,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
	}
}
