package config

import "fmt"

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	// Level is one of debug, info, warn, error
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "console" or "json"
	// Default: "console"
	Format string `yaml:"format"`

	// Output is "stderr" or "stdout"
	// Default: "stderr"
	Output string `yaml:"output"`
}

// DefaultLoggerConfig returns the default logger configuration
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// Validate checks if the logger configuration has valid values
func (c LoggerConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error (got %q)", c.Level)
	}
	if c.Format != "console" && c.Format != "json" {
		return fmt.Errorf("log.format must be 'console' or 'json' (got %q)", c.Format)
	}
	if c.Output != "stderr" && c.Output != "stdout" {
		return fmt.Errorf("log.output must be 'stderr' or 'stdout' (got %q)", c.Output)
	}
	return nil
}

func (c *LoggerConfig) applyEnv() {
	envString("PULSE_LOG_LEVEL", &c.Level)
	envString("PULSE_LOG_FORMAT", &c.Format)
	envString("PULSE_LOG_OUTPUT", &c.Output)
}

// IsProduction reports whether the logger should use the production preset.
func (c LoggerConfig) IsProduction() bool {
	return c.Format == "json" && c.Level != "debug"
}
