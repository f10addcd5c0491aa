package logger

import (
	"io"

	"github.com/caarlos0/env/v11"
)

// EnvConfig holds extended logger configuration loaded from environment variables.
type EnvConfig struct {
	// Basic configuration
	Level       string    `env:"LOG_LEVEL" envDefault:"info"`         // Log level: debug, info, warn, error
	Format      string    `env:"LOG_FORMAT" envDefault:"json"`        // Output format: json, text
	ServiceName string    `env:"SERVICE_NAME" envDefault:"examforge"` // Service name for log tagging
	Output      io.Writer // Output destination (highest priority), never read from the environment

	// Environment configuration
	Environment string `env:"APP_ENV" envDefault:"local"` // Environment: local, dev, prod

	// File output configuration
	LogFile     string `env:"LOG_FILE" envDefault:"/var/log/examforge/app.log"`
	LogFileOnly bool   `env:"LOG_FILE_ONLY" envDefault:"false"`

	// Log rotation configuration
	MaxSize    int  `env:"LOG_MAX_SIZE" envDefault:"100"` // MB
	MaxBackups int  `env:"LOG_MAX_BACKUPS" envDefault:"7"`
	MaxAge     int  `env:"LOG_MAX_AGE" envDefault:"30"` // days
	Compress   bool `env:"LOG_COMPRESS" envDefault:"true"`
}

// LoadFromEnv loads configuration from environment variables.
// Malformed values fall back to the defaults.
func LoadFromEnv() *EnvConfig {
	cfg, err := env.ParseAs[EnvConfig]()
	if err != nil {
		defaults := EnvConfig{}
		_ = env.ParseWithOptions(&defaults, env.Options{Environment: map[string]string{}})
		return &defaults
	}
	return &cfg
}

// ToConfig converts EnvConfig to the basic Config struct.
func (e *EnvConfig) ToConfig() *Config {
	return &Config{
		Level:       e.Level,
		Format:      e.Format,
		Output:      e.Output,
		ServiceName: e.ServiceName,
	}
}
