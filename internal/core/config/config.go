package config

import (
	"time"

	"github.com/vietddude/sheetmerge/internal/infra/archive"
	redisclient "github.com/vietddude/sheetmerge/internal/infra/redis"
	"github.com/vietddude/sheetmerge/internal/infra/retry"
	"github.com/vietddude/sheetmerge/internal/infra/sheets"
	"github.com/vietddude/sheetmerge/internal/infra/storage/postgres"
	"github.com/vietddude/sheetmerge/internal/ingest"
	"github.com/vietddude/sheetmerge/internal/ingest/normalize"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Source   sheets.Config      `yaml:"source"`
	Columns  ColumnsConfig      `yaml:"columns"`
	Filters  FiltersConfig      `yaml:"filters"`
	Output   OutputConfig       `yaml:"output"`
	Retry    RetryConfig        `yaml:"retry"`
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Archive  archive.Config     `yaml:"archive"`
}

// ColumnsConfig names the header cells read from every worksheet.
type ColumnsConfig struct {
	Name   string `yaml:"name"`
	Email  string `yaml:"email"`
	Status string `yaml:"status"`
}

// FiltersConfig holds the row filters.
type FiltersConfig struct {
	StatusToken      string `yaml:"status_token"`
	ExcludeSubstring string `yaml:"exclude_substring"`
}

// OutputConfig describes the destination worksheet.
type OutputConfig struct {
	Worksheet  string        `yaml:"worksheet"`
	WriteDelay time.Duration `yaml:"write_delay"`
}

// RetryConfig holds both retry levels: per API call and per worksheet round.
type RetryConfig struct {
	Call   retry.Config  `yaml:"call"`
	Rounds ingest.Config `yaml:"rounds"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // 0 disables the health/metrics server
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // JSON copy of the log stream, "-" to disable
}

// Normalize returns the cleaning settings.
func (c *AppConfig) Normalize() normalize.Config {
	return normalize.Config{
		NameColumn:       c.Columns.Name,
		EmailColumn:      c.Columns.Email,
		StatusColumn:     c.Columns.Status,
		StatusToken:      c.Filters.StatusToken,
		ExcludeSubstring: c.Filters.ExcludeSubstring,
	}
}
