package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/sheetmerge/internal/infra/retry"
	"github.com/vietddude/sheetmerge/internal/ingest"
	"github.com/vietddude/sheetmerge/internal/ingest/normalize"
)

const (
	DefaultOutputWorksheet = "Combined_Cleaned_Newsletters_Email_List"
	DefaultBaseURL         = "https://sheets.googleapis.com/v4"
	DefaultLogFile         = "sheets_cleaner.log"
)

// Load reads configuration from a YAML file. A missing file yields the
// defaults so that a run can be configured from the environment alone.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		data = nil
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Source.SpreadsheetID == "" {
		cfg.Source.SpreadsheetID = os.Getenv("SPREADSHEET_ID")
	}
	if cfg.Source.AccessToken == "" {
		cfg.Source.AccessToken = os.Getenv("SHEETS_ACCESS_TOKEN")
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = DefaultBaseURL
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = 30 * time.Second
	}
	if c.Source.RequestsPerMinute == 0 {
		c.Source.RequestsPerMinute = 60
	}

	if c.Columns.Name == "" {
		c.Columns.Name = normalize.DefaultConfig.NameColumn
	}
	if c.Columns.Email == "" {
		c.Columns.Email = normalize.DefaultConfig.EmailColumn
	}
	if c.Columns.Status == "" {
		c.Columns.Status = normalize.DefaultConfig.StatusColumn
	}
	if c.Filters.StatusToken == "" {
		c.Filters.StatusToken = normalize.DefaultConfig.StatusToken
	}
	if c.Filters.ExcludeSubstring == "" {
		c.Filters.ExcludeSubstring = normalize.DefaultConfig.ExcludeSubstring
	}

	if c.Output.Worksheet == "" {
		c.Output.Worksheet = DefaultOutputWorksheet
	}
	if c.Output.WriteDelay == 0 {
		c.Output.WriteDelay = 2 * time.Second
	}

	call := &c.Retry.Call
	if call.MaxAttempts == 0 {
		call.MaxAttempts = retry.DefaultConfig.MaxAttempts
	}
	if call.InitialDelay == 0 {
		call.InitialDelay = retry.DefaultConfig.InitialDelay
	}
	if call.MaxDelay == 0 {
		call.MaxDelay = retry.DefaultConfig.MaxDelay
	}
	if call.BackoffMultiple == 0 {
		call.BackoffMultiple = retry.DefaultConfig.BackoffMultiple
	}

	rounds := &c.Retry.Rounds
	if rounds.MaxRounds == 0 {
		rounds.MaxRounds = ingest.DefaultConfig.MaxRounds
	}
	if rounds.RoundDelay == 0 {
		rounds.RoundDelay = ingest.DefaultConfig.RoundDelay
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = DefaultLogFile
	}
}

// Validate checks settings that have no usable default.
func (c *AppConfig) Validate(requireSpreadsheet bool) error {
	if requireSpreadsheet && c.Source.SpreadsheetID == "" {
		return errors.New("source.spreadsheet_id is required")
	}
	if c.Columns.Name == c.Columns.Email {
		return fmt.Errorf("name and email columns must differ, both are %q", c.Columns.Name)
	}
	if c.Retry.Call.MaxAttempts < 1 {
		return fmt.Errorf("retry.call.max_attempts must be positive, got %d", c.Retry.Call.MaxAttempts)
	}
	if c.Retry.Rounds.MaxRounds < 1 {
		return fmt.Errorf("retry.rounds.max_rounds must be positive, got %d", c.Retry.Rounds.MaxRounds)
	}
	if c.Retry.Call.InitialDelay < 0 || c.Retry.Call.MaxDelay < 0 || c.Retry.Rounds.RoundDelay < 0 {
		return errors.New("retry delays must not be negative")
	}
	return nil
}
