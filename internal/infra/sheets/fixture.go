package sheets

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Fixture describes a spreadsheet for the in-memory source.
type Fixture struct {
	Title      string `yaml:"title"`
	Worksheets []struct {
		Title string     `yaml:"title"`
		Rows  [][]string `yaml:"rows"`
	} `yaml:"worksheets"`
}

// LoadFixture builds a MemorySource from a YAML fixture file.
func LoadFixture(path string) (*MemorySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}

	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}

	src := NewMemorySource(fx.Title)
	for _, ws := range fx.Worksheets {
		src.AddWorksheet(ws.Title, ws.Rows)
	}
	return src, nil
}
