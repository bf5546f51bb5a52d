// CLAUDE:SUMMARY Configuration struct and YAML loader for the dimap service.
package dimap

import (
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all dimap service configuration.
type Config struct {
	// MaxFileSize caps the size of any input file (mapping, workbook, TOML).
	MaxFileSize int64 `yaml:"max_file_size"`

	// SkipHeader drops the first row of mapping CSVs.
	SkipHeader bool `yaml:"skip_header"`

	// ExcludeCalculated drops calculated fields from dimension extraction.
	ExcludeCalculated bool `yaml:"exclude_calculated"`

	// ReorderNameFields enables the "name <X>" suggestion convention.
	ReorderNameFields bool `yaml:"reorder_name_fields"`

	// Strict makes mapping originals with no matching workbook field fatal.
	Strict bool `yaml:"strict"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
