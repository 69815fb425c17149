// Package config loads dumpfilter settings from an optional YAML file and
// reads table skip lists.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danielsiegl/dumpfilter/internal/timing"
)

// ErrNoInput is returned by Validate when no dump file was given.
var ErrNoInput = errors.New("no input file specified")

// Config holds the settings of one run. Zero values are the defaults.
type Config struct {
	// Input is the dump file to stream. It comes from the command line only.
	Input string `yaml:"-"`

	// Except lists tables whose INSERT INTO lines are dropped. Entries may
	// be comma-separated lists.
	Except []string `yaml:"except"`
	// ExceptFile names a file with one table per line.
	ExceptFile string `yaml:"except_file"`

	// Log enables per-table timing records on stderr.
	Log bool `yaml:"log"`
	// Format is the timing record format: default or csv.
	Format string `yaml:"format"`
	// Progress shows a progress bar on stderr.
	Progress bool `yaml:"progress"`
	// TimingsDB is a SQLite file timing records are also stored in.
	TimingsDB string `yaml:"timings_db"`

	// LogDir selects the JSON run log: "" discards, "stderr", or a directory.
	LogDir string `yaml:"log_dir"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{Format: timing.FormatDefault.String()}
}

// Load reads the YAML file at path on top of Default. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings that can be wrong without touching the dump.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Input) == "" {
		return ErrNoInput
	}
	if _, err := timing.ParseFormat(c.Format); err != nil {
		return err
	}
	return nil
}

// TimingFormat returns the parsed timing record format.
func (c *Config) TimingFormat() timing.Format {
	f, _ := timing.ParseFormat(c.Format)
	return f
}

// ExceptValues returns every exclusion value: the Except entries followed by
// the contents of ExceptFile, if set.
func (c *Config) ExceptValues() ([]string, error) {
	values := append([]string(nil), c.Except...)
	if c.ExceptFile == "" {
		return values, nil
	}
	listed, err := ReadSkipList(c.ExceptFile)
	if err != nil {
		return nil, err
	}
	return append(values, listed...), nil
}

// ReadSkipList reads table names, one per line. Blank lines and lines
// starting with '#' are ignored.
func ReadSkipList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open skip list: %w", err)
	}
	defer f.Close()

	var tables []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tables = append(tables, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read skip list %s: %w", path, err)
	}
	return tables, nil
}
