package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/prload/internal/performance/executor"
	"github.com/wesleyorama2/prload/internal/scenario"
)

// Load reads a run configuration from a file.
//
// The file format is determined by extension:
//   - .json -> JSON
//   - anything else -> YAML
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data, path)
}

// Parse parses configuration data on top of the defaults, so a field the
// file sets explicitly (including a zero pause) wins. Unknown fields are
// rejected.
func Parse(data []byte, path string) (*RunConfig, error) {
	var cfg RunConfig
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config, failed to apply defaults: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
		return &cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return &cfg, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	var rest string
	if n, _ := fmt.Sscanf(s, "%d%s", &seconds, &rest); n == 1 {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// Overrides holds values set explicitly on the command line. Nil fields are
// left alone.
type Overrides struct {
	BaseURL     *string
	Stages      []StageConfig
	Pause       *time.Duration
	HTTPTimeout *time.Duration
}

// ApplyEnv applies environment overrides. lookup is usually os.LookupEnv.
func (c *RunConfig) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		return
	}
	if v, ok := lookup(scenario.BaseURLEnv); ok && strings.TrimSpace(v) != "" {
		c.BaseURL = strings.TrimSpace(v)
	}
}

// ApplyOverrides applies command-line overrides.
func (c *RunConfig) ApplyOverrides(o Overrides) {
	if o.BaseURL != nil {
		c.BaseURL = *o.BaseURL
	}
	if len(o.Stages) > 0 {
		c.Executor = string(executor.TypeRampingVUs)
		c.Stages = o.Stages
	}
	if o.Pause != nil {
		c.Pause = Duration(*o.Pause)
	}
	if o.HTTPTimeout != nil {
		c.HTTP.Timeout = Duration(*o.HTTPTimeout)
	}
}

// Resolve builds the effective configuration. Later sources win:
// defaults, then the file at path (if any), then the environment, then
// the command-line overrides. The result is validated.
func Resolve(path string, lookup func(string) (string, bool), o Overrides) (*RunConfig, error) {
	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cfg.ApplyEnv(lookup)
	cfg.ApplyOverrides(o)
	cfg.fillStages()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the reference configuration.
func Default() *RunConfig {
	cfg := &RunConfig{}
	defaults.MustSet(cfg)
	cfg.fillStages()
	return cfg
}
