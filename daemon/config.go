// Package daemon runs a long-lived name watcher: it connects to the
// bus, watches a configured set of names, journals every firing, and
// serves the journal over HTTP.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	projectConfigName = "namewatch.yaml"
	homeConfigName    = "config.yaml"

	defaultListen = "127.0.0.1:8484"
)

// Config is the declarative daemon configuration.
type Config struct {
	// Bus is "system", "session", or a raw bus address. Default "system".
	Bus string `yaml:"bus,omitempty"`

	// Names are the bus names to watch.
	Names []string `yaml:"names"`

	// Listen is the HTTP listen address. Default "127.0.0.1:8484".
	Listen string `yaml:"listen,omitempty"`

	// Journal configures firing persistence.
	Journal JournalConfig `yaml:"journal,omitempty"`

	// Tracing configures OTLP trace export.
	Tracing TracingConfig `yaml:"tracing,omitempty"`
}

// JournalConfig configures firing persistence and retention.
type JournalConfig struct {
	// DSN is the SQLite database path or DSN. Empty means an
	// in-memory journal that does not survive restarts.
	DSN string `yaml:"dsn,omitempty"`

	// Retention is how long firing records are kept. Zero disables
	// pruning.
	Retention time.Duration `yaml:"retention,omitempty"`

	// PruneSchedule is a UTC cron expression for pruning runs.
	// Default "0 * * * *" (hourly) when retention is set.
	PruneSchedule string `yaml:"prune_schedule,omitempty"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint (host:port).
	// Empty disables export.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure disables TLS on the exporter connection.
	Insecure bool `yaml:"insecure,omitempty"`
}

// DiscoverConfigPath resolves the config location with first-match
// semantics: the explicit path if given, then ./namewatch.yaml, then
// ~/.namewatch/config.yaml.
func DiscoverConfigPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverConfigPathFrom(explicitPath, cwd, homeDir)
}

// DiscoverConfigPathFrom is a testable variant of DiscoverConfigPath.
func DiscoverConfigPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		candidates = append(candidates, filepath.Join(homeDir, ".namewatch", homeConfigName))
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			// If explicit path is set, not found is an error.
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// LoadConfig reads, expands, and validates a config file.
func LoadConfig(path string) (Config, error) {
	// #nosec G304 -- path resolved from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates raw config bytes. Environment
// references ($VAR, ${VAR}) are expanded before parsing.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bus == "" {
		c.Bus = "system"
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Journal.Retention > 0 && c.Journal.PruneSchedule == "" {
		c.Journal.PruneSchedule = "0 * * * *"
	}
}

// Validate checks the configuration for mistakes that would only
// surface at runtime.
func (c *Config) Validate() error {
	if len(c.Names) == 0 {
		return errors.New("daemon: at least one name to watch is required")
	}
	seen := make(map[string]struct{}, len(c.Names))
	for _, name := range c.Names {
		if strings.TrimSpace(name) == "" {
			return errors.New("daemon: empty name in names list")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("daemon: duplicate name %q in names list", name)
		}
		seen[name] = struct{}{}
	}
	if c.Journal.Retention < 0 {
		return errors.New("daemon: journal retention must not be negative")
	}
	if c.Journal.PruneSchedule != "" {
		if _, err := parseCronExpressionUTC(c.Journal.PruneSchedule); err != nil {
			return fmt.Errorf("daemon: prune schedule: %w", err)
		}
	}
	return nil
}
