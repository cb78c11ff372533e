package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "orgchart.yml"

// Traversal modes.
const (
	ModeWalk    = "walk"
	ModeClosure = "closure"
)

// Config models orgchart.yml.
type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		BasePath        string        `yaml:"base_path"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Traversal struct {
		Mode string `yaml:"mode"`
	} `yaml:"traversal"`
	Lookup struct {
		StrictNames bool `yaml:"strict_names"`
	} `yaml:"lookup"`
	Tasks struct {
		EnforceTransitions bool `yaml:"enforce_transitions"`
	} `yaml:"tasks"`
	Cache CacheConfig `yaml:"cache"`
	Seed  SeedConfig  `yaml:"seed"`
	Log   struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
	Prefix    string        `yaml:"prefix"`
}

type SeedConfig struct {
	Authors  int    `yaml:"authors"`
	Tasks    int    `yaml:"tasks"`
	Posts    int    `yaml:"posts"`
	Comments int    `yaml:"comments"`
	Seed     uint64 `yaml:"seed"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with '/'")
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("config.server.shutdown_timeout must not be negative")
	}
	switch c.Traversal.Mode {
	case ModeWalk, ModeClosure:
	default:
		return fmt.Errorf("config.traversal.mode must be %q or %q, got %q", ModeWalk, ModeClosure, c.Traversal.Mode)
	}
	if c.Cache.Enabled {
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("config.cache.redis_addr is required when the cache is enabled")
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("config.cache.ttl must be positive")
		}
		if c.Cache.Prefix == "" {
			return fmt.Errorf("config.cache.prefix is required when the cache is enabled")
		}
	}
	if c.Seed.Authors < 1 {
		return fmt.Errorf("config.seed.authors must be at least 1")
	}
	if c.Seed.Tasks < 0 || c.Seed.Posts < 0 || c.Seed.Comments < 0 {
		return fmt.Errorf("config.seed counts must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config.log.level %q is not a known level", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Load reads the workspace config, falling back to defaults when the file is absent.
func Load(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to YAML.
func (c *Config) YAML() (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0
  cors_origins: ["*"]
  shutdown_timeout: 5s

traversal:
  # walk: one bulk read of all authors, breadth-first search in memory.
  # closure: recursive SQL query bounded by end_level.
  mode: walk

lookup:
  # Reject display names shared by several authors instead of picking the lowest id.
  strict_names: false

tasks:
  enforce_transitions: false

cache:
  enabled: false
  redis_addr: 127.0.0.1:6379
  ttl: 30s
  prefix: orgchart

seed:
  authors: 100
  tasks: 100
  posts: 100
  comments: 1000
  seed: 1

log:
  level: info
  format: text
`
