package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ehrlich-b/accesslog/internal/source"
	"gopkg.in/yaml.v3"
)

// ErrNoConfig is returned when no config file is found.
var ErrNoConfig = errors.New("no accesslog config file found")

// Config is the parsed accesslog configuration.
type Config struct {
	// Addr is the HTTP listen address. Default: :5000.
	Addr string `yaml:"addr" toml:"addr" json:"addr"`

	// Source is the log location: a file path, "-" for stdin, or
	// s3://bucket/key. Default: log.txt.
	Source string `yaml:"source" toml:"source" json:"source"`

	// BatchSize is the number of records per insert transaction. Default: 1000.
	BatchSize int `yaml:"batch_size" toml:"batch_size" json:"batch_size"`

	Database Database        `yaml:"database" toml:"database" json:"database"`
	S3       source.S3Config `yaml:"s3" toml:"s3" json:"s3"`
}

// Database selects the store backend.
type Database struct {
	// Driver is "sqlite" or "postgres". Default: sqlite.
	Driver string `yaml:"driver" toml:"driver" json:"driver"`

	// DSN is a file path (sqlite) or connection URL (postgres).
	DSN string `yaml:"dsn" toml:"dsn" json:"dsn"`

	// Retries and Delay control the wait for the database at startup.
	Retries int      `yaml:"retries" toml:"retries" json:"retries"`
	Delay   Duration `yaml:"delay" toml:"delay" json:"delay"`
}

// Duration wraps time.Duration for custom parsing.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(dur)
	return nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

var candidates = []struct {
	name   string
	parser func([]byte, *Config) error
}{
	{"accesslog.yaml", parseYAML},
	{"accesslog.yml", parseYAML},
	{"accesslog.toml", parseTOML},
	{"accesslog.json", parseJSON},
}

// Find looks for an accesslog config file in dir and loads the first one found.
func Find(dir string) (*Config, string, error) {
	for _, c := range candidates {
		path := filepath.Join(dir, c.name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue // File doesn't exist, try next
		}
		cfg, err := decode(data, c.parser)
		if err != nil {
			return nil, c.name, fmt.Errorf("%s: %w", c.name, err)
		}
		return cfg, c.name, nil
	}

	return nil, "", ErrNoConfig
}

// Load parses the config file at path, choosing the format by extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var parse func([]byte, *Config) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parse = parseYAML
	case ".toml":
		parse = parseTOML
	case ".json":
		parse = parseJSON
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}

	cfg, err := decode(data, parse)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

func decode(data []byte, parse func([]byte, *Config) error) (*Config, error) {
	var cfg Config
	if err := parse(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	return &cfg, nil
}

func parseYAML(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Strict: error on unknown fields
	return decoder.Decode(cfg)
}

func parseTOML(data []byte, cfg *Config) error {
	_, err := toml.Decode(string(data), cfg)
	return err
}

func parseJSON(data []byte, cfg *Config) error {
	return json.Unmarshal(data, cfg)
}

// Validate checks the config for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver %q: must be sqlite or postgres", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return errors.New("database.dsn is required for postgres")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch_size %d: must not be negative", c.BatchSize)
	}
	if c.Database.Retries < 0 {
		return fmt.Errorf("database.retries %d: must not be negative", c.Database.Retries)
	}
	if strings.HasPrefix(c.Source, "s3://") {
		if _, _, err := source.ParseS3URI(c.Source); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":5000"
	}
	if c.Source == "" {
		c.Source = "log.txt"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 1000
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "accesslog.db"
	}
	if c.Database.Retries == 0 {
		c.Database.Retries = 30
	}
	if c.Database.Delay == 0 {
		c.Database.Delay = Duration(2 * time.Second)
	}
}

// ApplyEnv overrides fields from ACCESSLOG_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("ACCESSLOG_ADDR"); v != "" {
		c.Addr = v
	}
	if v := getenv("ACCESSLOG_SOURCE"); v != "" {
		c.Source = v
	}
	if v := getenv("ACCESSLOG_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := getenv("ACCESSLOG_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := getenv("ACCESSLOG_S3_ENDPOINT"); v != "" {
		c.S3.Endpoint = v
	}
	if v := getenv("ACCESSLOG_S3_ACCESS_KEY_ID"); v != "" {
		c.S3.AccessKeyID = v
	}
	if v := getenv("ACCESSLOG_S3_SECRET_ACCESS_KEY"); v != "" {
		c.S3.SecretAccessKey = v
	}
}
