// Package config loads reefsync settings from YAML.
//
// A file is first checked against an embedded CUE schema, then decoded
// strictly over the defaults.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/reefsync/internal/redisstore"
)

//go:embed schema.cue
var schemaSource string

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config is the full settings tree.
type Config struct {
	Store     StoreConfig     `yaml:"store" json:"store"`
	Flush     FlushConfig     `yaml:"flush" json:"flush"`
	Monitor   MonitorConfig   `yaml:"monitor" json:"monitor"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

// StoreConfig selects and addresses the queue backend.
type StoreConfig struct {
	Driver string      `yaml:"driver" json:"driver"`
	Path   string      `yaml:"path" json:"path"`
	Redis  RedisConfig `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	Key      string `yaml:"key" json:"key"`
}

// FlushConfig tunes replay. BaseURL resolves relative queued URLs.
type FlushConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	LeaseTTL       time.Duration `yaml:"lease_ttl" json:"lease_ttl"`
	Holder         string        `yaml:"holder" json:"holder"`
}

// MonitorConfig drives the HTTP connectivity probe.
type MonitorConfig struct {
	ProbeURL      string        `yaml:"probe_url" json:"probe_url"`
	ProbeInterval time.Duration `yaml:"probe_interval" json:"probe_interval"`
}

type TelemetryConfig struct {
	Stdout      bool   `yaml:"stdout" json:"stdout"`
	ServiceName string `yaml:"service_name" json:"service_name"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver: DriverSQLite,
			Path:   "reefsync.db",
			Redis: RedisConfig{
				Addr: "localhost:6379",
				Key:  redisstore.DefaultKey,
			},
		},
		Flush: FlushConfig{
			RequestTimeout: 10 * time.Second,
			LeaseTTL:       30 * time.Second,
		},
		Monitor: MonitorConfig{
			ProbeInterval: 5 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "reefsync",
		},
	}
}

// Load reads path. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates and decodes a YAML document over Default().
func Parse(data []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := validateSchema(raw); err != nil {
		return Config{}, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validateSchema unifies raw with #Config.
func validateSchema(raw map[string]any) error {
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	value := def.Unify(ctx.Encode(raw))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}

// Validate checks cross-field rules the schema cannot express.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return errors.New("store.path is required for the sqlite driver")
		}
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Flush.RequestTimeout <= 0 {
		return errors.New("flush.request_timeout must be positive")
	}
	if c.Flush.LeaseTTL <= 0 {
		return errors.New("flush.lease_ttl must be positive")
	}
	if c.Monitor.ProbeInterval <= 0 {
		return errors.New("monitor.probe_interval must be positive")
	}
	return nil
}
