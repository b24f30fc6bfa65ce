// Package config loads the service configuration from YAML, .env files and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MinHashConfig holds the signature and index settings. They are fixed for
// the life of a database: every stored signature carries NumPerm slots and
// Seed.
type MinHashConfig struct {
	NumPerm   int     `yaml:"num_perm" validate:"min=2,max=1024"`
	Threshold float64 `yaml:"lsh_threshold" validate:"gt=0,lt=1"`
	Seed      uint64  `yaml:"seed"`
	// Index is "lsh" or "brute".
	Index string `yaml:"index" validate:"oneof=lsh brute"`
	// Bands and Rows override the tuned LSH parameters when both are set.
	Bands             int `yaml:"bands" validate:"gte=0"`
	Rows              int `yaml:"rows" validate:"gte=0"`
	LookupParallelism int `yaml:"lookup_parallelism" validate:"gte=0"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	DBFile string `yaml:"db_file" validate:"required"`
}

// LocatorConfig describes a custom locator allow-list.
type LocatorConfig struct {
	Schemes        []string `yaml:"schemes"`
	HostSuffixes   []string `yaml:"host_suffixes"`
	HostSubstrings []string `yaml:"host_substrings"`
	PathSuffixes   []string `yaml:"path_suffixes"`
	PathSubstrings []string `yaml:"path_substrings"`
	Patterns       []string `yaml:"patterns"`
}

// ProofConfig configures the proof issuer.
type ProofConfig struct {
	// Backend is "sqlite" (shares the signature database) or "badger".
	Backend      string        `yaml:"backend" validate:"oneof=sqlite badger"`
	BadgerDir    string        `yaml:"badger_dir" validate:"required_if=Backend badger"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
	// Policy is "amazon" or "custom"; custom uses Locators.
	Policy   string        `yaml:"policy" validate:"oneof=amazon custom"`
	Locators LocatorConfig `yaml:"locators"`

	AnonymizeAddresses bool     `yaml:"anonymize_addresses"`
	AddressColumns     []string `yaml:"address_columns"`
	GMapsAPIKey        string   `yaml:"gmaps_api_key" validate:"required_if=AnonymizeAddresses true"`
	GeocodeRPS         float64  `yaml:"geocode_rps" validate:"gte=0"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the listen interface; empty listens on all of them.
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	APIKey          string        `yaml:"api_key"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins     []string      `yaml:"cors_origins" validate:"dive,url"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// Config is the root configuration.
type Config struct {
	MinHash MinHashConfig `yaml:"minhash"`
	Store   StoreConfig   `yaml:"store"`
	Proof   ProofConfig   `yaml:"proof"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MinHash: MinHashConfig{NumPerm: 128, Threshold: 0.7, Seed: 1, Index: "lsh"},
		Store:   StoreConfig{DBFile: "database/minhash.db"},
		Proof: ProofConfig{
			Backend:      "sqlite",
			FetchTimeout: 60 * time.Second,
			Policy:       "amazon",
			GeocodeRPS:   10,
		},
		Server: ServerConfig{
			Port:            8123,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads .env (when present), then the YAML file at path (when path is
// not empty), then applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadDotEnv loads the given .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// LoadWithEnv is Load with an explicit environment and no .env handling.
func LoadWithEnv(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, set func(string) error) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		if err := set(v); err != nil {
			return fmt.Errorf("config: %s=%q: %w", key, v, err)
		}
		return nil
	}

	str("DB_FILE", &cfg.Store.DBFile)
	str("API_KEY", &cfg.Server.APIKey)
	str("GMAPS_API_KEY", &cfg.Proof.GMapsAPIKey)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("MINHASH_INDEX", &cfg.MinHash.Index)
	str("PROOF_BACKEND", &cfg.Proof.Backend)
	str("HOST", &cfg.Server.Host)
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		cfg.Server.CORSOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.Server.CORSOrigins = append(cfg.Server.CORSOrigins, origin)
			}
		}
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	return errors.Join(
		num("MINHASH_NUM_PERM", func(v string) (err error) {
			cfg.MinHash.NumPerm, err = strconv.Atoi(v)
			return err
		}),
		num("MINHASH_LSH_THRESHOLD", func(v string) (err error) {
			cfg.MinHash.Threshold, err = strconv.ParseFloat(v, 64)
			return err
		}),
		num("MINHASH_SEED", func(v string) (err error) {
			cfg.MinHash.Seed, err = strconv.ParseUint(v, 10, 64)
			return err
		}),
		num("PORT", func(v string) (err error) {
			cfg.Server.Port, err = strconv.Atoi(v)
			return err
		}),
		num("FETCH_TIMEOUT", func(v string) (err error) {
			cfg.Proof.FetchTimeout, err = time.ParseDuration(v)
			return err
		}),
	)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	m := c.MinHash
	if (m.Bands == 0) != (m.Rows == 0) {
		return fmt.Errorf("config: minhash.bands and minhash.rows must be set together")
	}
	if m.Bands*m.Rows > m.NumPerm {
		return fmt.Errorf("config: minhash.bands*rows = %d exceeds num_perm %d", m.Bands*m.Rows, m.NumPerm)
	}
	return nil
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

// SlogLevel maps Level to a slog level.
func (c *LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger builds a logger writing to w in the configured format.
func (c *LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
