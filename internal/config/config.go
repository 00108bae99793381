package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process configuration shared by the stage commands.
type Config struct {
	DataDir string `json:"data_dir"`
	DBPath  string `json:"db_path"`

	// DecompilerJar is the path to the CFR decompiler jar invoked as
	// `java -jar <DecompilerJar> <binary> --outputdir <dir>`.
	DecompilerJar string `json:"decompiler_jar"`

	// InternalPrefixes classify JAR names: a name starting with any of
	// these is internal, everything else is third-party.
	InternalPrefixes []string `json:"internal_prefixes"`

	// Workers bounds decompile concurrency across services.
	Workers int `json:"workers"`

	SSHConnectTimeout time.Duration `json:"-"`
	SSHCommandTimeout time.Duration `json:"-"`
	DecompileTimeout  time.Duration `json:"-"`

	// JSON mirrors of the timeouts, in seconds.
	SSHConnectTimeoutSec int `json:"ssh_connect_timeout_sec"`
	SSHCommandTimeoutSec int `json:"ssh_command_timeout_sec"`
	DecompileTimeoutSec  int `json:"decompile_timeout_sec"`
}

// DefaultDataDir returns the default data directory (~/.jarlens).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".jarlens")
}

// defaultInternalPrefixes is the built-in classification list; override
// with internal_prefixes in the config file.
var defaultInternalPrefixes = []string{
	"dsop", "jim", "tsm", "cmpp", "card_market", "cmft",
	"customer_service", "cloud_encryptor", "encryptor_", "sim_",
	"smart_auth", "sp_", "student_card", "tp-", "tsn_",
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		DataDir:              dataDir,
		DBPath:               filepath.Join(dataDir, "jarlens.db"),
		DecompilerJar:        filepath.Join(dataDir, "cfr.jar"),
		InternalPrefixes:     append([]string(nil), defaultInternalPrefixes...),
		Workers:              4,
		SSHConnectTimeoutSec: 10,
		SSHCommandTimeoutSec: 120,
		DecompileTimeoutSec:  300,
	}
}

// Load reads configuration from a JSON file, falling back to defaults for
// any unset fields, then applies environment overrides. A .env file in the
// working directory is honored when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // no .env file is fine

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		// No config file is fine, use defaults.
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv("JARLENS_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("JARLENS_CFR_JAR"); v != "" {
		cfg.DecompilerJar = v
	}
	if v := os.Getenv("JARLENS_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "jarlens.db")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	cfg.SSHConnectTimeout = time.Duration(cfg.SSHConnectTimeoutSec) * time.Second
	cfg.SSHCommandTimeout = time.Duration(cfg.SSHCommandTimeoutSec) * time.Second
	cfg.DecompileTimeout = time.Duration(cfg.DecompileTimeoutSec) * time.Second

	return cfg, nil
}

// EnsureDataDir creates the data directory if it does not exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// ConfigPath returns the default path to the config file.
func ConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.json")
}
