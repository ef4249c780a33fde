// Package appconfig provides TOML host configuration loading for the ISI
// core process.
//
// The configuration file supports the following structure:
//
//	listen_addr = "127.0.0.1:8090"
//	data_root = "data"
//	gpu_backend = "auto"
//	log_level = "info"
//
// Host configuration is operator-edited only and is distinct from the
// scientific parameter store: nothing here affects stimulus pixels or
// analysis output, so it never participates in the generation fingerprint.
//
// Example usage:
//
//	cfg, err := appconfig.Load("config/isi.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("data root: %s\n", cfg.DataRoot)
package appconfig

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the host configuration for the ISI core process.
type Config struct {
	// ListenAddr is the local address the debug report server binds to
	// (default: "127.0.0.1:8090"). Loopback only; the core is not a
	// network service.
	ListenAddr string `toml:"listen_addr"`
	// DataRoot is the directory under which sessions/ and
	// stimulus_library/ live (default: "data").
	DataRoot string `toml:"data_root"`
	// GPUBackend selects the stimulus render backend: "auto" probes for
	// a GPU and falls back to CPU, "gpu" and "cpu" force one
	// (default: "auto").
	GPUBackend string `toml:"gpu_backend"`
	// LogLevel is the diagnostic log verbosity (default: "info").
	LogLevel string `toml:"log_level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ListenAddr: "127.0.0.1:8090",
		DataRoot:   "data",
		GPUBackend: "auto",
		LogLevel:   "info",
	}
}

// Load reads configuration from the given TOML file path. A missing file
// is not an error: the defaults are returned so a fresh checkout runs
// without any setup. A present-but-malformed file is fatal to process
// start; there is nothing sensible to run with a half-read host config.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("appconfig: decoding %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("appconfig: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.GPUBackend {
	case "auto", "gpu", "cpu":
	default:
		return fmt.Errorf("gpu_backend must be one of auto, gpu, cpu (got %q)", c.GPUBackend)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
	if c.DataRoot == "" {
		return fmt.Errorf("data_root must not be empty")
	}
	return nil
}
