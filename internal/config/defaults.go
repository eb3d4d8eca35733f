package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/envvar"
)

const (
	defaultHTTPPort   = 8080
	defaultGRPCPort   = 9090
	defaultSourceLang = "en"
	defaultTargetLang = "fr"
)

// DefaultConfigPath returns the default path for the seamless config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "seamless", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "seamless")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "seamless")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "seamless")
		}
		return filepath.Join(home, ".config", "seamless")
	}
}

// DefaultModelsPath returns the default path for the seamless models directory.
func DefaultModelsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "seamless", "models")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "seamless", "models")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "seamless", "models")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "seamless", "models")
		}
		return filepath.Join(home, ".cache", "seamless", "models")
	}
}

// DefaultHTTPPort returns the HTTP port from the environment or 8080.
func DefaultHTTPPort() int {
	return portFromEnv(envvar.SeamlessServerHTTPPort, defaultHTTPPort)
}

// DefaultGRPCPort returns the gRPC port from the environment or 9090.
func DefaultGRPCPort() int {
	return portFromEnv(envvar.SeamlessServerGRPCPort, defaultGRPCPort)
}

func portFromEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			return p
		}
	}
	return fallback
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "."
	}
	if cfg.Output.Naming == "" {
		cfg.Output.Naming = OutputNamingRequest
	}
	if cfg.Uploads.Dir == "" {
		cfg.Uploads.Dir = os.TempDir()
	}
	if cfg.Pipeline.DefaultSourceLang == "" {
		cfg.Pipeline.DefaultSourceLang = defaultSourceLang
	}
	if cfg.Pipeline.DefaultTargetLang == "" {
		cfg.Pipeline.DefaultTargetLang = defaultTargetLang
	}
	if cfg.Models == nil {
		cfg.Models = map[string]ModelConfig{}
	}
}
