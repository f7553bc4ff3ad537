// Package config loads the roomchat configuration shared by the client commands and the server.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds client and server configuration values.
type Config struct {
	ServerURL      string        `mapstructure:"server_url" yaml:"server_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
	// LogFile receives the logs of the terminal UI, which cannot write to the terminal it draws on.
	LogFile string `mapstructure:"log_file" yaml:"log_file"`

	Server ServerConfig `mapstructure:"server" yaml:"server"`
}

// ServerConfig holds the values used by the serve command.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	Store             string        `mapstructure:"store" yaml:"store"`
	BoltPath          string        `mapstructure:"bolt_path" yaml:"bolt_path"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// RawResponder is the responder section, decoded by provider in ServerConfig.Responder.
	RawResponder map[string]any `mapstructure:"responder" yaml:"responder"`
}

const (
	// StoreMemory keeps rooms in memory.
	StoreMemory = "memory"
	// StoreBolt keeps rooms in a bbolt file.
	StoreBolt = "bolt"
)

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ServerURL:      "http://localhost:5000",
		RequestTimeout: 10 * time.Second,
		LogLevel:       "info",
		LogFormat:      "text",
		LogFile:        filepath.Join(defaultDir(), "roomchat.log"),
		Server: ServerConfig{
			Addr:              ":5000",
			Store:             StoreMemory,
			BoltPath:          filepath.Join(defaultDir(), "store.db"),
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RawResponder: map[string]any{
				"provider": ProviderScripted,
				"delay":    "50ms",
			},
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.ServerURL != "" {
		c.ServerURL = other.ServerURL
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.LogFile != "" {
		c.LogFile = other.LogFile
	}
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.Store != "" {
		c.Server.Store = other.Server.Store
	}
	if other.Server.BoltPath != "" {
		c.Server.BoltPath = other.Server.BoltPath
	}
	if other.Server.ReadHeaderTimeout != 0 {
		c.Server.ReadHeaderTimeout = other.Server.ReadHeaderTimeout
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}
	if len(other.Server.RawResponder) > 0 {
		c.Server.RawResponder = other.Server.RawResponder
	}
}

func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "roomchat")
}
