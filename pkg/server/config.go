package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration.
type Config struct {
	// ChatAddr is the TCP bind address for the chat wire protocol.
	ChatAddr string `yaml:"chat_addr"`
	// HTTPAddr is the bind address for the admin/metrics HTTP surface.
	HTTPAddr string `yaml:"http_addr"`
	// DBPath is the SQLite database file path.
	DBPath string `yaml:"db_path"`
	// StaticDir holds the admin page assets (index.html).
	StaticDir string `yaml:"static_dir"`

	// MaxPayload bounds a single wire field in bytes. Frames declaring
	// more are a fatal protocol error for that connection. 0 selects
	// the protocol default (32 MiB).
	MaxPayload uint32 `yaml:"max_payload"`
	// QueueSize is the per-session outbound frame queue capacity. A
	// recipient whose queue is full when a frame arrives is
	// disconnected rather than stalling the sender.
	QueueSize int `yaml:"queue_size"`
	// AuthTimeout bounds how long a new connection may take to present
	// its handshake frame.
	AuthTimeout time.Duration `yaml:"auth_timeout"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChatAddr:    "127.0.0.1:11111",
		HTTPAddr:    "127.0.0.1:11112",
		DBPath:      "relayd.db",
		StaticDir:   "./static",
		MaxPayload:  0, // protocol default
		QueueSize:   64,
		AuthTimeout: 10 * time.Second,
	}
}

// UnmarshalYAML decodes a config mapping. yaml.v3 has no native
// time.Duration support, so auth_timeout travels as a string ("10s",
// "1m30s") and is parsed here. Absent keys keep their current values.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		ChatAddr    string `yaml:"chat_addr"`
		HTTPAddr    string `yaml:"http_addr"`
		DBPath      string `yaml:"db_path"`
		StaticDir   string `yaml:"static_dir"`
		MaxPayload  uint32 `yaml:"max_payload"`
		QueueSize   int    `yaml:"queue_size"`
		AuthTimeout string `yaml:"auth_timeout"`
	}
	p := plain{
		ChatAddr:   c.ChatAddr,
		HTTPAddr:   c.HTTPAddr,
		DBPath:     c.DBPath,
		StaticDir:  c.StaticDir,
		MaxPayload: c.MaxPayload,
		QueueSize:  c.QueueSize,
	}
	if err := value.Decode(&p); err != nil {
		return err
	}

	c.ChatAddr = p.ChatAddr
	c.HTTPAddr = p.HTTPAddr
	c.DBPath = p.DBPath
	c.StaticDir = p.StaticDir
	c.MaxPayload = p.MaxPayload
	c.QueueSize = p.QueueSize
	if p.AuthTimeout != "" {
		d, err := time.ParseDuration(p.AuthTimeout)
		if err != nil {
			return fmt.Errorf("auth_timeout: %w", err)
		}
		c.AuthTimeout = d
	}
	return nil
}

// LoadConfigFile merges YAML settings from path over cfg. Fields absent
// from the file keep their current values.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		return fmt.Errorf("server: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("server: parse config: %w", err)
	}
	return nil
}
