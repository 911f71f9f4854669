// Package config loads the merklesync configuration from YAML with
// MERKLESYNC_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c0deZ3R0/go-merkle-sync/hlc"
	"github.com/c0deZ3R0/go-merkle-sync/logging"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Environment variables overriding file values.
const (
	EnvNodeID          = "MERKLESYNC_NODE_ID"
	EnvGroupID         = "MERKLESYNC_GROUP_ID"
	EnvReplicaID       = "MERKLESYNC_REPLICA_ID"
	EnvTables          = "MERKLESYNC_TABLES"
	EnvStorageDriver   = "MERKLESYNC_STORAGE_DRIVER"
	EnvStorageDSN      = "MERKLESYNC_STORAGE_DSN"
	EnvServerAddr      = "MERKLESYNC_SERVER_ADDR"
	EnvClientURL       = "MERKLESYNC_CLIENT_URL"
	EnvClientOffline   = "MERKLESYNC_OFFLINE"
	EnvSyncMaxRounds   = "MERKLESYNC_MAX_ROUNDS"
	EnvSyncMaxDrift    = "MERKLESYNC_MAX_DRIFT"
	EnvMetricsEnabled  = "MERKLESYNC_METRICS"
)

const (
	defaultGroupID     = "default"
	defaultMaxRounds   = 32
	defaultServerAddr  = ":8006"
	defaultMaxBodySize = 10 * 1024 * 1024
)

// Config is the complete configuration of a merklesync node or server.
type Config struct {
	// NodeID is optional. Replicas without one reuse the id persisted with
	// their clock, generating it on first start.
	NodeID    string   `yaml:"node_id"`
	GroupID   string   `yaml:"group_id"`
	ReplicaID string   `yaml:"replica_id"`
	Tables    []string `yaml:"tables"`

	Storage StorageConfig  `yaml:"storage"`
	Server  ServerConfig   `yaml:"server"`
	Client  ClientConfig   `yaml:"client"`
	Sync    SyncConfig     `yaml:"sync"`
	Logging logging.Config `yaml:"logging"`
}

// StorageConfig selects the key-value store backing replica state.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ServerConfig configures `merklesync serve`.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MaxRequestBytes int64         `yaml:"max_request_bytes"`
	Compression     *bool         `yaml:"compression"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Metrics         bool          `yaml:"metrics"`
}

// ClientConfig configures the transport of a replica.
type ClientConfig struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	Compression *bool         `yaml:"compression"`
	Offline     bool          `yaml:"offline"`
}

// SyncConfig bounds reconciliation.
type SyncConfig struct {
	// MaxRounds caps the rounds of a single sync.
	MaxRounds int `yaml:"max_rounds"`
	// MaxDrift is the tolerated lead of a remote clock over local wall
	// time. Zero, the default, disables the check.
	MaxDrift time.Duration `yaml:"max_drift"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

// Load reads path (when not empty), applies environment overrides and
// defaults, then validates the result.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(bytes.NewReader(data), c); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	return finish(c)
}

// Parse is Load over an arbitrary reader.
func Parse(r io.Reader) (*Config, error) {
	c := &Config{}
	if err := decode(r, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return finish(c)
}

func decode(r io.Reader, c *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func finish(c *Config) (*Config, error) {
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString(&c.NodeID, EnvNodeID)
	setString(&c.GroupID, EnvGroupID)
	setString(&c.ReplicaID, EnvReplicaID)
	setString(&c.Storage.Driver, EnvStorageDriver)
	setString(&c.Storage.DSN, EnvStorageDSN)
	setString(&c.Server.Addr, EnvServerAddr)
	setString(&c.Client.URL, EnvClientURL)

	if v, ok := os.LookupEnv(EnvTables); ok {
		c.Tables = splitList(v)
	}
	if v, ok := os.LookupEnv(EnvClientOffline); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvClientOffline, err)
		}
		c.Client.Offline = b
	}
	if v, ok := os.LookupEnv(EnvMetricsEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMetricsEnabled, err)
		}
		c.Server.Metrics = b
	}
	if v, ok := os.LookupEnv(EnvSyncMaxRounds); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSyncMaxRounds, err)
		}
		c.Sync.MaxRounds = n
	}
	if v, ok := os.LookupEnv(EnvSyncMaxDrift); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSyncMaxDrift, err)
		}
		c.Sync.MaxDrift = d
	}

	c.Logging = logging.ApplyEnv(c.Logging)
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) setDefaults() {
	if c.GroupID == "" {
		c.GroupID = defaultGroupID
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}
	if c.Server.MaxRequestBytes == 0 {
		c.Server.MaxRequestBytes = defaultMaxBodySize
	}
	if c.Server.Compression == nil {
		c.Server.Compression = boolPtr(true)
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Client.Timeout == 0 {
		c.Client.Timeout = 30 * time.Second
	}
	if c.Client.Compression == nil {
		c.Client.Compression = boolPtr(true)
	}
	if c.Sync.MaxRounds == 0 {
		c.Sync.MaxRounds = defaultMaxRounds
	}
	if c.Logging.Level == "" || c.Logging.Format == "" {
		c.Logging = logging.ApplyEnv(c.Logging)
	}
}

func boolPtr(b bool) *bool { return &b }

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.NodeID != "" {
		if err := hlc.ValidateNodeID(c.NodeID); err != nil {
			return fmt.Errorf("node_id: %w", err)
		}
	}
	if c.GroupID == "" {
		return fmt.Errorf("group_id must not be empty")
	}
	for _, t := range c.Tables {
		if t == "" {
			return fmt.Errorf("tables: empty table name")
		}
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	if c.Server.MaxRequestBytes < 0 {
		return fmt.Errorf("server.max_request_bytes must be non-negative")
	}
	if c.Server.ReadTimeout < 0 || c.Server.ShutdownTimeout < 0 || c.Client.Timeout < 0 {
		return fmt.Errorf("timeouts must be non-negative")
	}
	if c.Sync.MaxRounds < 1 {
		return fmt.Errorf("sync.max_rounds must be at least 1, got %d", c.Sync.MaxRounds)
	}
	if c.Sync.MaxDrift < 0 {
		return fmt.Errorf("sync.max_drift must be non-negative")
	}
	return nil
}

// Drift returns the configured maximum drift. Zero means unchecked.
func (s SyncConfig) Drift() time.Duration {
	return s.MaxDrift
}

// CompressionEnabled reports the server compression setting.
func (s ServerConfig) CompressionEnabled() bool {
	return s.Compression == nil || *s.Compression
}

// CompressionEnabled reports the client compression setting.
func (c ClientConfig) CompressionEnabled() bool {
	return c.Compression == nil || *c.Compression
}
