package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all MediaVault configuration
type Config struct {
	// HTTP API
	Server ServerConfig `json:"server"`

	// Metadata store (resources, records, grants)
	Database DatabaseConfig `json:"database"`

	// Ciphertext object store
	Storage StorageConfig `json:"storage"`

	// Facade behaviour
	Vault VaultConfig `json:"vault"`

	// Request identity
	Auth AuthConfig `json:"auth"`

	// System configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	ListenAddr     string `json:"listen_addr"`
	ReadTimeout    int    `json:"read_timeout_seconds"`
	WriteTimeout   int    `json:"write_timeout_seconds"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`

	// Per-user limits, zero disables
	RequestsPerMinute     int `json:"requests_per_minute"`
	MaxConcurrentRequests int `json:"max_concurrent_requests"`
}

// DatabaseConfig selects and configures the metadata store
type DatabaseConfig struct {
	Driver         string `json:"driver"` // postgres, badger
	URL            string `json:"url,omitempty"`
	MaxConnections int32  `json:"max_connections"`
	BadgerPath     string `json:"badger_path,omitempty"`
	InMemory       bool   `json:"in_memory"`
}

// StorageConfig selects and configures the object store backend
type StorageConfig struct {
	Backend string      `json:"backend"` // memory, ipfs, minio
	IPFS    IPFSConfig  `json:"ipfs"`
	MinIO   MinIOConfig `json:"minio"`
}

// IPFSConfig holds IPFS connection settings
type IPFSConfig struct {
	APIEndpoint string `json:"api_endpoint"`
	RootPath    string `json:"root_path"`
	Timeout     int    `json:"timeout_seconds"`
}

// MinIOConfig holds S3-compatible object store settings
type MinIOConfig struct {
	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"-"`
	UseSSL    bool   `json:"use_ssl"`
}

// VaultConfig holds facade settings
type VaultConfig struct {
	StoreTimeout    int    `json:"store_timeout_seconds"`
	MaxConcurrency  int    `json:"max_concurrency"`
	SweepGraceHours int    `json:"sweep_grace_hours"`
	MasterKeyFile   string `json:"master_key_file,omitempty"`
}

// AuthConfig names the headers the authenticating proxy sets
type AuthConfig struct {
	UserHeader  string `json:"user_header"`
	AdminHeader string `json:"admin_header"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
	Output string `json:"output"` // console, file
	File   string `json:"file,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Server: ServerConfig{
			ListenAddr:     "127.0.0.1:8420",
			ReadTimeout:    30,
			WriteTimeout:   120,
			MaxUploadBytes: 256 << 20,

			RequestsPerMinute:     600,
			MaxConcurrentRequests: 16,
		},
		Database: DatabaseConfig{
			Driver:         "badger",
			MaxConnections: 10,
			BadgerPath:     filepath.Join(homeDir, ".mediavault", "metadata"),
		},
		Storage: StorageConfig{
			Backend: "ipfs",
			IPFS: IPFSConfig{
				APIEndpoint: "127.0.0.1:5001",
				RootPath:    "/mediavault",
				Timeout:     30,
			},
			MinIO: MinIOConfig{
				Endpoint: "127.0.0.1:9000",
				Bucket:   "mediavault",
			},
		},
		Vault: VaultConfig{
			StoreTimeout:    30,
			MaxConcurrency:  8,
			SweepGraceHours: 24,
		},
		Auth: AuthConfig{
			UserHeader:  "X-Forwarded-User",
			AdminHeader: "X-Forwarded-Admin",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "console",
		},
	}
}

// LoadConfig loads configuration from file with environment variable overrides
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a JSON file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return json.Unmarshal(data, c)
}

func envInt(name string, target *int) {
	if val := os.Getenv(name); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*target = n
		}
	}
}

func envBool(name string, target *bool) {
	if val := os.Getenv(name); val != "" {
		*target = strings.ToLower(val) == "true"
	}
}

func envString(name string, target *string) {
	if val := os.Getenv(name); val != "" {
		*target = val
	}
}

// applyEnvironmentOverrides applies environment variable overrides
func (c *Config) applyEnvironmentOverrides() {
	envString("MEDIAVAULT_LISTEN_ADDR", &c.Server.ListenAddr)
	envInt("MEDIAVAULT_REQUESTS_PER_MINUTE", &c.Server.RequestsPerMinute)
	envInt("MEDIAVAULT_MAX_CONCURRENT_REQUESTS", &c.Server.MaxConcurrentRequests)

	envString("MEDIAVAULT_DB_DRIVER", &c.Database.Driver)
	envString("MEDIAVAULT_DB_URL", &c.Database.URL)
	envString("MEDIAVAULT_BADGER_PATH", &c.Database.BadgerPath)
	envBool("MEDIAVAULT_DB_IN_MEMORY", &c.Database.InMemory)

	envString("MEDIAVAULT_STORAGE_BACKEND", &c.Storage.Backend)
	envString("MEDIAVAULT_IPFS_API", &c.Storage.IPFS.APIEndpoint)
	envInt("MEDIAVAULT_IPFS_TIMEOUT", &c.Storage.IPFS.Timeout)
	envString("MEDIAVAULT_MINIO_ENDPOINT", &c.Storage.MinIO.Endpoint)
	envString("MEDIAVAULT_MINIO_BUCKET", &c.Storage.MinIO.Bucket)
	envString("MEDIAVAULT_MINIO_ACCESS_KEY", &c.Storage.MinIO.AccessKey)
	envString("MEDIAVAULT_MINIO_SECRET_KEY", &c.Storage.MinIO.SecretKey)
	envBool("MEDIAVAULT_MINIO_USE_SSL", &c.Storage.MinIO.UseSSL)

	envInt("MEDIAVAULT_STORE_TIMEOUT", &c.Vault.StoreTimeout)
	envInt("MEDIAVAULT_MAX_CONCURRENCY", &c.Vault.MaxConcurrency)
	envString("MEDIAVAULT_MASTER_KEY_FILE", &c.Vault.MasterKeyFile)

	envString("MEDIAVAULT_LOG_LEVEL", &c.Logging.Level)
	envString("MEDIAVAULT_LOG_FORMAT", &c.Logging.Format)
	envString("MEDIAVAULT_LOG_OUTPUT", &c.Logging.Output)
	envString("MEDIAVAULT_LOG_FILE", &c.Logging.File)
}

// Validate validates the configuration and provides helpful suggestions
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address cannot be empty. Use '127.0.0.1:8420' for local use")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive (current: %d)", c.Server.MaxUploadBytes)
	}
	if c.Server.RequestsPerMinute < 0 || c.Server.MaxConcurrentRequests < 0 {
		return fmt.Errorf("request limits cannot be negative. Use 0 to disable a limit")
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database url is required for the postgres driver. Set MEDIAVAULT_DB_URL")
		}
		if c.Database.MaxConnections <= 0 {
			return fmt.Errorf("max connections must be positive (current: %d)", c.Database.MaxConnections)
		}
	case "badger":
		if !c.Database.InMemory && c.Database.BadgerPath == "" {
			return fmt.Errorf("badger path is required unless in_memory is set")
		}
	default:
		return fmt.Errorf("invalid database driver '%s'. Valid options: postgres, badger", c.Database.Driver)
	}

	switch c.Storage.Backend {
	case "memory":
	case "ipfs":
		if c.Storage.IPFS.APIEndpoint == "" {
			return fmt.Errorf("IPFS API endpoint cannot be empty. Set it to '127.0.0.1:5001' for local IPFS node")
		}
		if c.Storage.IPFS.Timeout <= 0 {
			return fmt.Errorf("IPFS timeout must be positive (current: %d)", c.Storage.IPFS.Timeout)
		}
		if !strings.HasPrefix(c.Storage.IPFS.RootPath, "/") {
			return fmt.Errorf("IPFS root path must be absolute (current: '%s')", c.Storage.IPFS.RootPath)
		}
	case "minio":
		if c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.Bucket == "" {
			return fmt.Errorf("minio endpoint and bucket are required")
		}
	default:
		return fmt.Errorf("invalid storage backend '%s'. Valid options: memory, ipfs, minio", c.Storage.Backend)
	}

	if c.Vault.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive (current: %d). Use 30 seconds for normal use", c.Vault.StoreTimeout)
	}
	if c.Vault.MaxConcurrency <= 0 || c.Vault.MaxConcurrency > 100 {
		return fmt.Errorf("max concurrency must be between 1 and 100 (current: %d)", c.Vault.MaxConcurrency)
	}
	if c.Vault.SweepGraceHours < 1 {
		return fmt.Errorf("sweep grace hours must be at least 1 (current: %d). Use 24 for normal use", c.Vault.SweepGraceHours)
	}

	if c.Auth.UserHeader == "" {
		return fmt.Errorf("auth user header cannot be empty")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s'. Valid options: debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format '%s'. Valid options: text, json", c.Logging.Format)
	}
	if c.Logging.Output != "console" && c.Logging.Output != "file" {
		return fmt.Errorf("invalid log output '%s'. Valid options: console, file", c.Logging.Output)
	}
	if c.Logging.Output == "file" && c.Logging.File == "" {
		return fmt.Errorf("log file path is required when output is 'file'")
	}

	return nil
}

// StoreTimeoutDuration returns the per-call object/metadata store timeout.
func (c *Config) StoreTimeoutDuration() time.Duration {
	return time.Duration(c.Vault.StoreTimeout) * time.Second
}

// SweepGracePeriod returns how old an unreferenced object must be before the
// sweeper removes it.
func (c *Config) SweepGracePeriod() time.Duration {
	return time.Duration(c.Vault.SweepGraceHours) * time.Hour
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".mediavault", "config.json"), nil
}
