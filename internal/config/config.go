package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/omnifs/omnifs/internal/domain"
	"github.com/omnifs/omnifs/internal/logger"
)

// Config is the record consumed by format and mount. Values come from
// built-in defaults, overridden by a YAML config file, overridden by
// OMNIFS_* environment variables.
type Config struct {
	TotalSize         uint64
	HeaderSize        uint64
	BlockSize         uint64
	MaxFiles          uint32
	MaxFilenameLength uint32

	MaxUsers      uint32
	AdminUsername string
	AdminPassword string
	RequireAuth   bool

	Port           uint32
	MaxConnections uint32
	QueueTimeout   uint32

	LogLevel string
}

// Default returns the stock configuration: a 100 MiB container with 4096
// byte blocks, 1000 entry slots, and 50 user slots.
func Default() *Config {
	return &Config{
		TotalSize:         100 * 1024 * 1024,
		HeaderSize:        512,
		BlockSize:         4096,
		MaxFiles:          1000,
		MaxFilenameLength: 255,
		MaxUsers:          50,
		AdminUsername:     "admin",
		AdminPassword:     "admin123",
		RequireAuth:       true,
		Port:              8080,
		MaxConnections:    20,
		QueueTimeout:      30,
		LogLevel:          "info",
	}
}

type fileConfig struct {
	Filesystem struct {
		TotalSize         *uint64 `yaml:"total_size"`
		HeaderSize        *uint64 `yaml:"header_size"`
		BlockSize         *uint64 `yaml:"block_size"`
		MaxFiles          *uint32 `yaml:"max_files"`
		MaxFilenameLength *uint32 `yaml:"max_filename_length"`
	} `yaml:"filesystem"`
	Security struct {
		MaxUsers      *uint32 `yaml:"max_users"`
		AdminUsername *string `yaml:"admin_username"`
		AdminPassword *string `yaml:"admin_password"`
		RequireAuth   *bool   `yaml:"require_auth"`
	} `yaml:"security"`
	Server struct {
		Port           *uint32 `yaml:"port"`
		MaxConnections *uint32 `yaml:"max_connections"`
		QueueTimeout   *uint32 `yaml:"queue_timeout"`
		LogLevel       *string `yaml:"log_level"`
	} `yaml:"server"`
}

// Load builds a Config from defaults, an optional YAML file, and the
// environment. A missing file path yields the defaults; an unreadable or
// malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(domain.ErrInvalidConfig, err.Error())
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, errors.Wrap(domain.ErrInvalidConfig, err.Error())
		}
		cfg.applyFile(&fc)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(fc *fileConfig) {
	if v := fc.Filesystem.TotalSize; v != nil {
		c.TotalSize = *v
	}
	if v := fc.Filesystem.HeaderSize; v != nil {
		c.HeaderSize = *v
	}
	if v := fc.Filesystem.BlockSize; v != nil {
		c.BlockSize = *v
	}
	if v := fc.Filesystem.MaxFiles; v != nil {
		c.MaxFiles = *v
	}
	if v := fc.Filesystem.MaxFilenameLength; v != nil {
		c.MaxFilenameLength = *v
	}
	if v := fc.Security.MaxUsers; v != nil {
		c.MaxUsers = *v
	}
	if v := fc.Security.AdminUsername; v != nil {
		c.AdminUsername = *v
	}
	if v := fc.Security.AdminPassword; v != nil {
		c.AdminPassword = *v
	}
	if v := fc.Security.RequireAuth; v != nil {
		c.RequireAuth = *v
	}
	if v := fc.Server.Port; v != nil {
		c.Port = *v
	}
	if v := fc.Server.MaxConnections; v != nil {
		c.MaxConnections = *v
	}
	if v := fc.Server.QueueTimeout; v != nil {
		c.QueueTimeout = *v
	}
	if v := fc.Server.LogLevel; v != nil {
		c.LogLevel = *v
	}
}

func (c *Config) applyEnv() {
	c.TotalSize = getEnvUint64("OMNIFS_TOTAL_SIZE", c.TotalSize)
	c.HeaderSize = getEnvUint64("OMNIFS_HEADER_SIZE", c.HeaderSize)
	c.BlockSize = getEnvUint64("OMNIFS_BLOCK_SIZE", c.BlockSize)
	c.MaxFiles = getEnvUint32("OMNIFS_MAX_FILES", c.MaxFiles)
	c.MaxFilenameLength = getEnvUint32("OMNIFS_MAX_FILENAME_LENGTH", c.MaxFilenameLength)
	c.MaxUsers = getEnvUint32("OMNIFS_MAX_USERS", c.MaxUsers)
	c.AdminUsername = getEnv("OMNIFS_ADMIN_USERNAME", c.AdminUsername)
	c.AdminPassword = getEnv("OMNIFS_ADMIN_PASSWORD", c.AdminPassword)
	c.RequireAuth = getEnvBool("OMNIFS_REQUIRE_AUTH", c.RequireAuth)
	c.Port = getEnvUint32("OMNIFS_PORT", c.Port)
	c.MaxConnections = getEnvUint32("OMNIFS_MAX_CONNECTIONS", c.MaxConnections)
	c.QueueTimeout = getEnvUint32("OMNIFS_QUEUE_TIMEOUT", c.QueueTimeout)
	c.LogLevel = getEnv("OMNIFS_LOG_LEVEL", c.LogLevel)
}

// Validate rejects geometries that cannot hold the metadata regions.
func (c *Config) Validate() error {
	if c.BlockSize == 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return errors.Wrap(domain.ErrInvalidConfig, "block_size must be a power of two")
	}
	if c.BlockSize <= domain.NextPointerSize {
		return errors.Wrap(domain.ErrInvalidConfig, "block_size too small")
	}
	if c.HeaderSize < 128 {
		return errors.Wrap(domain.ErrInvalidConfig, "header_size too small")
	}
	if c.MaxFiles < 2 {
		return errors.Wrap(domain.ErrInvalidConfig, "max_files must be at least 2")
	}
	if c.MaxUsers == 0 {
		return errors.Wrap(domain.ErrInvalidConfig, "max_users must be positive")
	}
	if c.MaxFilenameLength == 0 || c.MaxFilenameLength > domain.EntryNameLen-1 {
		return errors.Wrap(domain.ErrInvalidConfig, "max_filename_length out of range")
	}
	if c.MaxConnections == 0 {
		return errors.Wrap(domain.ErrInvalidConfig, "max_connections must be positive")
	}

	metadata := c.HeaderSize +
		uint64(c.MaxUsers)*domain.UserInfoSize +
		uint64(c.MaxFiles)*domain.FileEntrySize
	if c.TotalSize < metadata+2*c.BlockSize {
		return errors.Wrap(domain.ErrInvalidConfig, "total_size cannot hold the metadata regions")
	}

	return nil
}

// Dump logs the effective configuration, section by section.
func (c *Config) Dump() {
	logger.Info("[filesystem] total_size=%d header_size=%d block_size=%d max_files=%d max_filename_length=%d",
		c.TotalSize, c.HeaderSize, c.BlockSize, c.MaxFiles, c.MaxFilenameLength)
	logger.Info("[security] max_users=%d admin_username=%s require_auth=%v",
		c.MaxUsers, c.AdminUsername, c.RequireAuth)
	logger.Info("[server] port=%d max_connections=%d queue_timeout=%d",
		c.Port, c.MaxConnections, c.QueueTimeout)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvUint64(key string, def uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvUint32(key string, def uint32) uint32 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint32(n)
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		lower := strings.ToLower(v)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return def
}
