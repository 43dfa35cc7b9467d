// Package config loads kitcat settings from KITCAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/kelseyhightower/envconfig"

	"github.com/kk-code-lab/kitcat/internal/logger"
	"github.com/kk-code-lab/kitcat/internal/storage/digest"
)

// Prefix is the environment variable prefix.
const Prefix = "KITCAT"

// CatalogDisabled turns off the catalog when used as the catalog path.
const CatalogDisabled = "off"

var (
	ErrInvalidChunkSize = errors.New("config: invalid chunk size")
	ErrInvalidAlgorithm = errors.New("config: invalid algorithm")
	ErrInvalidLogLevel  = errors.New("config: invalid log level")
	ErrInvalidLogFormat = errors.New("config: invalid log format")
)

// Config holds process-wide settings. Command-line flags override these values.
type Config struct {
	ChunkSize   string `envconfig:"CHUNK_SIZE" default:"4MiB"`
	Algorithm   string `envconfig:"ALGORITHM" default:"sha256"`
	CatalogPath string `envconfig:"CATALOG"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"warn"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"console"`
}

// Read reads the environment without validating it. Callers that only need
// part of the settings validate that part themselves.
func Read() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	if _, err := c.ChunkSizeBytes(); err != nil {
		return err
	}
	if _, err := digest.ParseAlgorithm(c.Algorithm); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAlgorithm, err)
	}
	return c.ValidateLogging()
}

// ValidateLogging checks the log level and format.
func (c *Config) ValidateLogging() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", logger.FormatConsole, logger.FormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat)
	}
	return nil
}

// ChunkSizeBytes parses ChunkSize, accepting units such as "100", "64KiB" or "4 MB".
func (c *Config) ChunkSizeBytes() (int64, error) {
	return ParseSize(c.ChunkSize)
}

// binaryUnits maps the short unit names to powers of 1024, so "4MB" and
// "4MiB" both mean 4194304 bytes.
var binaryUnits = map[string]string{
	"k": "kib", "kb": "kib",
	"m": "mib", "mb": "mib",
	"g": "gib", "gb": "gib",
	"t": "tib", "tb": "tib",
}

// ParseSize parses a positive human-readable byte size. K, M, G and T units
// are binary with or without the "i".
func ParseSize(s string) (int64, error) {
	in := strings.TrimSpace(s)
	if i := strings.IndexFunc(in, unicode.IsLetter); i > 0 {
		if unit, ok := binaryUnits[strings.ToLower(in[i:])]; ok {
			in = in[:i] + unit
		}
	}
	n, err := humanize.ParseBytes(in)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChunkSize, s)
	}
	if n == 0 || n > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChunkSize, s)
	}
	return int64(n), nil
}

// FormatSize renders n bytes in IEC units.
func FormatSize(n int64) string {
	if n < 0 {
		return fmt.Sprintf("%d B", n)
	}
	return humanize.IBytes(uint64(n))
}

// Catalog returns the catalog database path, or "" when the catalog is disabled.
// An unset path resolves under the user config directory.
func (c *Config) Catalog() (string, error) {
	switch c.CatalogPath {
	case CatalogDisabled:
		return "", nil
	case "":
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "kitcat", "catalog.db"), nil
	default:
		return c.CatalogPath, nil
	}
}
