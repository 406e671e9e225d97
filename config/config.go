package config

import (
	"fmt"
	"log"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Output string `toml:"output"` // Log output: "stderr", "stdout", "syslog", or file path
	Format string `toml:"format"` // Log format: "json" or "console"
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", "error"
}

// EngineConfig controls compilation and execution of scripts.
type EngineConfig struct {
	// EnabledExtensions are the extensions scripts may require. An empty
	// list enables every extension the binary ships.
	EnabledExtensions []string `toml:"enabled_extensions"`
	MaxInstructions   int      `toml:"max_instructions"` // Per-run instruction limit, 0 disables the limit
	MaxScriptSize     string   `toml:"max_script_size"`  // Largest accepted script source (e.g. "64KB")
	MaxTokens         int      `toml:"max_tokens"`       // Lexer token limit
	MaxNesting        int      `toml:"max_nesting"`      // Block and test nesting limit
	TraceLevel        string   `toml:"trace_level"`      // "", "actions", "commands", "tests" or "matching"
}

// GetMaxScriptSize parses the script size limit.
func (e *EngineConfig) GetMaxScriptSize() (int64, error) {
	if e.MaxScriptSize == "" {
		return 0, nil
	}
	return ParseSize(e.MaxScriptSize)
}

// CacheConfig sizes the in-memory cache of compiled programs.
type CacheConfig struct {
	MaxEntries int    `toml:"max_entries"`
	TTL        string `toml:"ttl"` // e.g. "5m"
}

// GetTTL parses the cache entry lifetime.
func (c *CacheConfig) GetTTL() (time.Duration, error) {
	if c.TTL == "" {
		return 5 * time.Minute, nil
	}
	return time.ParseDuration(c.TTL)
}

// StoreConfig selects the persistent store of compiled programs.
type StoreConfig struct {
	Driver       string `toml:"driver"`        // "", "sqlite" or "postgres"
	Path         string `toml:"path"`          // SQLite database file
	DSN          string `toml:"dsn"`           // PostgreSQL connection string
	QueryTimeout string `toml:"query_timeout"` // Per-query timeout (default: "5s")
}

// GetQueryTimeout parses the per-query timeout.
func (s *StoreConfig) GetQueryTimeout() (time.Duration, error) {
	if s.QueryTimeout == "" {
		return 5 * time.Second, nil
	}
	return time.ParseDuration(s.QueryTimeout)
}

// MetricsConfig controls metric export. Commands are short lived, so
// metrics are written to a node exporter textfile when they finish.
type MetricsConfig struct {
	Enabled  bool   `toml:"enabled"`
	Textfile string `toml:"textfile"`
}

// Config holds all configuration for svbin.
type Config struct {
	Logging LoggingConfig `toml:"logging"`
	Engine  EngineConfig  `toml:"engine"`
	Cache   CacheConfig   `toml:"cache"`
	Store   StoreConfig   `toml:"store"`
	Metrics MetricsConfig `toml:"metrics"`
}

// NewDefaultConfig creates a Config struct with default values.
func NewDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
		Engine: EngineConfig{
			MaxInstructions: 100000,
			MaxScriptSize:   "1MB",
			MaxTokens:       5000,
			MaxNesting:      15,
		},
		Cache: CacheConfig{
			MaxEntries: 100,
			TTL:        "5m",
		},
		Store: StoreConfig{
			QueryTimeout: "5s",
		},
	}
}

// Validate checks values that cannot be checked by decoding alone.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store: driver sqlite requires path")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store: driver postgres requires dsn")
		}
	default:
		return fmt.Errorf("store: unknown driver %q", c.Store.Driver)
	}
	if _, err := c.Store.GetQueryTimeout(); err != nil {
		return fmt.Errorf("store: invalid query_timeout: %w", err)
	}
	if _, err := c.Engine.GetMaxScriptSize(); err != nil {
		return fmt.Errorf("engine: invalid max_script_size: %w", err)
	}
	if c.Engine.MaxInstructions < 0 {
		return fmt.Errorf("engine: max_instructions must not be negative")
	}
	if ttl, err := c.Cache.GetTTL(); err != nil {
		return fmt.Errorf("cache: invalid ttl: %w", err)
	} else if ttl <= 0 {
		return fmt.Errorf("cache: ttl must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return fmt.Errorf("metrics: enabled requires textfile")
	}
	return nil
}

// ParseSize parses a byte size such as "512", "64KB", "10M" or "1GiB".
func ParseSize(s string) (int64, error) {
	str := strings.ToUpper(strings.TrimSpace(s))
	if str == "" {
		return 0, fmt.Errorf("empty size")
	}
	str = strings.TrimSuffix(str, "IB")
	str = strings.TrimSuffix(str, "B")

	mult := int64(1)
	switch {
	case strings.HasSuffix(str, "K"):
		mult = 1 << 10
	case strings.HasSuffix(str, "M"):
		mult = 1 << 20
	case strings.HasSuffix(str, "G"):
		mult = 1 << 30
	}
	if mult > 1 {
		str = str[:len(str)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(str), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}

// LoadConfigFromFile loads configuration from a TOML file, tolerating
// duplicate and unknown keys with a warning.
func LoadConfigFromFile(configPath string, cfg *Config) error {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	metadata, err := toml.Decode(string(content), cfg)
	if err != nil {
		if !strings.Contains(err.Error(), "has already been defined") {
			return enhanceConfigError(err)
		}
		log.Printf("WARNING: Configuration file '%s' contains duplicate keys: %s", configPath, err)
		log.Printf("WARNING: Ignoring duplicate entries. Only the first occurrence of each key will be used.")

		metadata, err = toml.Decode(removeDuplicateKeysFromTOML(string(content)), cfg)
		if err != nil {
			return enhanceConfigError(err)
		}
	}

	if len(metadata.Undecoded()) > 0 {
		log.Printf("WARNING: Configuration file '%s' contains unknown keys that will be ignored:", configPath)
		for _, key := range metadata.Undecoded() {
			log.Printf("WARNING:   - %s", key)
		}
	}

	trimStringFields(reflect.ValueOf(cfg).Elem())
	return nil
}

// removeDuplicateKeysFromTOML comments out every repeated key of a table,
// keeping the first occurrence.
func removeDuplicateKeysFromTOML(content string) string {
	lines := strings.Split(content, "\n")
	seen := make(map[string]int)
	section := ""

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = strings.Trim(trimmed, "[] ")
			continue
		}
		key, _, ok := strings.Cut(trimmed, "=")
		if !ok {
			continue
		}
		full := section + "." + strings.TrimSpace(key)
		if first, dup := seen[full]; dup {
			log.Printf("WARNING: Duplicate key '%s' found at line %d (first occurrence at line %d). Ignoring duplicate.",
				strings.TrimPrefix(full, "."), i+1, first+1)
			lines[i] = "# DUPLICATE IGNORED: " + line
			continue
		}
		seen[full] = i
	}
	return strings.Join(lines, "\n")
}

// enhanceConfigError adds a hint to common TOML mistakes.
func enhanceConfigError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "expected value but found \"f\"") ||
		strings.Contains(msg, "expected value but found \"t\"") {
		return fmt.Errorf("%w\n\nHINT: In TOML, boolean values must be exactly 'true' or 'false' (lowercase, unquoted)", err)
	}
	if strings.Contains(msg, "expected") || strings.Contains(msg, "invalid") {
		return fmt.Errorf("%w\n\nHINT: There is a syntax error in your TOML configuration file.\n"+
			"Please check that strings are quoted and section headers use [section] format", err)
	}
	return err
}

// trimStringFields recursively trims whitespace from all string fields in a struct
func trimStringFields(v reflect.Value) {
	if !v.IsValid() || !v.CanSet() {
		return
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(strings.TrimSpace(v.String()))
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			trimStringFields(v.Index(i))
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			trimStringFields(v.Field(i))
		}
	case reflect.Ptr:
		if !v.IsNil() {
			trimStringFields(v.Elem())
		}
	}
}
