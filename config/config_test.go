package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "svbin.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, 100000, cfg.Engine.MaxInstructions)

	size, err := cfg.Engine.GetMaxScriptSize()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), size)

	ttl, err := cfg.Cache.GetTTL()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, ttl)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = " debug "
format = "json"

[engine]
enabled_extensions = ["fileinto", " envelope "]
max_instructions = 500
max_script_size = "64KB"
trace_level = "tests"

[cache]
max_entries = 10
ttl = "30s"

[store]
driver = "sqlite"
path = "/var/lib/svbin/programs.db"
`)

	cfg := NewDefaultConfig()
	require.NoError(t, LoadConfigFromFile(path, &cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "stderr", cfg.Logging.Output, "defaults survive for keys not in the file")
	assert.Equal(t, []string{"fileinto", "envelope"}, cfg.Engine.EnabledExtensions)
	assert.Equal(t, 500, cfg.Engine.MaxInstructions)
	assert.Equal(t, "tests", cfg.Engine.TraceLevel)
	assert.Equal(t, 10, cfg.Cache.MaxEntries)
	assert.Equal(t, "sqlite", cfg.Store.Driver)

	size, err := cfg.Engine.GetMaxScriptSize()
	require.NoError(t, err)
	assert.Equal(t, int64(64<<10), size)

	ttl, err := cfg.Cache.GetTTL()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, ttl)
}

func TestLoadConfigFromFile_UnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[engine]
max_instructions = 42
typo_setting = 123
`)
	cfg := NewDefaultConfig()
	require.NoError(t, LoadConfigFromFile(path, &cfg))
	assert.Equal(t, 42, cfg.Engine.MaxInstructions)
}

func TestLoadConfigFromFile_DuplicateKeys(t *testing.T) {
	path := writeConfig(t, `
[engine]
max_instructions = 1
max_instructions = 2
`)
	cfg := NewDefaultConfig()
	require.NoError(t, LoadConfigFromFile(path, &cfg))
	assert.Equal(t, 1, cfg.Engine.MaxInstructions)
}

func TestLoadConfigFromFile_SyntaxError(t *testing.T) {
	path := writeConfig(t, `
[metrics]
enabled = t
`)
	cfg := NewDefaultConfig()
	err := LoadConfigFromFile(path, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HINT")
}

func TestLoadConfigFromFile_Missing(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Error(t, LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.toml"), &cfg))
}

func TestRemoveDuplicateKeysFromTOML(t *testing.T) {
	in := "[a]\nx = 1\nx = 2\n[b]\nx = 3\n"
	want := "[a]\nx = 1\n# DUPLICATE IGNORED: x = 2\n[b]\nx = 3\n"
	assert.Equal(t, want, removeDuplicateKeysFromTOML(in))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "unknown driver"},
		{"sqlite without path", func(c *Config) { c.Store.Driver = "sqlite" }, "requires path"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }, "requires dsn"},
		{"bad query timeout", func(c *Config) { c.Store.QueryTimeout = "soon" }, "query_timeout"},
		{"bad script size", func(c *Config) { c.Engine.MaxScriptSize = "big" }, "max_script_size"},
		{"negative instructions", func(c *Config) { c.Engine.MaxInstructions = -1 }, "max_instructions"},
		{"bad ttl", func(c *Config) { c.Cache.TTL = "forever" }, "ttl"},
		{"zero ttl", func(c *Config) { c.Cache.TTL = "0s" }, "ttl must be positive"},
		{"metrics without textfile", func(c *Config) { c.Metrics.Enabled = true }, "textfile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"512", 512, false},
		{"64KB", 64 << 10, false},
		{"64kb", 64 << 10, false},
		{"10M", 10 << 20, false},
		{"1GiB", 1 << 30, false},
		{" 2 MB ", 2 << 20, false},
		{"", 0, true},
		{"lots", 0, true},
		{"-1K", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
