package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Providers = []ProviderProfile{
		{Provider: "anthropic", APIKey: "test-key"},
	}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "json", cfg.Store.Backend)
	assert.Equal(t, "anthropic", cfg.Agent.Provider)
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.False(t, cfg.Retention.Enabled)
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("requires a provider", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "provider")
	})

	t.Run("rejects unknown provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.Providers[0].Provider = "gemini"
		require.Error(t, cfg.Validate())
	})

	t.Run("requires api key", func(t *testing.T) {
		cfg := validConfig()
		cfg.Providers[0].APIKey = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects unknown store backend", func(t *testing.T) {
		cfg := validConfig()
		cfg.Store.Backend = "postgres"
		require.Error(t, cfg.Validate())
	})

	t.Run("requires agent model", func(t *testing.T) {
		cfg := validConfig()
		cfg.Agent.Model = ""
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects out of range temperature", func(t *testing.T) {
		cfg := validConfig()
		cfg.Agent.Temperature = 1.5
		require.Error(t, cfg.Validate())
	})

	t.Run("rejects invalid gateway port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Gateway.Port = 70000
		require.Error(t, cfg.Validate())
	})

	t.Run("retention needs positive max age when enabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Retention.Enabled = true
		cfg.Retention.MaxAgeDays = 0
		require.Error(t, cfg.Validate())
	})
}

func TestAPIKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Providers = append(cfg.Providers, ProviderProfile{Provider: "openai", APIKey: "other-key"})

	keys := cfg.APIKeys()
	assert.Equal(t, "test-key", keys["anthropic"])
	assert.Equal(t, "other-key", keys["openai"])
}

func TestLoaderMissingFileReturnsDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "absent.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Store.Backend)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Store.Path)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoaderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loom.json")
	content := `{
		"data_dir": "` + dir + `",
		"store": {"backend": "sqlite"},
		"providers": [{"provider": "openai", "api_key": "from-file"}],
		"agent": {"provider": "openai", "model": "gpt-4o", "temperature": 0.2}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, filepath.Join(dir, "conversations.db"), cfg.Store.Path)
	assert.Equal(t, "gpt-4o", cfg.Agent.Model)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "from-file", cfg.Providers[0].APIKey)

	// Defaults survive for sections the file does not set.
	assert.Equal(t, 8080, cfg.Gateway.Port)
}

func TestLoaderSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.json")
	loader := NewLoader(path)

	cfg := validConfig()
	cfg.DataDir = filepath.Dir(path)
	cfg.WorkspaceRoot = "/tmp/project"
	cfg.Agent.Model = "saved-model"
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "saved-model", loaded.Agent.Model)
	assert.Equal(t, "/tmp/project", loaded.WorkspaceRoot)
	require.Len(t, loaded.Providers, 1)
	assert.Equal(t, "anthropic", loaded.Providers[0].Provider)
}

func TestGetConfigPath(t *testing.T) {
	loader := NewLoader("/explicit/path.json")
	assert.Equal(t, "/explicit/path.json", loader.GetConfigPath())

	assert.Contains(t, NewLoader("").GetConfigPath(), ".loom")
}
