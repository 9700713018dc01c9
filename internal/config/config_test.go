package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/reftrack/internal/config"
)

// clearEnv blanks every variable the loader reads; empty counts as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"REFTRACK_DOCUMENT", "REFTRACK_REGISTRY", "REFTRACK_PROJECT_ROOT",
		"REFTRACK_MANIFEST", "REFTRACK_POSTGRES_DSN", "REFTRACK_BREAKER_MAX_FAILURES",
		"REFTRACK_BREAKER_TIMEOUT", "REFTRACK_LOG_LEVEL", "REFTRACK_LOG_FORMAT",
		"REFTRACK_LOG_FILE", "REFTRACK_EVENTS_PATH", "REFTRACK_EVENTS_DISABLED",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "./scene.db", cfg.Document.Path)
	assert.Equal(t, config.RegistryManifest, cfg.Registry.Backend)
	assert.Equal(t, "./project.yaml", cfg.Registry.Manifest)
	assert.Equal(t, 3, cfg.Breaker.MaxFailures)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, config.LogFormatConsole, cfg.Log.Format)
	assert.Empty(t, cfg.Events.Path, "change events are off unless a path is configured")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REFTRACK_DOCUMENT", "/tmp/shot.db")
	t.Setenv("REFTRACK_REGISTRY", "postgres")
	t.Setenv("REFTRACK_POSTGRES_DSN", "postgres://localhost/project")
	t.Setenv("REFTRACK_BREAKER_MAX_FAILURES", "5")
	t.Setenv("REFTRACK_BREAKER_TIMEOUT", "2m")
	t.Setenv("REFTRACK_LOG_FORMAT", "json")
	t.Setenv("REFTRACK_EVENTS_PATH", "/tmp/events")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/shot.db", cfg.Document.Path)
	assert.Equal(t, config.RegistryPostgres, cfg.Registry.Backend)
	assert.Equal(t, 5, cfg.Breaker.MaxFailures)
	assert.Equal(t, 2*time.Minute, cfg.Breaker.Timeout)
	assert.Equal(t, config.LogFormatJSON, cfg.Log.Format)
	assert.Equal(t, "/tmp/events", cfg.Events.Path)
}

func TestLoadConfig_InvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("REFTRACK_BREAKER_MAX_FAILURES", "many")
	t.Setenv("REFTRACK_BREAKER_TIMEOUT", "soon")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Breaker.MaxFailures)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Timeout)
}

func TestLoadConfig_EventsDisabled(t *testing.T) {
	clearEnv(t)
	t.Setenv("REFTRACK_EVENTS_PATH", "/tmp/events")
	t.Setenv("REFTRACK_EVENTS_DISABLED", "yes")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.Events.Path)
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	t.Run("unknown registry", func(t *testing.T) {
		t.Setenv("REFTRACK_REGISTRY", "shotgun")
		_, err := config.LoadConfig()
		assert.ErrorContains(t, err, "unknown registry backend")
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("REFTRACK_REGISTRY", "postgres")
		_, err := config.LoadConfig()
		assert.ErrorContains(t, err, "REFTRACK_POSTGRES_DSN")
	})

	t.Run("unknown log format", func(t *testing.T) {
		t.Setenv("REFTRACK_LOG_FORMAT", "xml")
		_, err := config.LoadConfig()
		assert.ErrorContains(t, err, "unknown log format")
	})

	t.Run("negative breaker failures", func(t *testing.T) {
		cfg := &config.Config{
			Registry: config.RegistryConfig{Backend: config.RegistryManifest},
			Log:      config.LogConfig{Format: config.LogFormatJSON},
			Breaker:  config.BreakerConfig{MaxFailures: -1},
		}
		assert.Error(t, cfg.Validate())
	})
}

func TestLoadConfigFile_OverlayThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "reftrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
document:
  path: /projects/demo/shots/sh010/anim.db
registry:
  project_root: /projects/demo
  manifest: /projects/demo/project.yaml
breaker:
  timeout: 10s
log:
  level: debug
`), 0o600))
	t.Setenv("REFTRACK_LOG_LEVEL", "warn")

	cfg, err := config.LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/projects/demo/shots/sh010/anim.db", cfg.Document.Path)
	assert.Equal(t, "/projects/demo", cfg.Registry.ProjectRoot)
	assert.Equal(t, config.RegistryManifest, cfg.Registry.Backend, "unset keys keep their defaults")
	assert.Equal(t, 10*time.Second, cfg.Breaker.Timeout)
	assert.Equal(t, 3, cfg.Breaker.MaxFailures)
	assert.Equal(t, "warn", cfg.Log.Level, "environment overrides the file")
}

func TestLoadConfigFile_Errors(t *testing.T) {
	clearEnv(t)

	_, err := config.LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("registry: [unterminated"), 0o600))
	_, err = config.LoadConfigFile(bad)
	assert.ErrorContains(t, err, "parse")

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("log:\n  format: xml\n"), 0o600))
	_, err = config.LoadConfigFile(invalid)
	assert.ErrorContains(t, err, "unknown log format")
}
