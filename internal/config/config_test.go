package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearOverrides(t *testing.T) {
	for _, k := range []string{"PORT", "DATABASE_PATH", "ML_TYPE"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearOverrides(t)
	cfg, err := LoadConfig(writeConfig(t, `{"server":{"port":"8080"}}`))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, defaultStaticDir, cfg.Server.StaticDir)
	assert.Equal(t, defaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, defaultMLType, cfg.ML.Type)
	assert.Equal(t, defaultHistoryLimit, cfg.History.Limit)
}

func TestLoadConfigRequiresPort(t *testing.T) {
	clearOverrides(t)
	_, err := LoadConfig(writeConfig(t, `{"database":{"path":"x.db"}}`))
	assert.ErrorContains(t, err, "port")
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_PATH", "/tmp/other.db")
	t.Setenv("ML_TYPE", "local")

	cfg, err := LoadConfig(writeConfig(t, `{"server":{"port":"8080","debug":true},"ml":{"type":"google"}}`))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.Equal(t, "local", cfg.ML.Type)
	assert.True(t, cfg.Server.Debug)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to read")

	_, err = LoadConfig(writeConfig(t, `{`))
	assert.ErrorContains(t, err, "failed to parse")
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MACROTRACK_TEST_VALUE=from-file\n"), 0o600))
	t.Setenv("MACROTRACK_TEST_VALUE", "")
	os.Unsetenv("MACROTRACK_TEST_VALUE")

	require.NoError(t, LoadEnv(path, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "from-file", os.Getenv("MACROTRACK_TEST_VALUE"))
}

func TestGetConfigPathEnv(t *testing.T) {
	t.Setenv("MACROTRACK_CONFIG", "/etc/macrotrack.json")
	assert.Equal(t, "/etc/macrotrack.json", GetConfigPath())
}
