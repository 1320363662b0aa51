package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OAR_DATA_DIR", "/srv/oar")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/srv/oar", "raw"), cfg.RawDir)
	assert.Equal(t, filepath.Join("/srv/oar", "cleaned"), cfg.CleanedDir)
	assert.Equal(t, filepath.Join("/srv/oar", "final"), cfg.FinalDir)
	assert.Empty(t, cfg.LogDir, "no log file unless configured")
	assert.Equal(t, DefaultCountries, cfg.Countries)
	assert.Equal(t, 10000, cfg.MinCompanies)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.False(t, cfg.StoreEnabled())
	assert.Equal(t, "localhost:8080", cfg.HTTPAddr())
	assert.GreaterOrEqual(t, cfg.Workers, 1)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OAR_COUNTRIES", "Spain, Italy ,")
	t.Setenv("OAR_FETCH_TIMEOUT", "5s")
	t.Setenv("OAR_MIN_COMPANIES", "not-a-number")
	t.Setenv("OAR_DB_DRIVER", "sqlite")
	t.Setenv("OAR_DB_DSN", "file:oar.db")
	t.Setenv("OAR_WORKBOOK", "off")
	t.Setenv("OAR_HTTP_PORT", "9090")
	t.Setenv("OAR_LOG_DIR", "/var/log/oar")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"Spain", "Italy"}, cfg.Countries)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 10000, cfg.MinCompanies, "unparsable values fall back to the default")
	assert.True(t, cfg.StoreEnabled())
	assert.False(t, cfg.Workbook)
	assert.Equal(t, "localhost:9090", cfg.HTTPAddr())
	assert.Equal(t, "/var/log/oar", cfg.LogDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown driver", env: map[string]string{"OAR_DB_DRIVER": "mysql", "OAR_DB_DSN": "x"}},
		{name: "driver without dsn", env: map[string]string{"OAR_DB_DRIVER": "postgres"}},
		{name: "zero workers", env: map[string]string{"OAR_WORKERS": "0"}},
		{name: "port out of range", env: map[string]string{"OAR_HTTP_PORT": "70000"}},
		{name: "negative retries", env: map[string]string{"OAR_FETCH_RETRIES": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("OAR_TEST_FROM_FILE=file\nOAR_TEST_PRESET=file\n"), 0o644))

	t.Setenv("OAR_TEST_PRESET", "env")
	t.Setenv("OAR_TEST_FROM_FILE", "")
	os.Unsetenv("OAR_TEST_FROM_FILE")

	require.NoError(t, LoadEnv(path))
	t.Cleanup(func() { os.Unsetenv("OAR_TEST_FROM_FILE") })

	assert.Equal(t, "file", os.Getenv("OAR_TEST_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("OAR_TEST_PRESET"), "existing variables win")

	assert.Error(t, LoadEnv(filepath.Join(dir, "missing.env")))
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("OAR_TEST_INT", "42")
	t.Setenv("OAR_TEST_FLOAT", "0.5")
	t.Setenv("OAR_TEST_BOOL", "yes")
	t.Setenv("OAR_TEST_BAD_BOOL", "maybe")

	assert.Equal(t, 42, GetEnvInt("OAR_TEST_INT", 1))
	assert.Equal(t, 0.5, GetEnvFloat("OAR_TEST_FLOAT", 1))
	assert.True(t, GetEnvBool("OAR_TEST_BOOL", false))
	assert.True(t, GetEnvBool("OAR_TEST_BAD_BOOL", true))
	assert.Equal(t, "fallback", GetEnv("OAR_TEST_UNSET", "fallback"))
	assert.Equal(t, []string{"a"}, GetEnvList("OAR_TEST_UNSET", []string{"a"}))
}
