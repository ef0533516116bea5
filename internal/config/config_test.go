package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/findcourse-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "https://findcourse.net.uz/api", c.GetBaseURL())
	require.Equal(t, 30*time.Second, c.GetRefreshLeeway())
	require.Equal(t, 10*time.Second, c.GetRefreshTimeout())
	require.Equal(t, uint32(5), c.GetBreakerFailures())
	require.Equal(t, 30*time.Second, c.GetBreakerCooldown())
	require.Equal(t, config.StorageDriverSQLite, c.GetStorageDriver())
	require.Equal(t, filepath.Join("./data", "session.db"), c.GetDatabaseFile())
	require.Equal(t, "DEV", c.GetEnv())
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("FINDCOURSE_API_URL", "http://localhost:9999")
	t.Setenv("SESSION_REFRESH_LEEWAY", "45s")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("FINDCOURSE_BREAKER_FAILURES", "0")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:9999", c.GetBaseURL())
	require.Equal(t, 45*time.Second, c.GetRefreshLeeway())
	require.Equal(t, config.StorageDriverMemory, c.GetStorageDriver())
	require.Zero(t, c.GetBreakerFailures())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
app_name: Test Client
api:
  base_url: http://api.test
  rate_limit: 2.5
session:
  refresh_leeway: 1m
storage:
  data_folder: /tmp/findcourse
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	c, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "Test Client", c.GetAppName())
	require.Equal(t, "http://api.test", c.GetBaseURL())
	require.Equal(t, 2.5, c.GetRateLimit())
	require.Equal(t, time.Minute, c.GetRefreshLeeway())
	require.Equal(t, filepath.Join("/tmp/findcourse", "session.db"), c.GetDatabaseFile())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
