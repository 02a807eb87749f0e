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
	t.Chdir(t.TempDir())
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, 2*time.Second, c.Storage.LockTimeout)
	assert.Equal(t, "fs", c.Blob.Driver)
	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.True(t, c.Metrics.Enabled)
	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "lotledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  env: dev
  timezone: Europe/Berlin
storage:
  driver: sqlite
  sqlite_path: /var/lib/lotledger/ledger.db
  lock_timeout: 500ms
blob:
  driver: s3
  s3:
    bucket: custody
    region: eu-central-1
`), 0o600))
	t.Setenv("LOTLEDGER_STORAGE_DRIVER", "postgres")
	t.Setenv("LOTLEDGER_STORAGE_POSTGRES_DSN", "postgres://ledger@db/lotledger")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dev", c.App.Env)
	assert.Equal(t, "postgres", c.Storage.Driver)
	assert.Equal(t, "postgres://ledger@db/lotledger", c.Storage.PostgresDSN)
	assert.Equal(t, 500*time.Millisecond, c.Storage.LockTimeout)
	assert.Equal(t, "custody", c.Blob.S3.Bucket)
	assert.Equal(t, "eu-central-1", c.Blob.S3.Region)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOTLEDGER_HTTP_ADDR=127.0.0.1:9090\n"), 0o600))
	t.Setenv("LOTLEDGER_HTTP_ADDR", "")
	require.NoError(t, os.Unsetenv("LOTLEDGER_HTTP_ADDR"))

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", c.HTTP.Addr)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Chdir(t.TempDir())
	cases := map[string]map[string]string{
		"storage driver": {"LOTLEDGER_STORAGE_DRIVER": "mysql"},
		"blob driver":    {"LOTLEDGER_BLOB_DRIVER": "ftp"},
		"s3 bucket":      {"LOTLEDGER_BLOB_DRIVER": "s3"},
		"timezone":       {"LOTLEDGER_APP_TIMEZONE": "Mars/Olympus"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("does-not-exist.yaml")
	require.Error(t, err)
}
