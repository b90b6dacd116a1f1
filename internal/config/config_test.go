package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 5000, c.Port)
	assert.Equal(t, "memory", c.StoreDriver)
}

func TestLoadLayersFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: staging
port: 7000
store_driver: sqlite
database_url: /tmp/dispatch.db
request_timeout: 3s
cors_origins: ["https://admin.example.com"]
`), 0o600))
	t.Setenv("DISPATCH_PORT", "7100")
	t.Setenv("DISPATCH_JWT_SECRET", "s3cret")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", c.Env)
	assert.Equal(t, 7100, c.Port)
	assert.Equal(t, "sqlite", c.StoreDriver)
	assert.Equal(t, 3*time.Second, c.RequestTimeout)
	assert.Equal(t, []string{"https://admin.example.com"}, c.CORSOrigins)
	assert.Equal(t, "s3cret", c.JWTSecret)
}

func TestValidate(t *testing.T) {
	c := Default()
	c.StoreDriver = "postgres"
	assert.Error(t, c.Validate())
	c.DatabaseURL = "postgres://localhost/dispatch"
	assert.NoError(t, c.Validate())

	c = Default()
	c.StoreDriver = "mongo"
	assert.Error(t, c.Validate())

	c = Default()
	c.Port = 0
	assert.Error(t, c.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvCORSOrigins(t *testing.T) {
	t.Setenv("DISPATCH_CORS_ORIGINS", "https://a.example, ,https://b.example")
	c := EnvDefaults()
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins)
}
