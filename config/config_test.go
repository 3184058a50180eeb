package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "/user", cfg.ApplicationRoot)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 600*time.Second, cfg.AccessTokenLifetime)
	assert.Equal(t, 600*time.Second, cfg.AuthCodeLifetime)
	assert.Equal(t, "persistent_id", cfg.UserIdentityHeader)
	assert.True(t, cfg.AuditLog)
	require.Len(t, cfg.JWTKeyPairFiles, 1)
	assert.Equal(t, KeyPairFiles{
		KeyID:          "key-01",
		PublicKeyFile:  "keys/jwt_public_key.pem",
		PrivateKeyFile: "keys/jwt_private_key.pem",
	}, cfg.JWTKeyPairFiles[0])
}

func TestLoad_FileKeepsKeyOrder(t *testing.T) {
	path := writeConfig(t, `
ACCESS_TOKEN_LIFETIME: 5m
KEYS_ROOT: /srv/fence
JWT_KEYPAIR_FILES:
  - key_id: key-01
    public_key_file: keys/01_pub.pem
    private_key_file: keys/01_priv.pem
  - key_id: key-02
    public_key_file: /abs/02_pub.pem
    private_key_file: /abs/02_priv.pem
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.AccessTokenLifetime)
	paths := cfg.KeyPairPaths()
	require.Len(t, paths, 2)
	assert.Equal(t, "key-01", paths[0].KeyID)
	assert.Equal(t, filepath.Join("/srv/fence", "keys/01_pub.pem"), paths[0].PublicKeyFile)
	assert.Equal(t, "key-02", paths[1].KeyID)
	assert.Equal(t, "/abs/02_priv.pem", paths[1].PrivateKeyFile)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FENCE_HTTP_PORT", "9090")
	t.Setenv("FENCE_STORE_BACKEND", "redis")
	t.Setenv("FENCE_AUTH_CODE_LIFETIME", "30s")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, 30*time.Second, cfg.AuthCodeLifetime)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			StoreBackend:        BackendMemory,
			AccessTokenLifetime: time.Minute,
			AuthCodeLifetime:    time.Minute,
			UserIdentityHeader:  "persistent_id",
			JWTKeyPairFiles: []KeyPairFiles{
				{KeyID: "key-01", PublicKeyFile: "a", PrivateKeyFile: "b"},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.StoreBackend = "sqlite" }},
		{"zero token lifetime", func(c *Config) { c.AccessTokenLifetime = 0 }},
		{"zero code lifetime", func(c *Config) { c.AuthCodeLifetime = 0 }},
		{"no identity header", func(c *Config) { c.UserIdentityHeader = "" }},
		{"no keys", func(c *Config) { c.JWTKeyPairFiles = nil }},
		{"incomplete key", func(c *Config) { c.JWTKeyPairFiles[0].PrivateKeyFile = "" }},
		{"duplicate kid", func(c *Config) {
			c.JWTKeyPairFiles = append(c.JWTKeyPairFiles, c.JWTKeyPairFiles[0])
		}},
		{"negative rate", func(c *Config) { c.TokenRateLimit = -1 }},
	}

	base := valid()
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
