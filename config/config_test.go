package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9300", cfg.Port)
	assert.Equal(t, "http://localhost:5000/api", cfg.APIBaseURL)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2*time.Minute, cfg.UploadTimeout)
	assert.Equal(t, TokenStoreFile, cfg.TokenStore)
	assert.Equal(t, 60*time.Second, cfg.CacheStaleTime)
	assert.Equal(t, 5*time.Minute, cfg.CacheGCTime)
	assert.Equal(t, 256, cfg.CacheMaxIdle)
	assert.Equal(t, 3, cfg.CacheQueryRetries)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FACADE_PORT", "8080")
	t.Setenv("API_BASE_URL", "https://api.postraft.test/api")
	t.Setenv("API_REQUEST_TIMEOUT", "10s")
	t.Setenv("TOKEN_STORE", "sqlite")
	t.Setenv("CACHE_STALE_TIME", "2m")
	t.Setenv("CACHE_QUERY_RETRIES", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://api.postraft.test/api", cfg.APIBaseURL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, TokenStoreSQLite, cfg.TokenStore)
	assert.Equal(t, 2*time.Minute, cfg.CacheStaleTime)
	assert.Equal(t, 0, cfg.CacheQueryRetries)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("API_REQUEST_TIMEOUT", "invalid")

	_, err := Load()

	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:           "9300",
			APIBaseURL:     "http://localhost:5000/api",
			TokenStore:     TokenStoreMemory,
			CacheStaleTime: time.Minute,
			CacheGCTime:    5 * time.Minute,
			CacheMaxIdle:   10,
			RateLimit:      1,
			RateBurst:      1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing port", mutate: func(c *Config) { c.Port = "" }, wantErr: true},
		{name: "missing api url", mutate: func(c *Config) { c.APIBaseURL = "" }, wantErr: true},
		{name: "relative api url", mutate: func(c *Config) { c.APIBaseURL = "/api" }, wantErr: true},
		{name: "unknown token store", mutate: func(c *Config) { c.TokenStore = "redis" }, wantErr: true},
		{name: "zero gc time", mutate: func(c *Config) { c.CacheGCTime = 0 }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.CacheQueryRetries = -1 }, wantErr: true},
		{name: "zero rate", mutate: func(c *Config) { c.RateLimit = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ResolveTokenPath(t *testing.T) {
	cfg := &Config{TokenStore: TokenStoreFile, TokenPath: "/tmp/custom-token"}

	path, err := cfg.ResolveTokenPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom-token", path)

	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("HOME", home)
	cfg = &Config{TokenStore: TokenStoreSQLite}

	path, err = cfg.ResolveTokenPath()
	require.NoError(t, err)
	assert.Equal(t, "session.db", filepath.Base(path))
	assert.Equal(t, "postraft", filepath.Base(filepath.Dir(path)))
}
