package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.APIURL)
	assert.Equal(t, "default", cfg.Profile)
	assert.Equal(t, filepath.Join(dir, "callit.db"), cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.False(t, cfg.ShowProfanity)
	assert.Equal(t, 5, cfg.MaxDepth)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	cfg := Default(dir)
	cfg.APIURL = "https://api.example.com/"
	cfg.Timeout = 5 * time.Second
	cfg.PageSize = 50
	require.NoError(t, Write(dir, cfg))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", loaded.APIURL)
	assert.Equal(t, 5*time.Second, loaded.Timeout)
	assert.Equal(t, 50, loaded.PageSize)

	t.Setenv("CALLIT_API_URL", "http://other:9000")
	t.Setenv("CALLIT_SHOW_PROFANITY", "true")
	t.Setenv("CALLIT_TIMEOUT", "not-a-duration")
	loaded, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://other:9000", loaded.APIURL)
	assert.True(t, loaded.ShowProfanity)
	assert.Equal(t, 5*time.Second, loaded.Timeout)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte("api_url: [\n"), 0600))
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CALLIT_TEST_ONLY_VAR=from-file\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("CALLIT_TEST_ONLY_VAR") })
	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("CALLIT_TEST_ONLY_VAR"))
}
