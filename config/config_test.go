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
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "github-source.zip", cfg.DownloadFilename)
	assert.Equal(t, "/tmp", cfg.DownloadPath)
	assert.Equal(t, "/tmp/extracted", cfg.ExtractPath)
	assert.Equal(t, 3, cfg.Fetch.Retries)
	assert.Equal(t, 2*time.Second, cfg.Fetch.RetryWait)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	contents := `download-filename: my-tool.zip
download-path: /var/tmp
fetch:
  retries: 5
  retry-wait: 500ms
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ghinstall.yaml"), []byte(contents), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "my-tool.zip", cfg.DownloadFilename)
	assert.Equal(t, "/var/tmp", cfg.DownloadPath)
	// Unset keys keep their defaults.
	assert.Equal(t, "/tmp/extracted", cfg.ExtractPath)
	assert.Equal(t, 5, cfg.Fetch.Retries)
	assert.Equal(t, 500*time.Millisecond, cfg.Fetch.RetryWait)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ghinstall.yaml"), []byte("{not yaml"), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GHINSTALL_DOWNLOAD_PATH", "/scratch")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "/scratch", cfg.DownloadPath)
}
