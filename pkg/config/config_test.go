package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	opts := Default()
	require.Equal(t, DefaultAuthTimeout, opts.AuthTimeout)
	require.Equal(t, 0, opts.QRMaxRetries)
	require.False(t, opts.TakeoverOnConflict)
	require.Equal(t, "local", opts.CacheType)
	require.True(t, opts.Headless)
	require.NoError(t, opts.Validate())
}

func TestNormalizeFillsEmptyFields(t *testing.T) {
	opts := Options{}.Normalize()
	require.Equal(t, DefaultAuthTimeout, opts.AuthTimeout)
	require.Equal(t, DefaultUserAgent, opts.UserAgent)
	require.Equal(t, DefaultCacheType, opts.CacheType)
	require.Equal(t, DefaultDataPath, opts.DataPath)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
client_id: primary
auth_timeout: 30s
qr_max_retries: 5
takeover_on_conflict: true
takeover_timeout: 10s
cache_type: none
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	opts, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "primary", opts.ClientID)
	require.Equal(t, 30*time.Second, opts.AuthTimeout.Std())
	require.Equal(t, 5, opts.QRMaxRetries)
	require.True(t, opts.TakeoverOnConflict)
	require.Equal(t, 10*time.Second, opts.TakeoverTimeout.Std())
	require.Equal(t, "none", opts.CacheType)
	// defaults still applied for fields the file leaves unset
	require.Equal(t, DefaultUserAgent, opts.UserAgent)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	opts := Default()
	opts.CacheType = "redis"
	require.Error(t, opts.Validate())

	opts = Default()
	opts.QRMaxRetries = -1
	require.Error(t, opts.Validate())

	opts = Default()
	opts.TakeoverTimeout = Duration(-time.Second)
	require.Error(t, opts.Validate())
}
