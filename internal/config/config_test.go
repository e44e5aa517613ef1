package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SAPORIA_SUPER_ADMIN_EMAIL", "admin@saporia.app")

	settings, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7655", settings.ListenAddr)
	assert.Equal(t, "/var/lib/saporia", settings.DataDir)
	assert.Equal(t, 8*time.Second, settings.FetchTimeout)
	assert.Equal(t, time.Minute, settings.ReevalInterval)
	assert.Equal(t, 5*time.Minute, settings.GlobalConfigTTL)
	assert.Equal(t, "info", settings.LogLevel)
}

func TestLoad_RequiresSuperAdminEmail(t *testing.T) {
	t.Setenv("SAPORIA_SUPER_ADMIN_EMAIL", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "super_admin_email")
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saporia.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9000"
data_dir: /tmp/saporia-test
super_admin_email: file-admin@saporia.app
fetch_timeout: 2s
log_level: debug
`), 0o644))

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", settings.ListenAddr)
	assert.Equal(t, "/tmp/saporia-test", settings.DataDir)
	assert.Equal(t, "file-admin@saporia.app", settings.SuperAdminEmail)
	assert.Equal(t, 2*time.Second, settings.FetchTimeout)
	assert.Equal(t, "debug", settings.LogLevel)
	// Values the file does not set keep their defaults.
	assert.Equal(t, time.Minute, settings.ReevalInterval)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saporia.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9000"
super_admin_email: file-admin@saporia.app
`), 0o644))

	t.Setenv("SAPORIA_LISTEN_ADDR", ":7001")
	t.Setenv("SAPORIA_SUPER_ADMIN_EMAIL", "env-admin@saporia.app")
	t.Setenv("SAPORIA_REEVAL_INTERVAL", "30s")

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7001", settings.ListenAddr)
	assert.Equal(t, "env-admin@saporia.app", settings.SuperAdminEmail)
	assert.Equal(t, 30*time.Second, settings.ReevalInterval)
}

func TestLoad_InvalidDurationKeepsPrevious(t *testing.T) {
	t.Setenv("SAPORIA_SUPER_ADMIN_EMAIL", "admin@saporia.app")
	t.Setenv("SAPORIA_FETCH_TIMEOUT", "not-a-duration")

	settings, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8*time.Second, settings.FetchTimeout)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	t.Setenv("SAPORIA_SUPER_ADMIN_EMAIL", "admin@saporia.app")

	settings, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, ":7655", settings.ListenAddr)
}

func TestLoad_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: [unterminated"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate_RejectsNonPositiveTimeouts(t *testing.T) {
	s := DefaultSettings()
	s.SuperAdminEmail = "admin@saporia.app"
	s.FetchTimeout = 0
	assert.Error(t, s.Validate())

	s = DefaultSettings()
	s.SuperAdminEmail = "admin@saporia.app"
	s.ReevalInterval = -time.Second
	assert.Error(t, s.Validate())
}
