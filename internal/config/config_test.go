package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks defaults and duration validation for Config.
func TestValidate(t *testing.T) {
	t.Parallel()

	settings := new(Config)

	require.NoError(t, Validate(settings))
	require.Equal(t, DefaultTimeout, settings.Timeout)
	require.Equal(t, DefaultWatchPeriod, settings.WatchPeriod)
	require.Equal(t, DefaultClustersFilename, settings.ClustersFile)
	require.Equal(t, DefaultSigningKeyFilename, settings.SigningKey)

	// Negative timeout.
	settings = &Config{Timeout: -time.Second}

	require.Error(t, Validate(settings))
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	settings := &Config{
		Cluster:     "smf1:8081",
		Principal:   "mesos",
		SigningKey:  filepath.Join(dir, "key.pem"),
		SSHProxy:    "nest.example.com",
		Timeout:     5 * time.Second,
		HealthCheck: true,
	}

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings.Cluster, loaded.Cluster)
	require.Equal(t, settings.Principal, loaded.Principal)
	require.Equal(t, settings.SSHProxy, loaded.SSHProxy)
	require.Equal(t, 5*time.Second, loaded.Timeout)
	require.True(t, loaded.HealthCheck)

	// File exists.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestResolvePrincipal prefers the explicit value and falls back to the OS user.
func TestResolvePrincipal(t *testing.T) {
	t.Parallel()

	principal, err := ResolvePrincipal("www-data")
	require.NoError(t, err)
	require.Equal(t, "www-data", principal)

	principal, err = ResolvePrincipal("")
	require.NoError(t, err)
	require.NotEmpty(t, principal)
}
