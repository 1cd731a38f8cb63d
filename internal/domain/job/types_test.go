package job

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestConfigValidate covers the mandatory job fields.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	var missing *Config
	require.ErrorIs(t, missing.Validate(), ErrNoConfig)
	require.ErrorIs(t, (&Config{Name: "web", Shards: 1}).Validate(), ErrRoleRequired)
	require.ErrorIs(t, (&Config{Role: "www", Shards: 1}).Validate(), ErrNameRequired)
	require.ErrorIs(t, (&Config{Role: "www", Name: "web"}).Validate(), ErrNoShards)
	require.NoError(t, (&Config{Role: "www", Name: "web", Shards: 2}).Validate())
}

// TestLoadConfig reads a job description from YAML.
func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "web.yaml")
	contents := `
role: www
name: web
shards: 3
command: ./web --port 8080
resources:
  cpu: 0.5
  ram_mb: 256
  disk_mb: 1024
filesystem_path: /apps/www/web.zip
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "www/web", cfg.Key())
	require.Equal(t, []int{0, 1, 2}, cfg.ShardIDs())
	require.InDelta(t, 0.5, cfg.Resources.CPU, 1e-9)
	require.Equal(t, int64(256), cfg.Resources.RAMMB)
	require.Equal(t, "/apps/www/web.zip", cfg.FilesystemPath)
}

// TestShardSet checks set semantics and ordering.
func TestShardSet(t *testing.T) {
	t.Parallel()

	s := NewShardSet(7, 3)
	require.False(t, s.Empty())
	require.True(t, s.Contains(3))
	require.False(t, s.Contains(4))

	s.Add(5)
	require.Equal(t, []int{3, 5, 7}, s.Sorted())
	require.True(t, NewShardSet().Empty())
}

// TestParseTaskStatus accepts known states case-insensitively.
func TestParseTaskStatus(t *testing.T) {
	t.Parallel()

	status, err := ParseTaskStatus(" running ")
	require.NoError(t, err)
	require.Equal(t, TaskRunning, status)
	require.False(t, status.IsTerminal())
	require.True(t, TaskKilled.IsTerminal())

	_, err = ParseTaskStatus("sleeping")
	require.ErrorIs(t, err, ErrUnknownTaskStatus)
}

// TestOutcomeHelpers checks the derived outcome helpers.
func TestOutcomeHelpers(t *testing.T) {
	t.Parallel()

	o := Rejected("bad config")
	require.Equal(t, ResponseInvalidRequest, o.Code)
	require.Equal(t, "INVALID_REQUEST: bad config", o.String())

	require.True(t, (&Response{Code: ResponseOK}).OK())
	require.False(t, (&Response{Code: ResponseWarning}).OK())
	require.False(t, (*Response)(nil).OK())
}
