package platform_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/canopy/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadConfig_Formats(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "canopy.yaml")
	writeFile(t, yamlPath, `
workspace: "42"
relay:
  url: http://relay:4000
  connect_timeout: 2s
pages:
  dir: pages
  pattern: "**/*.md"
client:
  name: ana
session:
  sync_timeout: 500ms
log:
  level: debug
  format: json
`)

	tomlPath := filepath.Join(dir, "canopy.toml")
	writeFile(t, tomlPath, `
workspace = "42"

[relay]
url = "http://relay:4000"
connect_timeout = "2s"

[pages]
dir = "pages"
pattern = "**/*.md"

[client]
name = "ana"

[session]
sync_timeout = "500ms"

[log]
level = "debug"
format = "json"
`)

	for _, path := range []string{yamlPath, tomlPath} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			cfg, err := platform.LoadConfig(path)
			require.NoError(t, err)

			assert.Equal(t, "42", cfg.Workspace)
			assert.Equal(t, "http://relay:4000", cfg.Relay.URL)
			assert.Equal(t, ":4000", cfg.Relay.Addr, "unset fields keep defaults")
			assert.Equal(t, filepath.Join(dir, "pages"), cfg.Pages.Dir)
			assert.Equal(t, "**/*.md", cfg.Pages.Pattern)
			assert.Equal(t, "ana", cfg.Client.Name)
			assert.Equal(t, "500ms", cfg.Session.SyncTimeout)
			assert.Equal(t, "json", cfg.Log.Format)
		})
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"canopy.ini":   "workspace=1",
		"broken.yaml":  "workspace: [",
		"timeout.yaml": "session:\n  sync_timeout: soon\n",
		"level.toml":   "[log]\nlevel = \"loud\"\n",
		"format.yaml":  "log:\n  format: xml\n",
		"connect.toml": "[relay]\nconnect_timeout = \"x\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			writeFile(t, path, content)
			_, err := platform.LoadConfig(path)
			assert.Error(t, err)
		})
	}

	_, err := platform.LoadConfig(filepath.Join(dir, "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_OptionsOpenSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "canopy.yaml")
	writeFile(t, path, "workspace: team\nclient:\n  id: fixed\n")

	cfg, err := platform.LoadConfig(path)
	require.NoError(t, err)

	s, err := platform.Open(context.Background(), cfg.Options()...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	assert.Equal(t, "fixed", s.ClientID())
	assert.Equal(t, "flow-room-team", s.Room())
}

func TestConfig_Logger(t *testing.T) {
	var buf bytes.Buffer
	cfg := platform.DefaultConfig()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	level, err := platform.ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}
