package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "seagliders"), cfg.MissionRoot)
	assert.Equal(t, filepath.Join(home, ".config", "commlog", "commlog.db"), cfg.DBPath)
	assert.Empty(t, cfg.KnownFiles)
	assert.False(t, cfg.Ver65Names)
}

func TestLoadFromFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "commlog")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := `
mission_root = "~/missions"
db_path = "/var/lib/commlog/commlog.db"
known_files = ["cmdfile", "targets"]
ver65_names = true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "missions"), cfg.MissionRoot)
	assert.Equal(t, "/var/lib/commlog/commlog.db", cfg.DBPath)
	assert.Equal(t, []string{"cmdfile", "targets"}, cfg.KnownFiles)
	assert.True(t, cfg.Ver65Names)
}
