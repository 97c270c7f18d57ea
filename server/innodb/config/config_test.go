package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, 15, cfg.FKMaxCascadeDepth)
	require.Equal(t, int64(1<<20), cfg.OnlineLogBlockSize)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")
	content := "fk_max_cascade_depth = 20\npage_size = 8192\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 20, cfg.FKMaxCascadeDepth)
	require.Equal(t, 8192, cfg.PageSize)
	require.Equal(t, int64(1<<20), cfg.OnlineLogBlockSize)
}
