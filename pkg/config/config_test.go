package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suniljakhar/mojop2p/pkg/config"
)

func TestLoadDefaults(t *testing.T) {
	opts, err := config.Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1400, opts.MSS)
	assert.Equal(t, 2, opts.AttemptBudget)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mojo.yml")
	require.NoError(t, os.WriteFile(path, []byte("mss: 512\nattemptBudget: 4\n"), 0o644))

	opts, err := config.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 512, opts.MSS)
	assert.Equal(t, 4, opts.AttemptBudget)
	assert.Equal(t, 15, opts.ValidationTimeoutS)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	opts, err := config.Load(context.Background(), filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, 1400, opts.MSS)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mojo.yml")
	require.NoError(t, os.WriteFile(path, []byte("mss: 512\n"), 0o644))
	t.Setenv("MOJO_MSS", "900")

	opts, err := config.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 900, opts.MSS)
}
