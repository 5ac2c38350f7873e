package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-ptree/common"
)

func missing(t *testing.T) string {
	return filepath.Join(t.TempDir(), "none.env")
}

func TestDefaults(t *testing.T) {
	c, err := Load(missing(t))
	require.NoError(t, err)
	assert.Equal(t, "ptree.img", c.DiskPath)
	assert.Equal(t, BackendFile, c.Backend)
	assert.Equal(t, uint64(65536), c.NumSectors)
	assert.Equal(t, uint64(1024), c.LogSectors)
	assert.Equal(t, uint64(512), c.MaxTrees)
	assert.Equal(t, 8, c.Workers)
	assert.Equal(t, "info", c.Logger().Level)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("PTREE_BACKEND", "mem")
	t.Setenv("PTREE_NUM_SECTORS", "4000")
	t.Setenv("PTREE_LOG_SECTORS", "64")
	t.Setenv("PTREE_LOG_FORMAT", "json")
	c, err := Load(missing(t))
	require.NoError(t, err)
	assert.Equal(t, BackendMem, c.Backend)
	assert.Equal(t, uint64(4000), c.NumSectors)
	assert.Equal(t, uint64(64), c.LogSectors)
	assert.Equal(t, "json", c.Logger().Format)
}

func TestDotEnv(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(f, []byte("PTREE_DISK_PATH=/tmp/x.img\nPTREE_WORKERS=3\n"), 0644))
	t.Setenv("PTREE_WORKERS", "5")
	t.Cleanup(func() { os.Unsetenv("PTREE_DISK_PATH") })

	c, err := Load(f)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.img", c.DiskPath)
	assert.Equal(t, 5, c.Workers, "the environment wins over the file")
}

func TestInvalid(t *testing.T) {
	t.Setenv("PTREE_BACKEND", "tape")
	_, err := Load(missing(t))
	assert.ErrorIs(t, err, common.ErrInvalidArgument)

	t.Setenv("PTREE_BACKEND", "mem")
	t.Setenv("PTREE_NUM_SECTORS", "10")
	_, err = Load(missing(t))
	assert.ErrorIs(t, err, common.ErrInvalidArgument)

	t.Setenv("PTREE_NUM_SECTORS", "4000")
	t.Setenv("PTREE_WORKERS", "0")
	_, err = Load(missing(t))
	assert.ErrorIs(t, err, common.ErrInvalidArgument)

	t.Setenv("PTREE_WORKERS", "many")
	_, err = Load(missing(t))
	assert.Error(t, err)
}

func TestGooseBackend(t *testing.T) {
	t.Setenv("PTREE_BACKEND", "goose")
	c, err := Load(missing(t))
	require.NoError(t, err)
	assert.Equal(t, BackendGoose, c.Backend)
}
