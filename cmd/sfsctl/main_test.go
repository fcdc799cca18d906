package main

import (
	"bytes"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/sfs"
)

func run(t *testing.T, image string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&Config{Image: image}, &out).Run(append([]string{"sfsctl"}, args...))
	return out.String(), err
}

func mustRun(t *testing.T, image string, args ...string) string {
	t.Helper()
	out, err := run(t, image, args...)
	require.NoError(t, err, "sfsctl %v", args)
	return out
}

func TestWriteCat(t *testing.T) {
	image := filepath.Join(t.TempDir(), "img")
	assert.Contains(t, mustRun(t, image, "format"), "formatted "+image)

	assert.Equal(t, "wrote 5 bytes to a.txt\n", mustRun(t, image, "write", "a.txt", "hello"))
	mustRun(t, image, "write", "a.txt", " world")
	assert.Equal(t, "hello world", mustRun(t, image, "cat", "a.txt"))

	mustRun(t, image, "write", "--at", "0", "a.txt", "J")
	assert.Equal(t, "Jello world", mustRun(t, image, "cat", "a.txt"))

	long := strings.Repeat("0123456789", 150)
	mustRun(t, image, "write", "long", long)
	assert.Equal(t, long, mustRun(t, image, "cat", "long"))

	ls := mustRun(t, image, "ls")
	assert.Contains(t, ls, "a.txt")
	assert.Contains(t, ls, " 1500\n")
}

func TestRemoveAndCheck(t *testing.T) {
	image := filepath.Join(t.TempDir(), "img")
	mustRun(t, image, "format")
	mustRun(t, image, "write", "gone", "bye")
	mustRun(t, image, "rm", "gone")

	_, err := run(t, image, "cat", "gone")
	assert.Truef(t, errors.Is(err, common.ErrNotFound), "got %v", err)
	_, err = run(t, image, "rm", "gone")
	assert.Truef(t, errors.Is(err, common.ErrNotFound), "got %v", err)

	var r sfs.Report
	require.NoError(t, yaml.Unmarshal([]byte(mustRun(t, image, "check")), &r))
	assert.Empty(t, r.Problems)
	assert.Equal(t, []common.Inum{1}, r.OrphanInodes)
}

func TestInfo(t *testing.T) {
	image := filepath.Join(t.TempDir(), "img")
	mustRun(t, image, "--dir-blocks", "2", "format")
	mustRun(t, image, "write", "f", "x")

	var info sfs.Info
	require.NoError(t, yaml.Unmarshal([]byte(mustRun(t, image, "info")), &info))
	assert.Equal(t, common.NumBlocks, info.NumBlocks)
	assert.Equal(t, common.NDataBlocks-3, info.FreeBlocks)
	assert.Equal(t, uint64(1), info.Files)
	assert.Equal(t, 2*common.DIRENTBLK, info.DirCapacity)
	assert.Equal(t, 0, info.OpenFiles)
}

func TestBadArgs(t *testing.T) {
	image := filepath.Join(t.TempDir(), "img")
	mustRun(t, image, "format")
	_, err := run(t, image, "write", "only-name")
	assert.Error(t, err)
	_, err = run(t, image, "write", strings.Repeat("n", 40), "x")
	assert.Truef(t, errors.Is(err, common.ErrNameTooLong), "got %v", err)
	_, err = run(t, image, "--dir-blocks", "13", "format")
	assert.Truef(t, errors.Is(err, common.ErrOutOfRange), "got %v", err)
}

func TestMissingImage(t *testing.T) {
	image := filepath.Join(t.TempDir(), "typo")
	_, err := run(t, image, "write", "a", "x")
	assert.Truef(t, errors.Is(err, common.ErrDevice), "got %v", err)
	_, err = os.Stat(image)
	assert.Truef(t, os.IsNotExist(err), "image should not be created, got %v", err)
}

func TestUnformattedImage(t *testing.T) {
	image := filepath.Join(t.TempDir(), "blank")
	d, err := disk.Format(image, common.BlockSize, common.NumBlocks)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	assert.Equal(t, "", mustRun(t, image, "ls"))
	_, err = run(t, image, "--verify", "ls")
	assert.Truef(t, errors.Is(err, common.ErrCorrupt), "got %v", err)
}

func unsetenv(t *testing.T, key string) {
	if old, ok := os.LookupEnv(key); ok {
		t.Cleanup(func() { os.Setenv(key, old) })
	}
	os.Unsetenv(key)
}

func TestLoadConfig(t *testing.T) {
	for _, key := range []string{"SFS_CONFIG_FILE", "SFS_IMAGE", "SFS_DEBUG", "SFS_DIR_BLOCKS", "SFS_VERIFY"} {
		unsetenv(t, key)
	}
	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, defaultImage, c.Image)

	file := filepath.Join(t.TempDir(), "sfs.yaml")
	require.NoError(t, ioutil.WriteFile(file, []byte("image: from-file\ndirBlocks: 4\n"), 0644))
	t.Setenv("SFS_CONFIG_FILE", file)
	t.Setenv("SFS_DEBUG", "3")
	c, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, &Config{Image: "from-file", Debug: 3, DirBlocks: 4}, c)

	t.Setenv("SFS_IMAGE", "from-env")
	c, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Image)

	require.NoError(t, ioutil.WriteFile(file, []byte("bogus: 1\n"), 0644))
	_, err = LoadConfig()
	assert.Error(t, err)
}
