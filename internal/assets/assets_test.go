package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEnsurePingAsset_Creates(t *testing.T) {
	dir := Dir(t.TempDir())

	file, err := EnsurePingAsset(dir, "/assets/ping.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ping.txt"), file)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, pingContent, string(data))
}

func TestEnsurePingAsset_KeepsExisting(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "nested", "beat.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("custom"), 0o644))

	core, logs := observer.New(zap.InfoLevel)
	got, err := EnsurePingAsset(dir, "/assets/nested/beat.txt", zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, file, got)

	entries := logs.FilterMessage("ping asset already exists, skipping").All()
	require.Len(t, entries, 1)
	assert.Equal(t, file, entries[0].ContextMap()["path"])

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "custom", string(data))
}

func TestEnsurePingAsset_IgnoresRemoteTargets(t *testing.T) {
	dir := t.TempDir()

	for _, target := range []string{"https://example.com/assets/ping.txt", "/healthz"} {
		got, err := EnsurePingAsset(dir, target, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEnsurePingAsset_RejectsDirectory(t *testing.T) {
	_, err := EnsurePingAsset(t.TempDir(), "/assets/", nil)
	assert.Error(t, err)
}
