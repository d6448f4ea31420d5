package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextEpisode(t *testing.T) {
	dir := t.TempDir()

	n, err := nextEpisode(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, name := range []string{"episode_0003_meta.json", "episode_0020_meta.json", "episode_0021_robot_log.csv", "notes.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
	n, err = nextEpisode(dir)
	require.NoError(t, err)
	assert.Equal(t, 21, n)
}
