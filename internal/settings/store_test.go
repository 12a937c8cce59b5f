package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/camwatch/internal/frames"
)

func TestStore_MissingFileIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "camera_settings.yaml"))
	require.NoError(t, s.Load())
	assert.Equal(t, frames.RotateNone, s.Rotation("camera1"))
	assert.Empty(t, s.All())
}

func TestStore_LoadAndPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "camera_settings.yaml")
	s := NewStore(path)

	require.NoError(t, s.SetRotation("camera2", frames.Rotate90Left))
	assert.Equal(t, frames.Rotate90Left, s.Rotation("camera2"))

	fresh := NewStore(path)
	require.NoError(t, fresh.Load())
	assert.Equal(t, frames.Rotate90Left, fresh.Rotation("camera2"))
	assert.Equal(t, frames.RotateNone, fresh.Rotation("camera1"))

	assert.Error(t, s.SetRotation("camera2", frames.Rotation("sideways")))
	assert.Equal(t, frames.Rotate90Left, s.Rotation("camera2"))
}

func TestStore_InvalidRotationFallsBackToNone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camera_settings.yaml")
	yml := "cameras:\n  camera1:\n    rotation: \"45\"\n  camera3:\n    rotation: \"180\"\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0600))

	s := NewStore(path)
	require.NoError(t, s.Load())
	assert.Equal(t, frames.RotateNone, s.Rotation("camera1"))
	assert.Equal(t, frames.Rotate180, s.Rotation("camera3"))
}

func TestStore_ReloadIfChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camera_settings.yaml")
	s := NewStore(path)
	require.NoError(t, s.Load())

	changed, err := s.ReloadIfChanged()
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(path, []byte("cameras:\n  camera1:\n    rotation: 90_right\n"), 0600))
	changed, err = s.ReloadIfChanged()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, frames.Rotate90Right, s.Rotation("camera1"))
}

func TestStore_WatcherPicksUpEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camera_settings.yaml")
	s := NewStore(path)
	require.NoError(t, s.Load())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.startWatcher(ctx, 50*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("cameras:\n  camera4:\n    rotation: \"180\"\n"), 0600))

	assert.Eventually(t, func() bool {
		return s.Rotation("camera4") == frames.Rotate180
	}, 3*time.Second, 20*time.Millisecond)
}
