package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRoots(t *testing.T) {
	t.Setenv("CAMWATCH_DATA_ROOT", "")
	assert.Equal(t, DefaultDataRoot, ResolveDataRoot())

	t.Setenv("CAMWATCH_DATA_ROOT", "/srv/camwatch")
	assert.Equal(t, "/srv/camwatch", ResolveDataRoot())
	assert.Equal(t, filepath.Join("/srv/camwatch", "detected_persons"), ResolveEvidenceDir())
	assert.Equal(t, filepath.Join("/srv/camwatch", "config", "camwatch.yaml"), ResolveConfigPath(""))
	assert.Equal(t, "custom.yaml", ResolveConfigPath("custom.yaml"))
}

func TestSafeJoin(t *testing.T) {
	base := t.TempDir()

	cases := []struct {
		name     string
		elements []string
		valid    bool
	}{
		{"normal", []string{"camera1_20240101_101010_x.jpg"}, true},
		{"parent", []string{"..", "other"}, false},
		{"nested_parent", []string{"logs", "..", "..", "secrets"}, false},
		{"absolute", []string{"/etc/passwd"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := SafeJoin(base, tc.elements...)
			if tc.valid {
				assert.NoError(t, err)
				assert.Contains(t, res, base)
			} else {
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), "traversal")
				}
			}
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	tmpRoot := t.TempDir()
	t.Setenv("CAMWATCH_DATA_ROOT", tmpRoot)

	err := EnsureDirs()
	assert.NoError(t, err)

	for _, sub := range []string{"config", "logs", "detected_persons"} {
		_, err := os.Stat(filepath.Join(tmpRoot, sub))
		assert.NoError(t, err, "subdirectory %s should exist", sub)
	}
}
