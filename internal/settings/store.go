package settings

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/technosupport/camwatch/internal/frames"
	"gopkg.in/yaml.v3"
)

// CameraSettings is what survives across rescans for one camera.
type CameraSettings struct {
	Rotation frames.Rotation `yaml:"rotation" json:"rotation"`
}

type fileFormat struct {
	Cameras map[string]CameraSettings `yaml:"cameras"`
}

// Store keeps per-camera settings in a YAML file.
type Store struct {
	path string

	mu      sync.RWMutex
	cameras map[string]CameraSettings
	modTime time.Time
}

func NewStore(path string) *Store {
	return &Store{
		path:    path,
		cameras: make(map[string]CameraSettings),
	}
}

func (s *Store) Path() string { return s.path }

// Load replaces the in-memory settings with the file contents.
// A missing file yields empty settings.
func (s *Store) Load() error {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.cameras = make(map[string]CameraSettings)
		s.modTime = time.Time{}
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat settings: %w", err)
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse settings %s: %w", s.path, err)
	}

	cams := make(map[string]CameraSettings, len(f.Cameras))
	for id, cs := range f.Cameras {
		rot, err := frames.ParseRotation(string(cs.Rotation))
		if err != nil {
			log.Printf("[Settings] camera %s: %v, using none", id, err)
		}
		cams[id] = CameraSettings{Rotation: rot}
	}

	s.mu.Lock()
	s.cameras = cams
	s.modTime = info.ModTime()
	s.mu.Unlock()
	return nil
}

// ReloadIfChanged reloads only when the file's mtime moved.
func (s *Store) ReloadIfChanged() (bool, error) {
	info, err := os.Stat(s.path)
	var mt time.Time
	if err == nil {
		mt = info.ModTime()
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	s.mu.RLock()
	same := mt.Equal(s.modTime)
	s.mu.RUnlock()
	if same {
		return false, nil
	}
	return true, s.Load()
}

// Rotation returns the stored rotation, or none for unknown cameras.
func (s *Store) Rotation(cameraID string) frames.Rotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cs, ok := s.cameras[cameraID]; ok && cs.Rotation != "" {
		return cs.Rotation
	}
	return frames.RotateNone
}

// SetRotation updates one camera and rewrites the file.
func (s *Store) SetRotation(cameraID string, rot frames.Rotation) error {
	if !rot.Valid() {
		return fmt.Errorf("invalid rotation %q", rot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]CameraSettings, len(s.cameras)+1)
	for id, cs := range s.cameras {
		next[id] = cs
	}
	cs := next[cameraID]
	cs.Rotation = rot
	next[cameraID] = cs

	if err := s.writeLocked(next); err != nil {
		return err
	}
	s.cameras = next
	return nil
}

func (s *Store) All() map[string]CameraSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]CameraSettings, len(s.cameras))
	for id, cs := range s.cameras {
		out[id] = cs
	}
	return out
}

func (s *Store) writeLocked(cams map[string]CameraSettings) error {
	raw, err := yaml.Marshal(fileFormat{Cameras: cams})
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0640); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
	}
	return nil
}
