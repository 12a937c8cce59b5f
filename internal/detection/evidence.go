package detection

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/camwatch/internal/platform/paths"
)

const (
	timestampLayout = "20060102_150405"
	imageExt        = ".jpg"
	textExt         = ".txt"
)

var ErrEvidenceNotFound = errors.New("evidence not found")

// Record is one evidence write: the annotated image and the raw detector answer.
type Record struct {
	CameraID string
	Time     time.Time
	Image    []byte
	RawText  string
}

// EvidenceStore persists records. Save returns the image file name.
type EvidenceStore interface {
	Save(ctx context.Context, rec Record) (string, error)
}

// EvidenceEntry describes a stored image.
type EvidenceEntry struct {
	Filename  string    `json:"filename"`
	CameraID  string    `json:"camera_id"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
	RawText   string    `json:"raw_text,omitempty"`
}

// FileStore writes {camera}_{YYYYMMDD}_{HHMMSS}_{uuid}.jpg plus a sibling
// .txt into one directory, creating it on demand.
type FileStore struct {
	dir   string
	newID func() string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, newID: func() string { return uuid.New().String() }}
}

func (s *FileStore) Dir() string { return s.dir }

// EvidenceName builds the image file name for a record.
func EvidenceName(cameraID string, t time.Time, id string) string {
	return fmt.Sprintf("%s_%s_%s%s", cameraID, t.Format(timestampLayout), id, imageExt)
}

func (s *FileStore) Save(ctx context.Context, rec Record) (string, error) {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return "", fmt.Errorf("create evidence dir %s: %w", s.dir, err)
	}

	name := EvidenceName(rec.CameraID, rec.Time, s.newID())
	imgPath := filepath.Join(s.dir, name)
	if err := os.WriteFile(imgPath, rec.Image, 0640); err != nil {
		return "", fmt.Errorf("write evidence image: %w", err)
	}
	txtPath := strings.TrimSuffix(imgPath, imageExt) + textExt
	if err := os.WriteFile(txtPath, []byte(rec.RawText), 0640); err != nil {
		os.Remove(imgPath)
		return "", fmt.Errorf("write evidence text: %w", err)
	}
	return name, nil
}

// List returns the camera's images newest first.
func (s *FileStore) List(cameraID string) ([]EvidenceEntry, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read evidence dir: %w", err)
	}

	prefix := cameraID + "_"
	var out []EvidenceEntry
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, imageExt) {
			continue
		}
		ts, ok := parseEvidenceTime(strings.TrimPrefix(name, prefix))
		if !ok {
			continue
		}
		e := EvidenceEntry{Filename: name, CameraID: cameraID, Timestamp: ts}
		if info, err := de.Info(); err == nil {
			e.Size = info.Size()
		}
		if raw, err := os.ReadFile(filepath.Join(s.dir, strings.TrimSuffix(name, imageExt)+textExt)); err == nil {
			e.RawText = string(raw)
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Filename > out[j].Filename
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Path resolves a stored image name inside the directory.
func (s *FileStore) Path(filename string) (string, error) {
	if filename == "" || strings.ContainsAny(filename, `/\`) || !strings.HasSuffix(filename, imageExt) {
		return "", fmt.Errorf("%w: %q", ErrEvidenceNotFound, filename)
	}
	p, err := paths.SafeJoin(s.dir, filename)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("%w: %q", ErrEvidenceNotFound, filename)
	}
	return p, nil
}

// parseEvidenceTime reads "YYYYMMDD_HHMMSS_..." in local time.
func parseEvidenceTime(rest string) (time.Time, bool) {
	if len(rest) < len(timestampLayout) {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(timestampLayout, rest[:len(timestampLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
