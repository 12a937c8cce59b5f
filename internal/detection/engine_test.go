package detection

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/camwatch/internal/cameras"
	"github.com/technosupport/camwatch/internal/detector"
	"github.com/technosupport/camwatch/internal/events"
	"github.com/technosupport/camwatch/internal/frames"
)

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: 80, B: uint8(y * 60), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type fakeLookup struct {
	url string
	rot frames.Rotation
	err error
}

func (f *fakeLookup) Lookup(ctx context.Context, id string) (cameras.Descriptor, error) {
	if f.err != nil {
		return cameras.Descriptor{}, f.err
	}
	return cameras.Descriptor{ID: id, CaptureURL: f.url, Rotation: f.rot}, nil
}

type scriptedDetector struct {
	mu       sync.Mutex
	readings []bool
	errs     []error
	calls    int
}

func (d *scriptedDetector) Name() string { return "scripted" }

func (d *scriptedDetector) Detect(ctx context.Context, img []byte) (detector.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	if i < len(d.errs) && d.errs[i] != nil {
		return detector.Result{}, d.errs[i]
	}
	present := i < len(d.readings) && d.readings[i]
	raw := "no"
	if present {
		raw = "yes"
	}
	return detector.Result{Present: present, Annotated: img, RawText: raw}, nil
}

type memoryStore struct {
	mu    sync.Mutex
	saved []Record
	fail  bool
}

func (m *memoryStore) Save(ctx context.Context, rec Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", errors.New("disk full")
	}
	m.saved = append(m.saved, rec)
	return EvidenceName(rec.CameraID, rec.Time, "id"), nil
}

type recordingPublisher struct {
	got []events.PresenceEvent
}

func (r *recordingPublisher) Publish(ctx context.Context, ev events.PresenceEvent) {
	r.got = append(r.got, ev)
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func captureServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestEngine(lookup CameraLookup, det detector.Detector, store EvidenceStore, clock *time.Time) *Engine {
	e := NewEngine(EngineConfig{CaptureTimeout: time.Second, MinSaveInterval: time.Minute}, lookup,
		frames.NewTransformer(90), det, store, quietLogger())
	e.now = func() time.Time { return *clock }
	return e
}

func TestEngine_SavesOnReadingsOneAndSeven(t *testing.T) {
	srv := captureServer(t, testJPEG(t))
	det := &scriptedDetector{readings: []bool{true, true, true, true, true, true, true}}
	store := &memoryStore{}
	clock := t0
	e := newTestEngine(&fakeLookup{url: srv.URL}, det, store, &clock)

	for i := 0; i < 7; i++ {
		clock = t0.Add(time.Duration(i) * 10 * time.Second)
		require.NoError(t, e.CheckCamera(context.Background(), "camera1"))
	}

	require.Len(t, store.saved, 2)
	assert.Equal(t, t0, store.saved[0].Time)
	assert.Equal(t, t0.Add(60*time.Second), store.saved[1].Time)
	assert.Equal(t, "yes", store.saved[0].RawText)

	s, ok := e.State("camera1")
	require.True(t, ok)
	assert.True(t, s.Present)
	assert.Equal(t, 1, s.DetectionCount)
	require.NotNil(t, s.LastImageSaveTime)
	assert.Equal(t, t0.Add(60*time.Second), *s.LastImageSaveTime)
}

func TestEngine_FailedSaveLeavesSaveTimeUnset(t *testing.T) {
	srv := captureServer(t, testJPEG(t))
	det := &scriptedDetector{readings: []bool{true}}
	clock := t0
	e := newTestEngine(&fakeLookup{url: srv.URL}, det, &memoryStore{fail: true}, &clock)

	require.NoError(t, e.CheckCamera(context.Background(), "camera1"))
	s, _ := e.State("camera1")
	assert.True(t, s.Present)
	assert.Nil(t, s.LastImageSaveTime)
}

func TestEngine_CaptureTimeoutLeavesStateAndReleasesLock(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	det := &scriptedDetector{readings: []bool{true}}
	clock := t0
	e := newTestEngine(&fakeLookup{url: srv.URL}, det, &memoryStore{}, &clock)
	e.cfg.CaptureTimeout = 50 * time.Millisecond

	err := e.CheckCamera(context.Background(), "camera1")
	require.Error(t, err)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepCapture, stepErr.Step)

	_, ok := e.State("camera1")
	assert.False(t, ok)
	assert.Equal(t, 0, det.calls)

	lock := e.locks.Get("camera1")
	require.True(t, lock.TryLock())
	lock.Unlock()
}

func TestEngine_Non2xxCaptureIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	clock := t0
	e := newTestEngine(&fakeLookup{url: srv.URL}, &scriptedDetector{}, &memoryStore{}, &clock)
	err := e.CheckCamera(context.Background(), "camera1")
	assert.ErrorIs(t, err, ErrCaptureStatus)
	_, ok := e.State("camera1")
	assert.False(t, ok)
}

func TestEngine_LookupFailure(t *testing.T) {
	clock := t0
	e := newTestEngine(&fakeLookup{err: cameras.ErrCameraNotFound}, &scriptedDetector{}, &memoryStore{}, &clock)
	err := e.CheckCamera(context.Background(), "camera9")
	assert.ErrorIs(t, err, cameras.ErrCameraNotFound)
}

func TestEngine_DetectorErrorCountsAsAbsent(t *testing.T) {
	srv := captureServer(t, testJPEG(t))
	det := &scriptedDetector{
		readings: []bool{true, false},
		errs:     []error{nil, detector.ErrDetectorUnavailable},
	}
	pub := &recordingPublisher{}
	clock := t0
	e := newTestEngine(&fakeLookup{url: srv.URL}, det, &memoryStore{}, &clock)
	e.SetPublisher(pub)

	require.NoError(t, e.CheckCamera(context.Background(), "camera1"))
	clock = t0.Add(20 * time.Second)
	require.NoError(t, e.CheckCamera(context.Background(), "camera1"))

	s, _ := e.State("camera1")
	assert.False(t, s.Present)
	assert.Equal(t, 20*time.Second, s.TotalDetectionTime)

	require.Len(t, pub.got, 2)
	assert.Equal(t, "appeared", pub.got[0].Transition)
	assert.True(t, pub.got[0].Present)
	assert.Equal(t, "left", pub.got[1].Transition)
	assert.Equal(t, 20.0, pub.got[1].SessionSeconds)
}

func TestEngine_RotatesBeforeDetection(t *testing.T) {
	srv := captureServer(t, testJPEG(t))
	var seen image.Rectangle
	det := detectorFunc(func(img []byte) (detector.Result, error) {
		decoded, err := jpeg.Decode(bytes.NewReader(img))
		if err != nil {
			return detector.Result{}, err
		}
		seen = decoded.Bounds()
		return detector.Result{RawText: "no"}, nil
	})
	clock := t0
	e := newTestEngine(&fakeLookup{url: srv.URL, rot: frames.Rotate90Right}, det, &memoryStore{}, &clock)

	require.NoError(t, e.CheckCamera(context.Background(), "camera1"))
	assert.Equal(t, 4, seen.Dx())
	assert.Equal(t, 8, seen.Dy())
}

type detectorFunc func(img []byte) (detector.Result, error)

func (f detectorFunc) Name() string { return "func" }
func (f detectorFunc) Detect(ctx context.Context, img []byte) (detector.Result, error) {
	return f(img)
}

func TestEngine_SnapshotsIncludeRunningSession(t *testing.T) {
	srv := captureServer(t, testJPEG(t))
	clock := t0
	e := newTestEngine(&fakeLookup{url: srv.URL}, &scriptedDetector{readings: []bool{true}}, &memoryStore{}, &clock)
	require.NoError(t, e.CheckCamera(context.Background(), "camera2"))

	clock = t0.Add(45 * time.Second)
	snaps := e.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, "camera2", snaps[0].CameraID)
	assert.Equal(t, 45.0, snaps[0].TotalDetectionSeconds)
	require.NotNil(t, snaps[0].FirstDetection)
	assert.Equal(t, t0, *snaps[0].FirstDetection)
}

func TestEngine_WritesEvidenceFiles(t *testing.T) {
	srv := captureServer(t, testJPEG(t))
	dir := t.TempDir()
	clock := t0
	e := newTestEngine(&fakeLookup{url: srv.URL}, &scriptedDetector{readings: []bool{true}}, NewFileStore(dir), &clock)

	require.NoError(t, e.CheckCamera(context.Background(), "camera1"))
	matches, err := filepath.Glob(filepath.Join(dir, "camera1_20240501_120000_*.jpg"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	txt, err := os.ReadFile(matches[0][:len(matches[0])-len(".jpg")] + ".txt")
	require.NoError(t, err)
	assert.Equal(t, "yes", string(txt))
}

// pathLookup points each camera at its own capture path so the detector can
// tell which camera an image came from.
type pathLookup struct{ base string }

func (l pathLookup) Lookup(ctx context.Context, id string) (cameras.Descriptor, error) {
	return cameras.Descriptor{ID: id, CaptureURL: l.base + "/" + id, Rotation: frames.RotateNone}, nil
}

// gatedDetector blocks every call until released and records how many calls
// were in flight per camera and overall.
type gatedDetector struct {
	mu        sync.Mutex
	active    map[string]int
	peak      map[string]int
	inFlight  int
	peakTotal int

	entered chan string
	release chan struct{}
}

func newGatedDetector() *gatedDetector {
	return &gatedDetector{
		active:  map[string]int{},
		peak:    map[string]int{},
		entered: make(chan string, 8),
		release: make(chan struct{}),
	}
}

func (d *gatedDetector) Name() string { return "gated" }

func (d *gatedDetector) Detect(ctx context.Context, img []byte) (detector.Result, error) {
	id := string(img)

	d.mu.Lock()
	d.active[id]++
	d.inFlight++
	d.peak[id] = max(d.peak[id], d.active[id])
	d.peakTotal = max(d.peakTotal, d.inFlight)
	d.mu.Unlock()

	d.entered <- id
	<-d.release

	d.mu.Lock()
	d.active[id]--
	d.inFlight--
	d.mu.Unlock()
	return detector.Result{Present: true, Annotated: img, RawText: "yes"}, nil
}

func (d *gatedDetector) peaks() (map[string]int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.peak))
	for k, v := range d.peak {
		out[k] = v
	}
	return out, d.peakTotal
}

func waitEntered(t *testing.T, d *gatedDetector) string {
	t.Helper()
	select {
	case id := <-d.entered:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("detector was not called")
		return ""
	}
}

func newGatedEngine(t *testing.T, det *gatedDetector) *Engine {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path[1:]))
	}))
	t.Cleanup(srv.Close)
	clock := t0
	return newTestEngine(pathLookup{base: srv.URL}, det, &memoryStore{}, &clock)
}

func TestEngine_ChecksOnSameCameraNeverOverlap(t *testing.T) {
	det := newGatedDetector()
	e := newGatedEngine(t, det)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.CheckCamera(context.Background(), "camera1"))
		}()
	}

	assert.Equal(t, "camera1", waitEntered(t, det))
	select {
	case <-det.entered:
		t.Fatal("second check reached the detector while the first held the camera")
	case <-time.After(100 * time.Millisecond):
	}
	det.release <- struct{}{}

	assert.Equal(t, "camera1", waitEntered(t, det))
	det.release <- struct{}{}
	wg.Wait()

	peak, _ := det.peaks()
	assert.Equal(t, 1, peak["camera1"])
	s, ok := e.State("camera1")
	require.True(t, ok)
	assert.True(t, s.Present)
	assert.Equal(t, 1, s.DetectionCount)
	assert.Equal(t, 2, s.Checks)
}

func TestEngine_DifferentCamerasRunInParallel(t *testing.T) {
	det := newGatedDetector()
	e := newGatedEngine(t, det)

	var wg sync.WaitGroup
	for _, id := range []string{"camera1", "camera2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, e.CheckCamera(context.Background(), id))
		}(id)
	}

	seen := map[string]bool{waitEntered(t, det): true, waitEntered(t, det): true}
	assert.Equal(t, map[string]bool{"camera1": true, "camera2": true}, seen)

	det.release <- struct{}{}
	det.release <- struct{}{}
	wg.Wait()

	peak, total := det.peaks()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, peak["camera1"])
	assert.Equal(t, 1, peak["camera2"])
}
