package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"face-tracking-recorder/internal/logger"
	"face-tracking-recorder/internal/render"
	"face-tracking-recorder/internal/render/rendertest"
	"face-tracking-recorder/internal/source"
	"face-tracking-recorder/models"
)

type fakeRecorder struct {
	mu        sync.Mutex
	recording bool
	artifact  *models.Artifact
	savedTo   string
}

func (r *fakeRecorder) Start(ctx context.Context, surface render.Surface) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return models.ErrAlreadyRecording
	}
	r.recording = true
	r.artifact = nil
	return nil
}

func (r *fakeRecorder) Stop() (*models.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil, models.ErrNotRecording
	}
	r.recording = false
	r.artifact = &models.Artifact{MIMEType: models.MIMETypeWebM, Data: []byte("webm")}
	return r.artifact, nil
}

func (r *fakeRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *fakeRecorder) Artifact() *models.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.artifact
}

func (r *fakeRecorder) Save(dir string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.artifact == nil {
		return "", models.ErrNoArtifact
	}
	r.savedTo = dir
	return dir + "/" + models.DefaultArtifactFilename, nil
}

type closeCounter struct {
	*source.Latest
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func testConfig() models.Config {
	cfg := models.DefaultConfig()
	cfg.Loop.Interval = 5 * time.Millisecond
	return cfg
}

func TestManagerCameraUnavailable(t *testing.T) {
	open := func(context.Context) (source.FrameSource, error) {
		return nil, fmt.Errorf("%w: device 0: permission denied", models.ErrCameraUnavailable)
	}
	m := NewManager(testConfig(), open, rendertest.New(4, 4), &fakeDetector{}, &fakeRecorder{}, logger.Discard())

	err := m.Start(context.Background())
	if !errors.Is(err, models.ErrCameraUnavailable) {
		t.Fatalf("Expected ErrCameraUnavailable, got %v", err)
	}

	status := m.Status()
	if !errors.Is(status.CameraErr, models.ErrCameraUnavailable) || status.Running {
		t.Errorf("Unexpected status %+v", status)
	}
}

func TestManagerRunsPipeline(t *testing.T) {
	src := &closeCounter{Latest: readySource(32, 24)}
	open := func(context.Context) (source.FrameSource, error) { return src, nil }
	det := &fakeDetector{faces: oneFace()}
	surface := rendertest.New(32, 24)
	m := NewManager(testConfig(), open, surface, det, &fakeRecorder{}, logger.Discard())

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, models.ErrLoopRunning) {
		t.Errorf("Expected ErrLoopRunning, got %v", err)
	}
	if err := m.WaitModel(); err != nil {
		t.Fatalf("Model load failed: %v", err)
	}

	waitFor(t, "rendered cycles", func() bool { return m.Status().Loop.Rendered >= 2 })

	status := m.Status()
	if !status.Running || !status.ModelLoaded || status.Loop.LastFaces != 1 {
		t.Errorf("Unexpected status %+v", status)
	}

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if src.closed != 1 {
		t.Errorf("Source should be closed once, got %d", src.closed)
	}
	if m.Status().Running {
		t.Error("Loop should be stopped after Close")
	}
}

func TestManagerModelLoadFailure(t *testing.T) {
	open := func(context.Context) (source.FrameSource, error) { return readySource(8, 8), nil }
	det := &fakeDetector{loadErr: errors.New("404 not found")}
	m := NewManager(testConfig(), open, rendertest.New(8, 8), det, &fakeRecorder{}, logger.Discard())
	defer m.Close()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	var loadErr *models.ModelLoadError
	if err := m.WaitModel(); !errors.As(err, &loadErr) {
		t.Fatalf("Expected ModelLoadError, got %v", err)
	}
	if status := m.Status(); status.ModelErr == nil || status.ModelLoaded {
		t.Errorf("Unexpected status %+v", status)
	}

	det.mu.Lock()
	det.loadErr = nil
	det.mu.Unlock()

	m.ReloadModel(context.Background())
	if err := m.WaitModel(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if status := m.Status(); status.ModelErr != nil || !status.ModelLoaded {
		t.Errorf("Unexpected status after reload %+v", status)
	}
}

func TestManagerRecordFor(t *testing.T) {
	open := func(context.Context) (source.FrameSource, error) { return readySource(8, 8), nil }
	rec := &fakeRecorder{}
	cfg := testConfig()
	cfg.Recording.OutputDir = "/tmp/out"
	m := NewManager(cfg, open, rendertest.New(8, 8), &fakeDetector{}, rec, logger.Discard())
	defer m.Close()

	if _, err := m.StopRecording(); !errors.Is(err, models.ErrNotRecording) {
		t.Errorf("Expected ErrNotRecording, got %v", err)
	}

	artifact, err := m.RecordFor(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if artifact.Size() != 4 || m.Status().Recording {
		t.Errorf("Unexpected artifact %v", artifact)
	}

	if _, err := m.SaveRecording(); err != nil {
		t.Fatal(err)
	}
	if rec.savedTo != "/tmp/out" {
		t.Errorf("Saved to %q", rec.savedTo)
	}
}

// failingSource stops delivering frames once fail is called.
type failingSource struct {
	*source.Latest
	mu  sync.Mutex
	err error
}

func (f *failingSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *failingSource) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *failingSource) IsReady() bool {
	return f.Err() == nil && f.Latest.IsReady()
}

func TestManagerReportsSourceFailure(t *testing.T) {
	src := &failingSource{Latest: readySource(32, 24)}
	open := func(context.Context) (source.FrameSource, error) { return src, nil }
	m := NewManager(testConfig(), open, rendertest.New(32, 24), &fakeDetector{faces: oneFace()}, &fakeRecorder{}, logger.Discard())
	defer m.Close()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Status().CameraErr; err != nil {
		t.Fatalf("Expected no camera error before failure, got %v", err)
	}

	src.fail(fmt.Errorf("%w: device 0 stopped delivering frames", models.ErrCameraUnavailable))

	if err := m.Status().CameraErr; !errors.Is(err, models.ErrCameraUnavailable) {
		t.Fatalf("Expected ErrCameraUnavailable in status, got %v", err)
	}

	before := m.Status().Loop.NotReady
	waitFor(t, "not-ready cycles after failure", func() bool { return m.Status().Loop.NotReady > before })
}
