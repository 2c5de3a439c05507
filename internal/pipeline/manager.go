package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"face-tracking-recorder/internal/logger"
	"face-tracking-recorder/internal/render"
	"face-tracking-recorder/internal/source"
	"face-tracking-recorder/models"

	"github.com/sirupsen/logrus"
)

// DetectionService is a Detector whose model is loaded once up front.
type DetectionService interface {
	Detector
	Load(ctx context.Context, cfg models.ModelConfig) error
	Loaded() bool
}

// Recorder is the recording side of the pipeline.
type Recorder interface {
	Start(ctx context.Context, surface render.Surface) error
	Stop() (*models.Artifact, error)
	Recording() bool
	Artifact() *models.Artifact
	Save(dir string) (string, error)
}

// SourceOpener acquires the frame source when the pipeline starts.
type SourceOpener func(ctx context.Context) (source.FrameSource, error)

// Status is the user-visible state of the pipeline.
type Status struct {
	CameraErr   error
	ModelErr    error
	ModelLoaded bool
	Loading     bool
	Running     bool
	Recording   bool
	Loop        LoopStats
	Artifact    *models.Artifact
}

// ============================================================
// PIPELINE MANAGER
// ============================================================

// Manager owns the source, surface, detector, loop and recorder of one
// session. Nothing else holds references to them.
type Manager struct {
	cfg      models.Config
	open     SourceOpener
	surface  render.Surface
	renderer *render.Renderer
	detector DetectionService
	recorder Recorder
	log      *logrus.Entry

	mu        sync.Mutex
	source    source.FrameSource
	loop      *Loop
	cameraErr error
	modelErr  error
	loading   bool
	loads     sync.WaitGroup
}

func NewManager(cfg models.Config, open SourceOpener, surface render.Surface, det DetectionService, rec Recorder, log logrus.FieldLogger) *Manager {
	return &Manager{
		cfg:      cfg,
		open:     open,
		surface:  surface,
		renderer: render.NewRenderer(cfg.Render),
		detector: det,
		recorder: rec,
		log:      logger.Component(log, "manager"),
	}
}

// Start opens the source, kicks off the model load in the background and
// starts the capture loop. A camera failure is returned and kept in Status.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loop != nil && m.loop.Running() {
		return models.ErrLoopRunning
	}

	if m.source == nil {
		src, err := m.open(ctx)
		if err != nil {
			m.cameraErr = err
			m.log.Errorf("❌ Camera unavailable: %v", err)
			return err
		}
		m.source = src
		m.cameraErr = nil
	}

	m.loadModelLocked(ctx)

	if m.loop == nil {
		m.loop = NewLoop(m.source, m.detector, m.surface, m.renderer, m.cfg.Loop, m.log.Logger)
	}
	return m.loop.Start(ctx)
}

// ReloadModel retries a failed model load. It is a no-op while a load is
// running or after a successful one.
func (m *Manager) ReloadModel(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadModelLocked(ctx)
}

func (m *Manager) loadModelLocked(ctx context.Context) {
	if m.loading || m.detector.Loaded() {
		return
	}
	m.loading = true
	m.modelErr = nil
	m.loads.Add(1)

	go func() {
		defer m.loads.Done()
		start := time.Now()
		err := m.detector.Load(ctx, m.cfg.Model)

		m.mu.Lock()
		defer m.mu.Unlock()
		m.loading = false
		if err != nil {
			m.modelErr = err
			m.log.Errorf("❌ Model load failed: %v", err)
			return
		}
		m.log.Infof("✅ Model ready in %v", time.Since(start).Round(time.Millisecond))
	}()
}

// WaitModel blocks until the pending model load finishes and returns its
// error.
func (m *Manager) WaitModel() error {
	m.loads.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modelErr
}

// StopCapture halts the loop. It is safe to call at any time.
func (m *Manager) StopCapture() {
	m.mu.Lock()
	loop := m.loop
	m.mu.Unlock()
	if loop != nil {
		loop.Stop()
	}
}

// StartRecording taps the render surface.
func (m *Manager) StartRecording(ctx context.Context) error {
	return m.recorder.Start(ctx, m.surface)
}

// StopRecording seals the current session.
func (m *Manager) StopRecording() (*models.Artifact, error) {
	return m.recorder.Stop()
}

// SaveRecording writes the last artifact to the configured output dir.
func (m *Manager) SaveRecording() (string, error) {
	return m.recorder.Save(m.cfg.Recording.OutputDir)
}

// RecordFor records for d, or until ctx ends, and returns the artifact.
func (m *Manager) RecordFor(ctx context.Context, d time.Duration) (*models.Artifact, error) {
	if err := m.StartRecording(ctx); err != nil {
		return nil, err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	return m.StopRecording()
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		CameraErr:   m.cameraErr,
		ModelErr:    m.modelErr,
		ModelLoaded: m.detector.Loaded(),
		Loading:     m.loading,
		Recording:   m.recorder.Recording(),
		Artifact:    m.recorder.Artifact(),
	}
	if s.CameraErr == nil {
		if f, ok := m.source.(source.Failer); ok {
			s.CameraErr = f.Err()
		}
	}
	if m.loop != nil {
		s.Running = m.loop.Running()
		s.Loop = m.loop.Stats()
	}
	return s
}

// Close stops recording and capture, then releases the source.
func (m *Manager) Close() error {
	var errs []error

	if m.recorder.Recording() {
		if _, err := m.recorder.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop recording: %w", err))
		}
	}

	m.StopCapture()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loop != nil {
		m.loop.Wait()
	}
	if m.source != nil {
		if err := m.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close source: %w", err))
		}
		m.source = nil
	}
	m.loop = nil
	return errors.Join(errs...)
}
