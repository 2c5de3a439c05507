package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"face-tracking-recorder/internal/logger"
	"face-tracking-recorder/internal/render"
	"face-tracking-recorder/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ============================================================
// RECORDING CONTROLLER
// ============================================================

// Controller taps a surface at a fixed frame rate while recording and
// seals the encoded output into an Artifact on Stop. At most one session
// is active at a time.
type Controller struct {
	cfg        models.RecordingConfig
	newEncoder func() Encoder
	newTicker  func(time.Duration) (<-chan time.Time, func())
	now        func() time.Time
	log        *logrus.Entry
	limiter    *rate.Limiter

	mu       sync.Mutex
	session  *Session
	encoder  Encoder
	cancel   context.CancelFunc
	tapDone  chan struct{}
	artifact *models.Artifact

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewController builds an idle controller. newEncoder is called once per
// session. A zero FPS or MIME type falls back to the defaults.
func NewController(cfg models.RecordingConfig, newEncoder func() Encoder, log logrus.FieldLogger) *Controller {
	defaults := models.DefaultRecordingConfig()
	if cfg.FPS <= 0 {
		cfg.FPS = defaults.FPS
	}
	if cfg.MIMEType == "" {
		cfg.MIMEType = defaults.MIMEType
	}
	return &Controller{
		cfg:        cfg,
		newEncoder: newEncoder,
		newTicker:  realTicker,
		now:        time.Now,
		log:        logger.Component(log, "recorder"),
		limiter:    rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Recording reports whether a session is active.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Start begins a session tapping surface. The previous artifact is
// discarded.
func (c *Controller) Start(ctx context.Context, surface render.Surface) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return models.ErrAlreadyRecording
	}

	capturable, ok := surface.(render.Capturable)
	if !ok {
		return models.ErrUnsupportedStream
	}
	size := capturable.Size()
	if size.X <= 0 || size.Y <= 0 {
		return fmt.Errorf("%w: surface is %dx%d", models.ErrUnsupportedStream, size.X, size.Y)
	}

	session := NewSession(c.cfg.MIMEType, c.now())
	encoder := c.newEncoder()
	info := StreamInfo{Width: size.X, Height: size.Y, FPS: c.cfg.FPS}
	if err := encoder.Start(info, session.Append); err != nil {
		return fmt.Errorf("%w: start encoder: %w", models.ErrUnsupportedStream, err)
	}

	c.artifact = nil
	c.written.Store(0)
	c.dropped.Store(0)

	tapCtx, cancel := context.WithCancel(ctx)
	c.session = session
	c.encoder = encoder
	c.cancel = cancel
	c.tapDone = make(chan struct{})

	log := c.log.WithField("session", session.ID[:8])
	go c.tap(tapCtx, capturable, encoder, info, log)

	log.Infof("🔴 Recording started (%dx%d @ %dfps, %s)", size.X, size.Y, c.cfg.FPS, c.cfg.MIMEType)
	return nil
}

// tap snapshots the surface once per frame interval.
func (c *Controller) tap(ctx context.Context, surface render.Capturable, encoder Encoder, info StreamInfo, log *logrus.Entry) {
	defer close(c.tapDone)

	ticks, stop := c.newTicker(time.Second / time.Duration(info.FPS))
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
		}

		frame, err := surface.Snapshot()
		if err != nil {
			c.warn(log, "⚠️  Snapshot failed: %v", err)
			continue
		}
		if frame.Width != info.Width || frame.Height != info.Height {
			c.dropped.Add(1)
			c.warn(log, "⚠️  Dropping %dx%d frame, stream is %dx%d", frame.Width, frame.Height, info.Width, info.Height)
			continue
		}
		if err := encoder.WriteFrame(frame.Pixels); err != nil {
			c.warn(log, "⚠️  Encoder write failed: %v", err)
			continue
		}
		c.written.Add(1)
	}
}

func (c *Controller) warn(log *logrus.Entry, format string, args ...interface{}) {
	if c.limiter.Allow() {
		log.Warnf(format, args...)
		return
	}
	log.Debugf(format, args...)
}

// Stop ends the session, waits for every pending chunk and returns the
// sealed artifact. Stopping while idle returns ErrNotRecording. An
// encoder error is returned together with whatever was collected.
func (c *Controller) Stop() (*models.Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, models.ErrNotRecording
	}

	c.cancel()
	<-c.tapDone

	finalizeErr := c.encoder.Finalize()
	artifact := c.session.Seal(c.cfg.Filename, c.now())

	log := c.log.WithField("session", c.session.ID[:8])
	c.session = nil
	c.encoder = nil
	c.cancel = nil
	c.artifact = artifact

	log.Infof("⏹️  Recording stopped: %v (frames=%d dropped=%d)", artifact, c.written.Load(), c.dropped.Load())
	if finalizeErr != nil {
		log.Errorf("❌ Encoder finalize failed: %v", finalizeErr)
		return artifact, fmt.Errorf("finalize encoder: %w", finalizeErr)
	}
	return artifact, nil
}

// Artifact returns the last sealed artifact, or nil.
func (c *Controller) Artifact() *models.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifact
}

// Stats returns frames written and dropped in the current or last session.
func (c *Controller) Stats() (written, dropped uint64) {
	return c.written.Load(), c.dropped.Load()
}

// Save writes the last artifact into dir under its filename, replacing
// any previous file, and returns the path.
func (c *Controller) Save(dir string) (string, error) {
	artifact := c.Artifact()
	if artifact == nil {
		return "", models.ErrNoArtifact
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, artifact.Filename)
	if err := os.WriteFile(path, artifact.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	c.log.Infof("💾 Saved %s (%.1fKB)", path, float64(artifact.Size())/1024.0)
	return path, nil
}
