package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"face-tracking-recorder/internal/logger"
	"face-tracking-recorder/internal/render"
	"face-tracking-recorder/internal/source"
	"face-tracking-recorder/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Detector maps a frame to the faces found in it.
type Detector interface {
	Detect(ctx context.Context, frame models.Frame) ([]models.DetectedFace, error)
}

// LoopStats counts what the loop did since it was created.
type LoopStats struct {
	Ticks     uint64
	Cycles    uint64
	Rendered  uint64
	Skipped   uint64
	NotReady  uint64
	Errors    uint64
	LastFaces int
}

// ============================================================
// CAPTURE LOOP
// ============================================================

// Loop draws the latest frame and its landmarks onto a surface at a fixed
// cadence. A tick that arrives while a cycle is in flight is skipped, so
// detections never overlap.
type Loop struct {
	source   source.FrameSource
	detector Detector
	surface  render.Surface
	renderer *render.Renderer
	interval time.Duration

	newTicker func(time.Duration) (<-chan time.Time, func())
	log       *logrus.Entry
	limiter   *rate.Limiter

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// drawMu serializes surface writes with Stop; gen changes on every
	// Stop so a cycle that outlives it never draws.
	drawMu sync.Mutex
	gen    uint64

	inFlight atomic.Bool
	cycles   sync.WaitGroup

	ticks     atomic.Uint64
	cycleNum  atomic.Uint64
	rendered  atomic.Uint64
	skipped   atomic.Uint64
	notReady  atomic.Uint64
	errCount  atomic.Uint64
	lastFaces atomic.Int64
}

func NewLoop(src source.FrameSource, det Detector, surface render.Surface, renderer *render.Renderer, cfg models.LoopConfig, log logrus.FieldLogger) *Loop {
	return &Loop{
		source:    src,
		detector:  det,
		surface:   surface,
		renderer:  renderer,
		interval:  cfg.Interval,
		newTicker: realTicker,
		log:       logger.Component(log, "loop"),
		limiter:   rate.NewLimiter(rate.Every(5*time.Second), 3),
	}
}

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Running reports whether the cadence is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Start moves the loop from Idle to Running.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return models.ErrLoopRunning
	}

	l.drawMu.Lock()
	gen := l.gen
	l.drawMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	l.running = true
	l.cancel = cancel
	l.done = make(chan struct{})

	ticks, stop := l.newTicker(l.interval)
	go l.run(ctx, gen, l.done, ticks, stop)

	l.log.Infof("▶️  Capture loop started (every %v)", l.interval)
	return nil
}

func (l *Loop) run(ctx context.Context, gen uint64, done chan struct{}, ticks <-chan time.Time, stop func()) {
	defer close(done)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			l.expire(done)
			return
		case <-ticks:
		}

		l.ticks.Add(1)
		if !l.inFlight.CompareAndSwap(false, true) {
			l.skipped.Add(1)
			continue
		}

		l.cycles.Add(1)
		go func() {
			defer l.cycles.Done()
			defer l.inFlight.Store(false)
			l.cycle(ctx, gen)
		}()
	}
}

// expire returns the loop to Idle when the context given to Start ends
// without a Stop.
func (l *Loop) expire(done chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running || l.done != done {
		return
	}
	l.running = false
	l.cancel()

	l.drawMu.Lock()
	l.gen++
	l.drawMu.Unlock()

	l.log.Info("⏹️  Capture loop ended with its context")
}

// Stop cancels the cadence. It is idempotent and never fails. A detection
// still in flight may finish but its result is never drawn.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.cancel()
	done := l.done
	l.mu.Unlock()

	<-done

	l.drawMu.Lock()
	l.gen++
	l.drawMu.Unlock()

	l.log.Infof("⏹️  Capture loop stopped (cycles=%d skipped=%d errors=%d)",
		l.cycleNum.Load(), l.skipped.Load(), l.errCount.Load())
}

// Wait blocks until every started cycle has returned.
func (l *Loop) Wait() {
	l.cycles.Wait()
}

func (l *Loop) Stats() LoopStats {
	return LoopStats{
		Ticks:     l.ticks.Load(),
		Cycles:    l.cycleNum.Load(),
		Rendered:  l.rendered.Load(),
		Skipped:   l.skipped.Load(),
		NotReady:  l.notReady.Load(),
		Errors:    l.errCount.Load(),
		LastFaces: int(l.lastFaces.Load()),
	}
}

// ============================================================
// CYCLE
// ============================================================

func (l *Loop) cycle(ctx context.Context, gen uint64) {
	n := l.cycleNum.Add(1)
	log := l.log.WithField("cycle", n)

	defer func() {
		if r := recover(); r != nil {
			l.errCount.Add(1)
			l.warn(log, "💥 Cycle panicked: %v", r)
		}
	}()

	if !l.source.IsReady() {
		l.notReady.Add(1)
		return
	}

	frame, err := l.source.CurrentFrame()
	if err != nil {
		if errors.Is(err, models.ErrNotReady) {
			l.notReady.Add(1)
			return
		}
		l.fail(log, fmt.Errorf("current frame: %w", err))
		return
	}

	if err := l.draw(ctx, gen, func() error { return l.drawBase(frame) }); err != nil {
		l.fail(log, err)
		return
	}

	faces, err := l.detector.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, models.ErrModelNotLoaded) {
			l.notReady.Add(1)
			log.Debug("Model not loaded yet")
			return
		}
		l.fail(log, err)
		return
	}

	err = l.draw(ctx, gen, func() error { return l.renderer.DrawLandmarks(l.surface, faces) })
	if err != nil {
		l.fail(log, err)
		return
	}

	l.rendered.Add(1)
	l.lastFaces.Store(int64(len(faces)))
	if len(faces) > 0 {
		log.Tracef("👤 %d face(s), %d points on %v", len(faces), models.CountPoints(faces), frame)
	}
}

var errStale = errors.New("loop stopped")

// draw runs fn under the draw lock unless the loop was stopped since the
// cycle began.
func (l *Loop) draw(ctx context.Context, gen uint64, fn func() error) error {
	l.drawMu.Lock()
	defer l.drawMu.Unlock()
	if l.gen != gen || ctx.Err() != nil {
		return errStale
	}
	return fn()
}

func (l *Loop) drawBase(frame models.Frame) error {
	if resized, err := render.EnsureSize(l.surface, frame); err != nil {
		return fmt.Errorf("resize surface: %w", err)
	} else if resized {
		l.log.Infof("📐 Surface resized to %dx%d", frame.Width, frame.Height)
	}

	if l.renderer.DrawsBase() {
		return l.renderer.DrawFrame(l.surface, frame)
	}
	return l.renderer.Clear(l.surface)
}

func (l *Loop) fail(log *logrus.Entry, err error) {
	if errors.Is(err, errStale) {
		return
	}
	l.errCount.Add(1)
	l.warn(log, "⚠️  Cycle failed: %v", err)
}

func (l *Loop) warn(log *logrus.Entry, format string, args ...interface{}) {
	if l.limiter.Allow() {
		log.Warnf(format, args...)
		return
	}
	log.Debugf(format, args...)
}
