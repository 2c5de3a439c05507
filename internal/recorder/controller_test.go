package recorder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"face-tracking-recorder/internal/logger"
	"face-tracking-recorder/internal/render"
	"face-tracking-recorder/internal/render/rendertest"
	"face-tracking-recorder/models"
)

// ============================================================
// FAKES
// ============================================================

// fakeEncoder emits its chunks from a separate goroutine when finalized,
// the way a real encoder flushes after stdin closes.
type fakeEncoder struct {
	chunks   [][]byte
	startErr error

	mu      sync.Mutex
	info    StreamInfo
	onChunk ChunkFunc
	frames  int
}

func (e *fakeEncoder) Start(info StreamInfo, onChunk ChunkFunc) error {
	if e.startErr != nil {
		return e.startErr
	}
	e.info = info
	e.onChunk = onChunk
	return nil
}

func (e *fakeEncoder) WriteFrame(pixels []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames++
	return nil
}

func (e *fakeEncoder) Finalize() error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, c := range e.chunks {
			e.onChunk(c)
		}
	}()
	<-done
	return nil
}

func (e *fakeEncoder) Frames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// plainSurface can be drawn on but not captured.
type plainSurface struct{}

func (plainSurface) Size() image.Point                                    { return image.Pt(4, 4) }
func (plainSurface) Resize(int, int) error                                { return nil }
func (plainSurface) Clear() error                                         { return nil }
func (plainSurface) DrawFrame(models.Frame) error                         { return nil }
func (plainSurface) FillCircle(image.Point, int, color.RGBA) error        { return nil }
func (plainSurface) Line(image.Point, image.Point, color.RGBA, int) error { return nil }

func newTestController(enc *fakeEncoder) (*Controller, chan time.Time) {
	ticks := make(chan time.Time)
	c := NewController(models.DefaultRecordingConfig(), func() Encoder { return enc }, logger.Discard())
	c.newTicker = func(time.Duration) (<-chan time.Time, func()) { return ticks, func() {} }
	return c, ticks
}

func chunk(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

// ============================================================
// TESTS
// ============================================================

func TestStopConcatenatesChunks(t *testing.T) {
	enc := &fakeEncoder{chunks: [][]byte{chunk(10, 1), chunk(20, 2), chunk(15, 3)}}
	c, _ := newTestController(enc)

	if err := c.Start(context.Background(), rendertest.New(64, 48)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	artifact, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if artifact.Size() != 45 {
		t.Errorf("Expected 45 bytes, got %d", artifact.Size())
	}
	if artifact.MIMEType != models.MIMETypeWebM {
		t.Errorf("Expected %s, got %s", models.MIMETypeWebM, artifact.MIMEType)
	}
	if artifact.Chunks != 3 {
		t.Errorf("Expected 3 chunks, got %d", artifact.Chunks)
	}

	want := append(append(chunk(10, 1), chunk(20, 2)...), chunk(15, 3)...)
	if !bytes.Equal(artifact.Data, want) {
		t.Error("Chunks were not concatenated in arrival order")
	}
	if c.Artifact() != artifact {
		t.Error("Artifact() should return the last sealed artifact")
	}
}

func TestStartWhileRecording(t *testing.T) {
	c, _ := newTestController(&fakeEncoder{})
	surface := rendertest.New(64, 48)

	if err := c.Start(context.Background(), surface); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	if err := c.Start(context.Background(), surface); !errors.Is(err, models.ErrAlreadyRecording) {
		t.Fatalf("Expected ErrAlreadyRecording, got %v", err)
	}
	if !c.Recording() {
		t.Error("Controller should still be recording")
	}
}

func TestStopWhileIdle(t *testing.T) {
	c, _ := newTestController(&fakeEncoder{})

	if _, err := c.Stop(); !errors.Is(err, models.ErrNotRecording) {
		t.Fatalf("Expected ErrNotRecording, got %v", err)
	}
}

func TestStartUnsupported(t *testing.T) {
	tests := []struct {
		name    string
		surface render.Surface
		enc     *fakeEncoder
	}{
		{"not capturable", plainSurface{}, &fakeEncoder{}},
		{"zero size", rendertest.New(0, 0), &fakeEncoder{}},
		{"encoder fails", rendertest.New(8, 8), &fakeEncoder{startErr: errors.New("no ffmpeg")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController(tt.enc)
			err := c.Start(context.Background(), tt.surface)
			if !errors.Is(err, models.ErrUnsupportedStream) {
				t.Fatalf("Expected ErrUnsupportedStream, got %v", err)
			}
			if c.Recording() {
				t.Error("Controller must stay idle")
			}
		})
	}
}

// scriptedSurface returns snapshots of the given sizes in order.
type scriptedSurface struct {
	*rendertest.Surface

	mu    sync.Mutex
	sizes []image.Point
}

func (s *scriptedSurface) Snapshot() (models.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	size := s.sizes[0]
	if len(s.sizes) > 1 {
		s.sizes = s.sizes[1:]
	}
	return models.Frame{Width: size.X, Height: size.Y, Pixels: make([]byte, size.X*size.Y*3)}, nil
}

func TestTapWritesAndDropsFrames(t *testing.T) {
	enc := &fakeEncoder{}
	c, ticks := newTestController(enc)
	surface := &scriptedSurface{
		Surface: rendertest.New(64, 48),
		sizes:   []image.Point{{64, 48}, {64, 48}, {32, 24}, {64, 48}},
	}

	if err := c.Start(context.Background(), surface); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		ticks <- time.Now()
	}
	if _, err := c.Stop(); err != nil {
		t.Fatal(err)
	}

	written, dropped := c.Stats()
	if dropped != 1 {
		t.Errorf("Expected 1 dropped frame, got %d", dropped)
	}
	if written != 3 || enc.Frames() != 3 {
		t.Errorf("Expected 3 written frames, got %d (encoder saw %d)", written, enc.Frames())
	}
	if enc.info.Width != 64 || enc.info.Height != 48 || enc.info.FPS != 30 {
		t.Errorf("Unexpected stream info %+v", enc.info)
	}
}

func TestNewSessionDiscardsArtifact(t *testing.T) {
	enc := &fakeEncoder{chunks: [][]byte{chunk(5, 9)}}
	c, _ := newTestController(enc)
	surface := rendertest.New(8, 8)

	c.Start(context.Background(), surface)
	if _, err := c.Stop(); err != nil {
		t.Fatal(err)
	}

	if err := c.Start(context.Background(), surface); err != nil {
		t.Fatal(err)
	}
	if c.Artifact() != nil {
		t.Error("Starting a new session should discard the previous artifact")
	}
	c.Stop()
}

func TestSave(t *testing.T) {
	enc := &fakeEncoder{chunks: [][]byte{chunk(7, 4)}}
	c, _ := newTestController(enc)
	dir := filepath.Join(t.TempDir(), "out")

	if _, err := c.Save(dir); !errors.Is(err, models.ErrNoArtifact) {
		t.Fatalf("Expected ErrNoArtifact, got %v", err)
	}

	c.Start(context.Background(), rendertest.New(8, 8))
	c.Stop()

	for i := 0; i < 2; i++ {
		path, err := c.Save(dir)
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if filepath.Base(path) != models.DefaultArtifactFilename {
			t.Errorf("Unexpected filename %s", path)
		}
		data, err := os.ReadFile(path)
		if err != nil || len(data) != 7 {
			t.Fatalf("Expected 7 bytes on disk, got %d (%v)", len(data), err)
		}
	}
}

func TestSessionAppendAfterSeal(t *testing.T) {
	s := NewSession(models.MIMETypeWebM, time.Unix(0, 0))
	s.Append([]byte("ab"))
	s.Append(nil)

	a := s.Seal("x.webm", time.Unix(2, 0))
	if a.Duration != 2*time.Second || string(a.Data) != "ab" || a.Chunks != 1 {
		t.Errorf("Unexpected artifact %v", a)
	}
	if err := s.Append([]byte("c")); err == nil {
		t.Error("Append after Seal should fail")
	}
}

func TestPumpDeliversInOrder(t *testing.T) {
	var got []byte
	r := bytes.NewReader(bytes.Repeat([]byte("0123456789"), readChunkSize/5))

	err := pump(r, func(c []byte) error {
		got = append(got, c...)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, bytes.Repeat([]byte("0123456789"), readChunkSize/5)) {
		t.Error("pump changed the byte stream")
	}
}

func TestZeroFPSFallsBackToDefault(t *testing.T) {
	enc := &fakeEncoder{}
	cfg := models.DefaultRecordingConfig()
	cfg.FPS = 0
	c := NewController(cfg, func() Encoder { return enc }, logger.Discard())

	intervals := make(chan time.Duration, 1)
	c.newTicker = func(d time.Duration) (<-chan time.Time, func()) {
		intervals <- d
		return make(chan time.Time), func() {}
	}

	if err := c.Start(context.Background(), rendertest.New(8, 8)); err != nil {
		t.Fatal(err)
	}
	if enc.info.FPS != 30 {
		t.Errorf("Expected 30fps stream, got %d", enc.info.FPS)
	}
	select {
	case d := <-intervals:
		if d != time.Second/30 {
			t.Errorf("Expected tap interval %v, got %v", time.Second/30, d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Tap never started")
	}
	if _, err := c.Stop(); err != nil {
		t.Fatal(err)
	}
}
