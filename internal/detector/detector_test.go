package detector

import (
	"context"
	"errors"
	"testing"
	"time"

	"face-tracking-recorder/internal/logger"
	"face-tracking-recorder/models"
)

func TestDetectBeforeLoad(t *testing.T) {
	s := New(nil, logger.Discard())
	defer s.Close()

	if s.Loaded() {
		t.Fatal("New service must not report a loaded model")
	}
	_, err := s.Detect(context.Background(), models.Frame{Width: 2, Height: 2, Pixels: make([]byte, 12)})
	if !errors.Is(err, models.ErrModelNotLoaded) {
		t.Errorf("Expected ErrModelNotLoaded, got %v", err)
	}
}

func TestLoadedDoesNotWaitForDetect(t *testing.T) {
	s := New(nil, logger.Discard())

	// Hold the detection lock the way a long inference does.
	s.mu.Lock()
	defer s.mu.Unlock()

	done := make(chan bool, 1)
	go func() { done <- s.Loaded() }()

	select {
	case loaded := <-done:
		if loaded {
			t.Error("Expected no model loaded")
		}
	case <-time.After(time.Second):
		t.Fatal("Loaded blocked behind a running detection")
	}
}
