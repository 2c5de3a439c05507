package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady           = errors.New("frame source not ready")
	ErrCameraUnavailable  = errors.New("camera unavailable")
	ErrModelNotLoaded     = errors.New("detection model not loaded")
	ErrDetectionTransient = errors.New("detection failed")
	ErrUnsupportedStream  = errors.New("surface cannot produce a capturable stream")
	ErrAlreadyRecording   = errors.New("recording already in progress")
	ErrNotRecording       = errors.New("not recording")
	ErrLoopRunning        = errors.New("capture loop already running")
	ErrNoArtifact         = errors.New("no recording to save")
)

// ModelLoadError is fatal to the detection session. It is never retried
// internally.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}
