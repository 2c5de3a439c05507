package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"face-tracking-recorder/internal/logger"
	"face-tracking-recorder/internal/source"
	"face-tracking-recorder/models"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

const maxReadFailures = 30

// ============================================================
// CAMERA SOURCE
// ============================================================

// Source reads a local camera device into a latest-frame slot.
type Source struct {
	*source.Latest

	cfg     models.CameraConfig
	capture *gocv.VideoCapture
	log     *logrus.Entry

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// Open acquires the camera device and starts reading frames. A denied
// permission or missing device surfaces as models.ErrCameraUnavailable.
func Open(ctx context.Context, cfg models.CameraConfig, log logrus.FieldLogger) (*Source, error) {
	capture, err := gocv.VideoCaptureDevice(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", models.ErrCameraUnavailable, cfg.DeviceID, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: device %d not opened", models.ErrCameraUnavailable, cfg.DeviceID)
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Source{
		Latest:  source.NewLatest(),
		cfg:     cfg,
		capture: capture,
		log:     logger.Component(log, "camera"),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	s.log.Infof("📷 Camera %d opened", cfg.DeviceID)
	go s.readLoop(ctx)
	return s, nil
}

// Err returns the error that stopped the reader, if any.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// IsReady is false once the reader has stopped on an error, so the last
// frame is not redrawn forever.
func (s *Source) IsReady() bool {
	return s.Err() == nil && s.Latest.IsReady()
}

func (s *Source) readLoop(ctx context.Context) {
	defer close(s.done)

	img := gocv.NewMat()
	defer img.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if ok := s.capture.Read(&img); !ok {
			failures++
			if failures >= maxReadFailures {
				s.setErr(fmt.Errorf("%w: device %d stopped delivering frames", models.ErrCameraUnavailable, s.cfg.DeviceID))
				s.log.Errorf("❌ Camera %d: %d consecutive read failures", s.cfg.DeviceID, failures)
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		failures = 0

		if img.Empty() {
			continue
		}

		frame := img
		if img.Channels() == 1 {
			gocv.CvtColor(img, &bgr, gocv.ColorGrayToBGR)
			frame = bgr
		}

		wasReady := s.IsReady()
		s.Publish(frame.Cols(), frame.Rows(), frame.ToBytes())
		if !wasReady {
			s.log.Infof("✅ First frame received (%dx%d)", frame.Cols(), frame.Rows())
		}
	}
}

func (s *Source) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Close stops the reader and releases the device.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.capture.Close()
		s.log.Info("🛑 Camera closed")
	})
	return nil
}
