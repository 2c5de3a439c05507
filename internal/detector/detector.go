package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"face-tracking-recorder/internal/assets"
	"face-tracking-recorder/internal/landmarks"
	"face-tracking-recorder/internal/logger"
	"face-tracking-recorder/models"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ============================================================
// FACE LANDMARK DETECTOR - cascade for boxes, DNN for points
// ============================================================

// Service finds faces with a Haar cascade and regresses landmarks for each
// face crop with an ONNX model. Calls are serialized internally.
type Service struct {
	mu sync.Mutex

	fetcher *assets.Fetcher
	log     *logrus.Entry

	cfg        models.ModelConfig
	classifier gocv.CascadeClassifier
	net        gocv.Net
	loaded     atomic.Bool
}

// New creates an unloaded service. Load must succeed before Detect.
func New(fetcher *assets.Fetcher, log logrus.FieldLogger) *Service {
	return &Service{
		fetcher: fetcher,
		log:     logger.Component(log, "detector"),
	}
}

// Loaded reports whether a model is ready for Detect. It does not wait for
// a running detection.
func (s *Service) Loaded() bool {
	return s.loaded.Load()
}

// Load resolves and loads both models. Any failure is returned as a
// *models.ModelLoadError; a previously loaded model is kept on failure.
func (s *Service) Load(ctx context.Context, cfg models.ModelConfig) error {
	start := time.Now()

	cascadePath, err := s.fetcher.Resolve(ctx, cfg.BaseURL, cfg.CascadeFile)
	if err != nil {
		return &models.ModelLoadError{Path: cfg.CascadeFile, Err: err}
	}
	landmarkPath, err := s.fetcher.Resolve(ctx, cfg.BaseURL, cfg.LandmarkFile)
	if err != nil {
		return &models.ModelLoadError{Path: cfg.LandmarkFile, Err: err}
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cascadePath) {
		classifier.Close()
		return &models.ModelLoadError{Path: cascadePath, Err: errors.New("failed to load face cascade classifier")}
	}

	net := gocv.ReadNet(landmarkPath, "")
	if net.Empty() {
		classifier.Close()
		net.Close()
		return &models.ModelLoadError{Path: landmarkPath, Err: errors.New("failed to read landmark network")}
	}

	s.mu.Lock()
	s.release()
	s.cfg = cfg
	s.classifier = classifier
	s.net = net
	s.loaded.Store(true)
	s.mu.Unlock()

	s.log.Infof("✅ Face detector initialized in %v", time.Since(start).Round(time.Millisecond))
	s.log.Infof("   Landmarks: %d (%s), input %dx%d", cfg.LandmarkCount, cfg.Layout, cfg.InputSize, cfg.InputSize)
	s.log.Infof("   Min face size: %dx%d", cfg.MinFaceSize, cfg.MinFaceSize)
	return nil
}

// Detect returns the landmarks of every face found in frame.
func (s *Service) Detect(ctx context.Context, frame models.Frame) ([]models.DetectedFace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded.Load() {
		return nil, models.ErrModelNotLoaded
	}
	if frame.Empty() {
		return nil, fmt.Errorf("%w: %v is empty", models.ErrDetectionTransient, frame)
	}

	src, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pixels[:frame.Width*frame.Height*3])
	if err != nil {
		return nil, fmt.Errorf("%w: NewMatFromBytes: %v", models.ErrDetectionTransient, err)
	}
	defer src.Close()

	rects := s.findFaces(src)
	if len(rects) == 0 {
		return nil, nil
	}

	faces := make([]models.DetectedFace, 0, len(rects))
	for _, rect := range rects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		crop := landmarks.ExpandSquare(rect, s.cfg.ExpandRatio, frame.Width, frame.Height)
		points, err := s.regress(src, crop)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrDetectionTransient, err)
		}
		faces = append(faces, models.DetectedFace{Box: rect, Points: points, Score: 1})
	}
	return faces, nil
}

// findFaces runs the cascade on a downscaled gray copy and maps the boxes
// back to frame coordinates.
func (s *Service) findFaces(src gocv.Mat) []image.Rectangle {
	size, scale := landmarks.DetectionSize(src.Cols(), src.Rows(), s.cfg.DetectionWidth)

	small := gocv.NewMat()
	defer small.Close()
	if scale != 1.0 {
		gocv.Resize(src, &small, size, 0, 0, gocv.InterpolationLinear)
	} else {
		src.CopyTo(&small)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(small, &gray, gocv.ColorBGRToGray)
	gocv.EqualizeHist(gray, &gray)

	minSize := int(float64(s.cfg.MinFaceSize) * scale)
	rects := s.classifier.DetectMultiScaleWithParams(
		gray,
		s.cfg.ScaleFactor,
		s.cfg.MinNeighbors,
		0,
		image.Pt(minSize, minSize),
		image.Pt(0, 0),
	)

	return landmarks.SelectFaces(landmarks.ScaleRects(rects, scale), s.cfg.MinFaceSize, s.cfg.MaxFaces)
}

func (s *Service) regress(src gocv.Mat, crop image.Rectangle) ([]models.Point, error) {
	roi := src.Region(crop)
	defer roi.Close()

	blob := gocv.BlobFromImage(roi, 1.0/255.0, image.Pt(s.cfg.InputSize, s.cfg.InputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	out := s.net.Forward("")
	defer out.Close()

	values, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return landmarks.Decode(values, s.cfg.LandmarkCount, s.cfg.Layout, crop, s.cfg.InputSize)
}

func (s *Service) release() {
	if !s.loaded.Load() {
		return
	}
	s.loaded.Store(false)
	s.classifier.Close()
	s.net.Close()
}

// Close releases resources used by the detector
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release()
}
