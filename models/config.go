package models

import "time"

// ============================================================
// CONFIGURATION
// ============================================================

type Config struct {
	Camera    CameraConfig
	Model     ModelConfig
	Render    RenderConfig
	Loop      LoopConfig
	Recording RecordingConfig
	Remote    RemoteConfig
	Log       LogConfig
}

type CameraConfig struct {
	DeviceID int `validate:"gte=0"`
	Width    int `validate:"gte=0"`
	Height   int `validate:"gte=0"`
}

// ModelConfig points at the detection assets. BaseURL is either an
// http(s) registry or a local directory of static assets.
type ModelConfig struct {
	BaseURL        string  `validate:"required"`
	CacheDir       string  `validate:"required"`
	CascadeFile    string  `validate:"required"`
	LandmarkFile   string  `validate:"required"`
	LandmarkCount  int     `validate:"oneof=5 68 98 468"`
	Layout         string  `validate:"oneof=xy xyz"`
	InputSize      int     `validate:"gte=32,lte=512"`
	DetectionWidth int     `validate:"gte=80"`
	MinFaceSize    int     `validate:"gte=0"`
	ScaleFactor    float64 `validate:"gt=1"`
	MinNeighbors   int     `validate:"gte=0"`
	MaxFaces       int     `validate:"gte=1"`
	ExpandRatio    float64 `validate:"gte=0,lte=1"`
}

type RenderConfig struct {
	Mode         string `validate:"oneof=markers mesh"`
	MarkerRadius int    `validate:"gte=1,lte=20"`
	Thickness    int    `validate:"gte=1,lte=10"`
	DrawBase     bool
	ColorR       uint8
	ColorG       uint8
	ColorB       uint8
}

type LoopConfig struct {
	Interval time.Duration `validate:"gte=1ms"`
}

type RecordingConfig struct {
	FPS       int           `validate:"gte=1,lte=60"`
	MIMEType  string        `validate:"required"`
	Filename  string        `validate:"required"`
	OutputDir string        `validate:"required"`
	Duration  time.Duration `validate:"gte=0s"`
	Bitrate   string        `validate:"required"`
}

// RemoteConfig enables the WebRTC camera. Empty SignalingURL keeps the
// local camera.
type RemoteConfig struct {
	SignalingURL    string `validate:"omitempty,url"`
	PeerID          string `validate:"required_with=SignalingURL"`
	ICEServers      []string
	PLIInterval     time.Duration `validate:"gte=100ms"`
	DecodeInterval  time.Duration `validate:"gte=0s"`
	MaxDecodeWidth  int           `validate:"gte=16"`
	MaxDecodeHeight int           `validate:"gte=16"`
	SampleBufferMax uint16        `validate:"gte=16"`
}

type LogConfig struct {
	Level string `validate:"omitempty,oneof=trace debug info warn error"`
	File  string
}

// ============================================================
// DEFAULT CONFIGURATIONS
// ============================================================

func DefaultConfig() Config {
	return Config{
		Camera:    DefaultCameraConfig(),
		Model:     DefaultModelConfig(),
		Render:    DefaultRenderConfig(),
		Loop:      DefaultLoopConfig(),
		Recording: DefaultRecordingConfig(),
		Remote:    DefaultRemoteConfig(),
		Log:       LogConfig{Level: "info"},
	}
}

func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		DeviceID: 0,
		Width:    640,
		Height:   480,
	}
}

func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		BaseURL:        "./models-assets",
		CacheDir:       "./.model-cache",
		CascadeFile:    "haarcascade_frontalface_default.xml",
		LandmarkFile:   "face_landmarks_68.onnx",
		LandmarkCount:  68,
		Layout:         "xy",
		InputSize:      112,
		DetectionWidth: 320,
		MinFaceSize:    60,
		ScaleFactor:    1.1,
		MinNeighbors:   5,
		MaxFaces:       4,
		ExpandRatio:    0.1,
	}
}

func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		Mode:         RenderModeMarkers,
		MarkerRadius: 2,
		Thickness:    1,
		DrawBase:     true,
		ColorR:       255,
	}
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Interval: 100 * time.Millisecond,
	}
}

func DefaultRecordingConfig() RecordingConfig {
	return RecordingConfig{
		FPS:       30,
		MIMEType:  MIMETypeWebM,
		Filename:  DefaultArtifactFilename,
		OutputDir: "./recordings",
		Duration:  10 * time.Second,
		Bitrate:   "1M",
	}
}

func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		PeerID: "face-tracking-recorder",
		ICEServers: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		},
		PLIInterval:     1 * time.Second,
		DecodeInterval:  200 * time.Millisecond,
		MaxDecodeWidth:  640,
		MaxDecodeHeight: 480,
		SampleBufferMax: 128,
	}
}
