package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"face-tracking-recorder/models"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Load starts from the compiled-in defaults, overlays environment
// variables (optionally from a .env file) and validates the result.
func Load(envFiles ...string) (models.Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return models.Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := models.DefaultConfig()
	if err := apply(&cfg, os.LookupEnv); err != nil {
		return models.Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return models.Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags on every section.
func Validate(cfg models.Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func apply(cfg *models.Config, lookup lookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	num("CAMERA_DEVICE", &cfg.Camera.DeviceID)
	num("CAMERA_WIDTH", &cfg.Camera.Width)
	num("CAMERA_HEIGHT", &cfg.Camera.Height)

	str("MODEL_BASE_URL", &cfg.Model.BaseURL)
	str("MODEL_CACHE_DIR", &cfg.Model.CacheDir)
	str("MODEL_CASCADE_FILE", &cfg.Model.CascadeFile)
	str("MODEL_LANDMARK_FILE", &cfg.Model.LandmarkFile)
	num("LANDMARK_COUNT", &cfg.Model.LandmarkCount)
	str("LANDMARK_LAYOUT", &cfg.Model.Layout)
	num("MIN_FACE_SIZE", &cfg.Model.MinFaceSize)
	num("MAX_FACES", &cfg.Model.MaxFaces)

	dur("CAPTURE_INTERVAL", &cfg.Loop.Interval)

	str("RENDER_MODE", &cfg.Render.Mode)
	num("MARKER_RADIUS", &cfg.Render.MarkerRadius)
	flag("RENDER_BASE_FRAME", &cfg.Render.DrawBase)

	num("RECORD_FPS", &cfg.Recording.FPS)
	dur("RECORD_DURATION", &cfg.Recording.Duration)
	str("RECORD_BITRATE", &cfg.Recording.Bitrate)
	str("OUTPUT_DIR", &cfg.Recording.OutputDir)

	str("SIGNALING_URL", &cfg.Remote.SignalingURL)
	str("PEER_ID", &cfg.Remote.PeerID)
	dur("PLI_INTERVAL", &cfg.Remote.PLIInterval)
	if v, ok := lookup("ICE_SERVERS"); ok && v != "" {
		cfg.Remote.ICEServers = splitList(v)
	}

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FILE", &cfg.Log.File)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
