// Face Tracking Recorder - live landmark overlay with WebM capture
// Frames come from a local camera or, when SIGNALING_URL is set, from a
// remote peer's VP8 video track.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"face-tracking-recorder/internal/assets"
	"face-tracking-recorder/internal/camera"
	"face-tracking-recorder/internal/config"
	"face-tracking-recorder/internal/detector"
	"face-tracking-recorder/internal/logger"
	"face-tracking-recorder/internal/pipeline"
	"face-tracking-recorder/internal/recorder"
	"face-tracking-recorder/internal/remote"
	"face-tracking-recorder/internal/signaling"
	"face-tracking-recorder/internal/source"
	"face-tracking-recorder/internal/surface"
	"face-tracking-recorder/models"

	"github.com/sirupsen/logrus"
)

const assetTimeout = 60 * time.Second

// ============================================================
// MAIN
// ============================================================

func main() {
	fmt.Println("╔════════════════════════════════════════════════════╗")
	fmt.Println("║  Face Tracking Recorder                            ║")
	fmt.Println("║  🎯 Landmark overlay + WebM recording              ║")
	fmt.Println("╚════════════════════════════════════════════════════╝")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("❌ Recorder stopped with error")
	}
	log.Info("✅ Done!")
}

func run(cfg models.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := assets.NewFetcher(cfg.Model.CacheDir, assetTimeout, log)
	det := detector.New(fetcher, log)
	defer det.Close()

	canvas := surface.New(cfg.Camera.Width, cfg.Camera.Height)
	defer canvas.Close()

	rec := recorder.NewController(cfg.Recording, func() recorder.Encoder {
		return recorder.NewFFmpegEncoder(cfg.Recording.Bitrate, log)
	}, log)

	var sig *signaling.Client
	open := func(ctx context.Context) (source.FrameSource, error) {
		if cfg.Remote.SignalingURL == "" {
			cam, err := camera.Open(ctx, cfg.Camera, log)
			if err != nil {
				return nil, err
			}
			return cam, nil
		}
		sig = signaling.NewClient(cfg.Remote, log)
		src := remote.New(sig, cfg.Remote, log)
		if err := sig.Connect(ctx); err != nil {
			src.Close()
			sig.Close()
			return nil, fmt.Errorf("%w: signaling: %w", models.ErrCameraUnavailable, err)
		}
		return src, nil
	}

	manager := pipeline.NewManager(cfg, open, canvas, det, rec, log)
	if err := manager.Start(ctx); err != nil {
		manager.Close()
		return err
	}

	if err := manager.WaitModel(); err != nil {
		log.WithError(err).Warn("⚠️ Model not loaded, drawing frames without landmarks")
	} else {
		log.Info("✅ Model loaded, tracking faces")
	}

	if cfg.Recording.Duration > 0 {
		log.Infof("🔴 Recording %v", cfg.Recording.Duration)
		if _, err := manager.RecordFor(ctx, cfg.Recording.Duration); err != nil {
			log.WithError(err).Warn("⚠️ Recording incomplete")
		}
		if path, err := manager.SaveRecording(); err != nil {
			log.WithError(err).Error("❌ Failed to save recording")
		} else {
			log.Infof("💾 Recording saved to %s", path)
		}
	}

	log.Info("👀 Tracking. Press Ctrl+C to stop")
	<-ctx.Done()

	log.Info("⚠️ Shutting down...")
	err := manager.Close()
	if sig != nil {
		sig.Close()
	}
	return err
}
