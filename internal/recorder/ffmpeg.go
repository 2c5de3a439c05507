package recorder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"face-tracking-recorder/internal/logger"
	"face-tracking-recorder/models"

	"github.com/sirupsen/logrus"
)

const readChunkSize = 32 * 1024

// StreamInfo describes the raw frames fed to an Encoder.
type StreamInfo struct {
	Width  int
	Height int
	FPS    int
}

// ChunkFunc receives encoded media in the order it was produced.
type ChunkFunc func(chunk []byte) error

// Encoder turns BGR24 frames into a container stream pushed through
// ChunkFunc. Finalize returns only after every chunk has been delivered.
type Encoder interface {
	Start(info StreamInfo, onChunk ChunkFunc) error
	WriteFrame(pixels []byte) error
	Finalize() error
}

// ============================================================
// FFMPEG WEBM ENCODER
// ============================================================

// FFmpegEncoder pipes rawvideo into an ffmpeg child and reads VP8/WebM
// from its stdout as it is produced.
type FFmpegEncoder struct {
	Binary  string
	Bitrate string
	log     *logrus.Entry

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  bytes.Buffer
	readErr chan error
	once    sync.Once
	err     error
}

func NewFFmpegEncoder(bitrate string, log logrus.FieldLogger) *FFmpegEncoder {
	return &FFmpegEncoder{
		Binary:  "ffmpeg",
		Bitrate: bitrate,
		log:     logger.Component(log, "encoder"),
	}
}

func (e *FFmpegEncoder) args(info StreamInfo) []string {
	return []string{
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"-r", strconv.Itoa(info.FPS),
		"-i", "pipe:0",
		"-c:v", "libvpx",
		"-b:v", e.Bitrate,
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-pix_fmt", "yuv420p",
		"-f", "webm",
		"pipe:1",
	}
}

// Start launches ffmpeg. A missing binary reports ErrUnsupportedStream.
func (e *FFmpegEncoder) Start(info StreamInfo, onChunk ChunkFunc) error {
	path, err := exec.LookPath(e.Binary)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrUnsupportedStream, err)
	}

	cmd := exec.Command(path, e.args(info)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = &e.stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: ffmpeg start: %v", models.ErrUnsupportedStream, err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.readErr = make(chan error, 1)

	go func() {
		e.readErr <- pump(stdout, onChunk)
	}()

	e.log.Infof("🎬 Encoder started %dx%d@%dfps (%s)", info.Width, info.Height, info.FPS, e.Bitrate)
	return nil
}

// pump forwards everything read from r to onChunk until EOF. After a
// callback error the rest is drained so the child never blocks on stdout.
func pump(r io.Reader, onChunk ChunkFunc) error {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if cbErr := onChunk(buf[:n]); cbErr != nil {
				io.Copy(io.Discard, r)
				return cbErr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (e *FFmpegEncoder) WriteFrame(pixels []byte) error {
	if e.stdin == nil {
		return errors.New("encoder not started")
	}
	_, err := e.stdin.Write(pixels)
	return err
}

// Finalize closes stdin and waits for ffmpeg to flush its output.
func (e *FFmpegEncoder) Finalize() error {
	e.once.Do(func() {
		if e.cmd == nil {
			return
		}
		start := time.Now()
		e.stdin.Close()

		readErr := <-e.readErr
		waitErr := e.cmd.Wait()

		if waitErr != nil {
			stderr := e.stderr.String()
			if len(stderr) > 200 {
				stderr = stderr[:200] + "..."
			}
			e.err = fmt.Errorf("ffmpeg: %w (%s)", waitErr, stderr)
		} else if readErr != nil {
			e.err = fmt.Errorf("read output: %w", readErr)
		}
		e.log.Debugf("Encoder finalized in %v", time.Since(start).Round(time.Millisecond))
	})
	return e.err
}
