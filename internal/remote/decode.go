package remote

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"sync"
	"time"
)

const (
	decodeTimeout       = 2 * time.Second
	maxPooledBufferSize = 10 * 1024 * 1024
	initialBufferCap    = 512 * 1024
)

// ============================================================
// KEYFRAME DECODER (FFMPEG)
// ============================================================

// Decoder turns single VP8 keyframes into BGR24 pixels with a short-lived
// ffmpeg process per frame.
type Decoder struct {
	Binary  string
	MaxSize image.Point
	pool    sync.Pool
}

func NewDecoder(maxSize image.Point) *Decoder {
	return &Decoder{
		Binary:  "ffmpeg",
		MaxSize: maxSize,
		pool: sync.Pool{
			New: func() interface{} {
				buf := new(bytes.Buffer)
				buf.Grow(initialBufferCap)
				return buf
			},
		},
	}
}

func (d *Decoder) args(orig, out image.Point) []string {
	args := []string{
		"-loglevel", "error",
		"-nostdin",
		"-f", "ivf",
		"-i", "pipe:0",
	}
	if out != orig {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d:flags=fast_bilinear", out.X, out.Y))
	}
	return append(args,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-threads", "1",
		"pipe:1",
	)
}

// Decode returns the keyframe's pixels, scaled to fit MaxSize.
func (d *Decoder) Decode(ctx context.Context, frame []byte) (image.Point, []byte, error) {
	orig, err := KeyframeSize(frame)
	if err != nil {
		return image.Point{}, nil, fmt.Errorf("parse dims: %w", err)
	}
	size := DecodeSize(orig, d.MaxSize)

	ctx, cancel := context.WithTimeout(ctx, decodeTimeout)
	defer cancel()

	buf := d.pool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		if buf.Cap() <= maxPooledBufferSize {
			d.pool.Put(buf)
		}
	}()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.Binary, d.args(orig, size)...)
	cmd.Stdin = bytes.NewReader(WrapIVF(frame, orig))
	cmd.Stdout = buf
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return image.Point{}, nil, fmt.Errorf("decode: %w (%s)", err, msg)
	}

	expected := size.X * size.Y * 3
	if buf.Len() < expected {
		return image.Point{}, nil, fmt.Errorf("short frame: %d < %d", buf.Len(), expected)
	}

	pixels := make([]byte, expected)
	copy(pixels, buf.Bytes()[:expected])
	return size, pixels, nil
}
