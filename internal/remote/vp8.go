package remote

import (
	"encoding/binary"
	"fmt"
	"image"
)

const (
	maxVP8Width  = 3840
	maxVP8Height = 2160
)

// ============================================================
// VP8 KEYFRAME PARSING
// ============================================================

// IsKeyframe reports whether frame is a VP8 keyframe with a valid start
// code.
func IsKeyframe(frame []byte) bool {
	_, err := KeyframeSize(frame)
	return err == nil
}

// KeyframeSize returns the picture size carried in a keyframe header.
func KeyframeSize(frame []byte) (image.Point, error) {
	if len(frame) < 10 {
		return image.Point{}, fmt.Errorf("frame too small: %d bytes", len(frame))
	}

	frameTag := uint32(frame[0]) | uint32(frame[1])<<8 | uint32(frame[2])<<16
	if frameTag&0x1 != 0 {
		return image.Point{}, fmt.Errorf("not a keyframe (tag: 0x%x)", frameTag)
	}
	if frame[3] != 0x9d || frame[4] != 0x01 || frame[5] != 0x2a {
		return image.Point{}, fmt.Errorf("invalid start code: %02x %02x %02x", frame[3], frame[4], frame[5])
	}

	width := int(binary.LittleEndian.Uint16(frame[6:8]) & 0x3FFF)
	height := int(binary.LittleEndian.Uint16(frame[8:10]) & 0x3FFF)

	if width == 0 || height == 0 {
		return image.Point{}, fmt.Errorf("zero dimension: %dx%d", width, height)
	}
	if width > maxVP8Width || height > maxVP8Height {
		return image.Point{}, fmt.Errorf("dimension too large: %dx%d", width, height)
	}
	return image.Pt(width, height), nil
}

// DecodeSize fits orig inside max keeping the aspect ratio, rounded down
// to even numbers as rawvideo scalers expect.
func DecodeSize(orig, max image.Point) image.Point {
	if orig.X <= max.X && orig.Y <= max.Y {
		return orig
	}

	scale := float64(max.X) / float64(orig.X)
	if s := float64(max.Y) / float64(orig.Y); s < scale {
		scale = s
	}

	w := int(float64(orig.X)*scale) / 2 * 2
	h := int(float64(orig.Y)*scale) / 2 * 2
	if w < 2 {
		w = 2
	}
	if h < 2 {
		h = 2
	}
	return image.Pt(w, h)
}

// ============================================================
// IVF CONTAINER
// ============================================================

// WrapIVF builds a one-frame IVF file around a VP8 frame so ffmpeg can
// demux it from a pipe.
func WrapIVF(frame []byte, size image.Point) []byte {
	out := make([]byte, 32+12+len(frame))

	// File header.
	copy(out[0:4], "DKIF")
	binary.LittleEndian.PutUint16(out[4:6], 0)
	binary.LittleEndian.PutUint16(out[6:8], 32)
	copy(out[8:12], "VP80")
	binary.LittleEndian.PutUint16(out[12:14], uint16(size.X))
	binary.LittleEndian.PutUint16(out[14:16], uint16(size.Y))
	binary.LittleEndian.PutUint32(out[16:20], 30)
	binary.LittleEndian.PutUint32(out[20:24], 1)
	binary.LittleEndian.PutUint32(out[24:28], 1)

	// Frame header: size then a zero timestamp.
	binary.LittleEndian.PutUint32(out[32:36], uint32(len(frame)))

	copy(out[44:], frame)
	return out
}
