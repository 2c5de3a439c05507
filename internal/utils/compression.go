package utils

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// gzipBase64Prefix is how a base64-encoded gzip stream always starts.
const gzipBase64Prefix = "H4sI"

// IsCompressed reports whether data looks like CompressGzip output.
func IsCompressed(data string) bool {
	return strings.HasPrefix(data, gzipBase64Prefix)
}

// CompressGzip gzips data and base64-encodes the result.
func CompressGzip(data string) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	if _, err := gz.Write([]byte(data)); err != nil {
		return "", fmt.Errorf("gzip write: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func DecompressGzip(data string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(decoded))
	if err != nil {
		return "", fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	result, err := io.ReadAll(gz)
	if err != nil {
		return "", fmt.Errorf("gzip read: %w", err)
	}

	return string(result), nil
}

// MaybeDecompress returns data unchanged unless it is compressed.
func MaybeDecompress(data string) (string, error) {
	if !IsCompressed(data) {
		return data, nil
	}
	return DecompressGzip(data)
}
