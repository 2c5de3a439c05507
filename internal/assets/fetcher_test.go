package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"face-tracking-recorder/internal/logger"
)

func TestResolveLocal(t *testing.T) {
	dir := t.TempDir()
	want := filepath.Join(dir, "cascade.xml")
	if err := os.WriteFile(want, []byte("<opencv_storage/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewFetcher(t.TempDir(), time.Second, logger.Discard())

	got, err := f.Resolve(context.Background(), dir, "cascade.xml")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	if _, err := f.Resolve(context.Background(), dir, "missing.onnx"); err == nil {
		t.Error("Expected error for missing local asset")
	}
}

func TestResolveRemoteCachesDownload(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/registry/landmarks.onnx" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ONNX-BYTES"))
	}))
	defer srv.Close()

	cache := t.TempDir()
	f := NewFetcher(cache, time.Second, logger.Discard())

	for i := 0; i < 2; i++ {
		path, err := f.Resolve(context.Background(), srv.URL+"/registry/", "landmarks.onnx")
		if err != nil {
			t.Fatalf("Resolve #%d failed: %v", i, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "ONNX-BYTES" {
			t.Errorf("Unexpected cached content %q", data)
		}
	}

	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("Expected exactly 1 download, got %d", n)
	}
}

func TestResolveRemoteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cache := t.TempDir()
	f := NewFetcher(cache, time.Second, logger.Discard())

	if _, err := f.Resolve(context.Background(), srv.URL, "landmarks.onnx"); err == nil {
		t.Fatal("Expected error for 403 response")
	}

	if _, err := os.Stat(filepath.Join(cache, "landmarks.onnx")); !os.IsNotExist(err) {
		t.Errorf("Failed download must not leave a cached file")
	}
}

func TestIsRemote(t *testing.T) {
	cases := map[string]bool{
		"https://cdn.example.com/models": true,
		"http://localhost:9000":          true,
		"./public/models":                false,
		"/opt/models":                    false,
	}
	for base, want := range cases {
		if got := IsRemote(base); got != want {
			t.Errorf("IsRemote(%q) = %v, want %v", base, got, want)
		}
	}
}
