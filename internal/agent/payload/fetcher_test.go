package payload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/updrive-io/updrive/internal/updater"
)

func TestFetcherHTTPDownload(t *testing.T) {
	content := []byte("this is the update payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	f, err := NewFetcher(Config{DestDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFetcher failed: %v", err)
	}

	sum := sha256.Sum256(content)
	plan := &updater.InstallPlan{
		DownloadURL:  srv.URL,
		DownloadHash: hex.EncodeToString(sum[:]),
		DownloadSize: uint64(len(content)),
	}

	var lastReceived, lastTotal uint64
	progress := func(received, total uint64) {
		if received < lastReceived {
			t.Errorf("progress went backwards: %d after %d", received, lastReceived)
		}
		lastReceived, lastTotal = received, total
	}

	if err := f.Download(context.Background(), plan, progress); err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	got, err := os.ReadFile(f.PayloadPath())
	if err != nil {
		t.Fatalf("payload file missing: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("payload content mismatch")
	}
	if lastReceived != uint64(len(content)) || lastTotal != uint64(len(content)) {
		t.Errorf("final progress = %d/%d, want %d/%d",
			lastReceived, lastTotal, len(content), len(content))
	}
}

func TestFetcherRejectsHashMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tampered payload"))
	}))
	defer srv.Close()

	f, err := NewFetcher(Config{DestDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFetcher failed: %v", err)
	}

	plan := &updater.InstallPlan{
		DownloadURL:  srv.URL,
		DownloadHash: "deadbeef",
	}
	if err := f.Download(context.Background(), plan, nil); err == nil {
		t.Errorf("Download with a wrong hash should fail")
	}
}

func TestFetcherRejectsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f, err := NewFetcher(Config{DestDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFetcher failed: %v", err)
	}

	plan := &updater.InstallPlan{DownloadURL: srv.URL}
	if err := f.Download(context.Background(), plan, nil); err == nil {
		t.Errorf("Download from a 404 should fail")
	}
}

func TestFetcherObjectURLNeedsEndpoint(t *testing.T) {
	f, err := NewFetcher(Config{DestDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFetcher failed: %v", err)
	}

	plan := &updater.InstallPlan{DownloadURL: "s3://payloads/img-2.0.bin"}
	if err := f.Download(context.Background(), plan, nil); err == nil {
		t.Errorf("s3 url without an endpoint should fail")
	}
}
