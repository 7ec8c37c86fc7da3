package gateways

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
)

func TestDownloader_DownloadFile(t *testing.T) {
	payload := []byte("bundle bytes")
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	d := NewDownloader(WithHTTPClient(server.Client()))
	dest := filepath.Join(t.TempDir(), "nested", "bundle.tar.bz2")

	written, err := d.DownloadFile(context.Background(), server.URL+"/bundle.tar.bz2", dest)
	if err != nil {
		t.Fatalf("DownloadFile() error = %v", err)
	}
	if written != int64(len(payload)) {
		t.Errorf("DownloadFile() written = %d, want %d", written, len(payload))
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("Failed to read downloaded file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("downloaded content = %q, want %q", got, payload)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, DefaultUserAgent)
	}
}

func TestDownloader_DownloadFile_CustomUserAgentAndProgress(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write(bytes.Repeat([]byte("x"), 4096))
	}))
	defer server.Close()

	var progress bytes.Buffer
	d := NewDownloader(
		WithHTTPClient(server.Client()),
		WithUserAgent("notebook-setup/1.0"),
		WithProgress(&progress),
	)

	dest := filepath.Join(t.TempDir(), "bundle.tar")
	if _, err := d.DownloadFile(context.Background(), server.URL, dest); err != nil {
		t.Fatalf("DownloadFile() error = %v", err)
	}
	if gotUA != "notebook-setup/1.0" {
		t.Errorf("User-Agent = %q, want notebook-setup/1.0", gotUA)
	}
}

func TestDownloader_DownloadFile_HTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	d := NewDownloader(WithHTTPClient(server.Client()))
	dest := filepath.Join(t.TempDir(), "bundle.tar.bz2")

	_, err := d.DownloadFile(context.Background(), server.URL, dest)
	if err == nil {
		t.Fatal("DownloadFile() should fail on HTTP 404")
	}

	var netErr *entities.TransientNetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("DownloadFile() error = %T, want *entities.TransientNetworkError", err)
	}
	if netErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", netErr.StatusCode)
	}

	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("no file should be created for a failed request")
	}
}

func TestDownloader_DownloadFile_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	url := server.URL
	server.Close()

	d := NewDownloader(WithTimeout(5 * time.Second))
	_, err := d.DownloadFile(context.Background(), url, filepath.Join(t.TempDir(), "x"))
	if !entities.IsTransient(err) {
		t.Fatalf("DownloadFile() error = %v, want transient network error", err)
	}
}

func TestDownloader_DownloadFile_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("late"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDownloader(WithHTTPClient(server.Client()))
	_, err := d.DownloadFile(ctx, server.URL, filepath.Join(t.TempDir(), "x"))
	if err == nil {
		t.Fatal("DownloadFile() should fail with a canceled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("DownloadFile() error = %v, want context.Canceled in chain", err)
	}
}

func TestDownloader_DownloadFile_InvalidURL(t *testing.T) {
	d := NewDownloader()
	_, err := d.DownloadFile(context.Background(), "://bad url", filepath.Join(t.TempDir(), "x"))
	if err == nil {
		t.Fatal("DownloadFile() should fail for an invalid URL")
	}
	if entities.IsTransient(err) {
		t.Error("a malformed URL is a configuration error, not a transient one")
	}
}
