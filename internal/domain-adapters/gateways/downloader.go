package gateways

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/DecBayComp/tramway-tour/internal/domain/entities"
	"github.com/schollz/progressbar/v3"
)

// DefaultUserAgent is sent with every bundle download
const DefaultUserAgent = "tramway-tour/0.4"

// Downloader handles downloading bundle archives from URLs
type Downloader struct {
	httpClient *http.Client
	userAgent  string
	progress   io.Writer
}

// DownloaderOption configures a Downloader
type DownloaderOption func(*Downloader)

// WithTimeout sets the overall timeout of a single download
func WithTimeout(timeout time.Duration) DownloaderOption {
	return func(d *Downloader) {
		d.httpClient.Timeout = timeout
	}
}

// WithUserAgent overrides DefaultUserAgent
func WithUserAgent(userAgent string) DownloaderOption {
	return func(d *Downloader) {
		if userAgent != "" {
			d.userAgent = userAgent
		}
	}
}

// WithProgress renders a progress bar to w while downloading
func WithProgress(w io.Writer) DownloaderOption {
	return func(d *Downloader) {
		d.progress = w
	}
}

// WithHTTPClient replaces the default client (tests point it at fixture servers)
func WithHTTPClient(client *http.Client) DownloaderOption {
	return func(d *Downloader) {
		d.httpClient = client
	}
}

// NewDownloader creates a new downloader
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		httpClient: newSecureHTTPClient(5 * time.Minute), // Long timeout for large bundles
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// newSecureHTTPClient returns a client that refuses anything below TLS 1.2
// and keeps the default proxy settings.
func newSecureHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	transport.ForceAttemptHTTP2 = true

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// DownloadFile downloads url to dest and returns the number of bytes written.
// Network and HTTP status failures are returned as *entities.TransientNetworkError.
func (d *Downloader) DownloadFile(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, &entities.TransientNetworkError{URL: url, Err: err}
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &entities.TransientNetworkError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return 0, fmt.Errorf("failed to create download directory: %w", err)
	}

	//nolint:gosec // G304: dest is the provisioner's temporary download path
	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	body := &readErrRecorder{r: resp.Body}
	var w io.Writer = out
	var bar *progressbar.ProgressBar
	if d.progress != nil {
		bar = progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(d.progress),
			progressbar.OptionSetDescription("downloading "+filepath.Base(dest)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
		w = io.MultiWriter(out, bar)
	}

	written, copyErr := io.Copy(w, body)
	closeErr := out.Close()
	if bar != nil {
		_ = bar.Finish()
	}

	if copyErr != nil {
		if body.err != nil {
			return written, &entities.TransientNetworkError{URL: url, Err: body.err}
		}
		return written, fmt.Errorf("failed to write file: %w", copyErr)
	}
	if closeErr != nil {
		return written, fmt.Errorf("failed to close file: %w", closeErr)
	}

	return written, nil
}

// readErrRecorder remembers read-side failures so they can be told apart
// from local write failures after io.Copy returns.
type readErrRecorder struct {
	r   io.Reader
	err error
}

func (r *readErrRecorder) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		r.err = err
	}
	return n, err
}
