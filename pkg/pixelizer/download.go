package pixelizer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultFilename is used when no usable filename can be derived from a
// result URL.
const DefaultFilename = "pixelized_image.jpg"

// downloadChunkSize is the copy buffer size for streaming artifacts to disk.
const downloadChunkSize = 8 * 1024

// Downloader fetches pixelized artifacts to local storage.
type Downloader struct {
	httpClient *http.Client
}

func NewDownloader() *Downloader {
	return &Downloader{httpClient: &http.Client{}}
}

// SetHTTPClient replaces the underlying HTTP client (timeouts, tests).
func (d *Downloader) SetHTTPClient(hc *http.Client) {
	d.httpClient = hc
}

// Download streams the artifact at resultURL to outputPath, creating missing
// parent directories. The write is not atomic: a mid-stream failure may
// leave a truncated file behind. Returns the saved path on success.
func (d *Downloader) Download(ctx context.Context, resultURL, outputPath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return "", newError(KindNetwork, "failed to create request", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", newError(KindNetwork, fmt.Sprintf("failed to fetch %s", resultURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", newError(KindAPI, apiErrorDetail(resp.StatusCode, body), nil)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", newError(KindOutputWrite, fmt.Sprintf("failed to create directory %s", dir), err)
		}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return "", newError(KindOutputWrite, fmt.Sprintf("failed to create %s", outputPath), err)
	}

	buf := make([]byte, downloadChunkSize)
	if _, err := io.CopyBuffer(out, resp.Body, buf); err != nil {
		out.Close()
		return "", newError(KindOutputWrite, fmt.Sprintf("failed while writing %s", outputPath), err)
	}
	if err := out.Close(); err != nil {
		return "", newError(KindOutputWrite, fmt.Sprintf("failed to close %s", outputPath), err)
	}
	return outputPath, nil
}

// OutputFilename derives a local filename from a result URL: the final path
// segment when it carries an extension, DefaultFilename otherwise. It never
// fails; unparseable URLs also fall back to DefaultFilename.
func OutputFilename(resultURL string) string {
	u, err := url.Parse(resultURL)
	if err != nil {
		return DefaultFilename
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || !strings.Contains(name, ".") {
		return DefaultFilename
	}
	return name
}
