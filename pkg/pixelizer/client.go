package pixelizer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// DefaultBaseURL is the apilayer face pixelizer endpoint.
const DefaultBaseURL = "https://api.apilayer.com/face_pixelizer"

// Request selects exactly one input for a pixelization call: a remote image
// URL or a local file to upload. Setting both (or neither) is an error.
type Request struct {
	ImageURL string
	FilePath string
}

// Client talks to the face pixelizer service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL and API key. An empty
// baseURL falls back to DefaultBaseURL.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// SetHTTPClient replaces the underlying HTTP client (timeouts, tests).
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Pixelize dispatches on the populated Request variant.
func (c *Client) Pixelize(ctx context.Context, req Request) (string, error) {
	switch {
	case req.ImageURL != "" && req.FilePath != "":
		return "", fmt.Errorf("request has both an image URL and a file path")
	case req.ImageURL != "":
		return c.PixelizeURL(ctx, req.ImageURL)
	case req.FilePath != "":
		return c.PixelizeUpload(ctx, req.FilePath)
	default:
		return "", fmt.Errorf("request has neither an image URL nor a file path")
	}
}

// PixelizeURL asks the service to pixelize the image behind imageURL and
// returns the URL of the processed image. imageURL is passed through as-is;
// the service is the authority on whether it is fetchable.
func (c *Client) PixelizeURL(ctx context.Context, imageURL string) (string, error) {
	endpoint := c.baseURL + "/url?" + url.Values{"url": {imageURL}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", newError(KindNetwork, "failed to create request", err)
	}
	return c.do(req)
}

// PixelizeUpload uploads the local image file to the service and returns the
// URL of the processed image. A nonexistent file fails before any network
// call is made.
func (c *Client) PixelizeUpload(ctx context.Context, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", newError(KindFileNotFound, fmt.Sprintf("file not found: %s", filePath), err)
		}
		return "", newError(KindLocalIO, fmt.Sprintf("failed to open file: %s", filePath), err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.IsDir() {
		return "", newError(KindLocalIO, fmt.Sprintf("%s is a directory", filePath), nil)
	}

	return c.PixelizeReader(ctx, f)
}

// PixelizeReader uploads raw image bytes from r. Used when the image is
// already in memory or in object storage rather than on local disk.
func (c *Client) PixelizeReader(ctx context.Context, r io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", r)
	if err != nil {
		return "", newError(KindNetwork, "failed to create request", err)
	}
	return c.do(req)
}

// do sends the request with the apikey header set and normalizes the
// response into a result URL or a classified error.
func (c *Client) do(req *http.Request) (string, error) {
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", newError(KindNetwork, "failed to send request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newError(KindNetwork, "failed to read response", err)
	}

	if resp.StatusCode >= 400 {
		return "", newError(KindAPI, apiErrorDetail(resp.StatusCode, body), nil)
	}

	result := struct {
		Result string `json:"result"`
	}{}
	if err := json.Unmarshal(body, &result); err != nil || result.Result == "" {
		return "", newError(KindMalformedResponse,
			fmt.Sprintf("response did not contain a 'result' field: %s", string(body)), nil)
	}
	return result.Result, nil
}

// apiErrorDetail extracts the service's 'message' field when the error body
// is JSON, falling back to the raw status and body text. Extraction is best
// effort and never fails itself.
func apiErrorDetail(statusCode int, body []byte) string {
	payload := struct {
		Message string `json:"message"`
	}{}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return fmt.Sprintf("API responded with status %d: %s", statusCode, payload.Message)
	}
	return fmt.Sprintf("API responded with status %d: %s", statusCode, strings.TrimSpace(string(body)))
}
