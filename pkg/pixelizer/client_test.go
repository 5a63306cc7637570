package pixelizer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	client := NewClient("", "test-key")
	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.Equal(t, "test-key", client.apiKey)

	client = NewClient("https://example.com/pixelizer/", "test-key")
	assert.Equal(t, "https://example.com/pixelizer", client.baseURL)
}

func TestPixelizeURLSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/url", r.URL.Path)
		assert.Equal(t, "https://example.com/face.png", r.URL.Query().Get("url"))
		assert.Equal(t, "test-api-key", r.Header.Get("apikey"))

		fmt.Fprint(w, `{"result": "https://x/y.jpg"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-api-key")

	resultURL, err := client.PixelizeURL(context.Background(), "https://example.com/face.png")
	require.NoError(t, err)
	assert.Equal(t, "https://x/y.jpg", resultURL)
}

func TestPixelizeURLMissingResultField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-api-key")

	_, err := client.PixelizeURL(context.Background(), "https://example.com/face.png")
	require.Error(t, err)
	assert.Equal(t, KindMalformedResponse, KindOf(err))
	assert.Contains(t, err.Error(), "{}")
}

func TestPixelizeURLNonJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "all good")
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-api-key")

	_, err := client.PixelizeURL(context.Background(), "https://example.com/face.png")
	require.Error(t, err)
	assert.Equal(t, KindMalformedResponse, KindOf(err))
}

func TestPixelizeURLAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "invalid key"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "bad-key")

	_, err := client.PixelizeURL(context.Background(), "https://example.com/face.png")
	require.Error(t, err)
	assert.Equal(t, KindAPI, KindOf(err))
	assert.Contains(t, err.Error(), "invalid key")
	assert.Contains(t, err.Error(), "403")
}

func TestPixelizeURLAPIErrorNonJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream exploded")
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-api-key")

	_, err := client.PixelizeURL(context.Background(), "https://example.com/face.png")
	require.Error(t, err)
	assert.Equal(t, KindAPI, KindOf(err))
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestPixelizeURLNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, "test-api-key")

	_, err := client.PixelizeURL(context.Background(), "https://example.com/face.png")
	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestPixelizeUploadSuccess(t *testing.T) {
	imageBytes := []byte("\xff\xd8\xff not really a jpeg but close enough")
	filePath := filepath.Join(t.TempDir(), "face.jpg")
	require.NoError(t, os.WriteFile(filePath, imageBytes, 0o644))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("apikey"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, imageBytes, body)

		fmt.Fprint(w, `{"result": "https://x/face.jpg"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-api-key")

	resultURL, err := client.PixelizeUpload(context.Background(), filePath)
	require.NoError(t, err)
	assert.Equal(t, "https://x/face.jpg", resultURL)
}

func TestPixelizeUploadFileNotFound(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-api-key")

	_, err := client.PixelizeUpload(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	require.Error(t, err)
	assert.Equal(t, KindFileNotFound, KindOf(err))
	assert.Equal(t, int64(0), calls.Load(), "no network call should be made for a missing file")
}

func TestPixelizeUploadDirectory(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-api-key")

	_, err := client.PixelizeUpload(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, KindLocalIO, KindOf(err))
	assert.Equal(t, int64(0), calls.Load())
}

func TestPixelizeDispatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result": "https://x/y.jpg"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-api-key")

	_, err := client.Pixelize(context.Background(), Request{})
	require.Error(t, err)

	_, err = client.Pixelize(context.Background(), Request{ImageURL: "https://a/b.jpg", FilePath: "c.jpg"})
	require.Error(t, err)

	resultURL, err := client.Pixelize(context.Background(), Request{ImageURL: "https://a/b.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "https://x/y.jpg", resultURL)
}

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("failed to pixelize image: %w", newError(KindAPI, "nope", nil))
	assert.Equal(t, KindAPI, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(fmt.Errorf("plain")))
}
