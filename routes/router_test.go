package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cppla/filedrop/config"
	"github.com/cppla/filedrop/storage"
)

func newTestRouter(t *testing.T) (http.Handler, *storage.Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.New(filepath.Join(root, "uploads"))
	require.NoError(t, err)

	cfg := config.AppConfig{
		StaticRoot:         root,
		MaxFileSizeMB:      1,
		MaxFieldSizeMB:     1,
		RateLimitPerMinute: 0,
		AllowedOrigins:     []string{"*"},
		GinMode:            "test",
	}
	return SetupRouter(cfg, store, zap.NewNop()), store, root
}

func uploadRequest(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthRoute(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, true, body["success"])
}

func TestUploadThenList(t *testing.T) {
	r, _, _ := newTestRouter(t)

	sizes := map[string]int{}
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("f%d.bin", i)
		content := bytes.Repeat([]byte{byte(i)}, 10*(i+1))
		w := serve(r, uploadRequest(t, name, content))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var body struct {
			File struct {
				SavedAs string `json:"savedAs"`
				Size    int    `json:"size"`
			} `json:"file"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Equal(t, len(content), body.File.Size)
		sizes[body.File.SavedAs] = len(content)
	}
	require.Len(t, sizes, 3)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/files", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var listing struct {
		Success bool `json:"success"`
		Files   []struct {
			Name string `json:"name"`
			Size int    `json:"size"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.True(t, listing.Success)
	require.Len(t, listing.Files, 3)
	for _, f := range listing.Files {
		require.Equal(t, sizes[f.Name], f.Size)
	}
}

func TestUploadWithoutFile(t *testing.T) {
	r, _, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("path", "x"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := serve(r, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStaticFallback(t *testing.T) {
	r, _, root := newTestRouter(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>drop</h1>"), 0o644))

	w := serve(r, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	require.Equal(t, http.StatusMovedPermanently, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "<h1>drop</h1>", w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/missing.txt", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	// Uploaded files are reachable through the static root.
	w = serve(r, uploadRequest(t, "hello.txt", []byte("hi")))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		File struct {
			SavedAs string `json:"savedAs"`
		} `json:"file"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/uploads/"+body.File.SavedAs, nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "hi", w.Body.String())

	// Directory without index.html is not listed.
	w = serve(r, httptest.NewRequest(http.MethodGet, "/uploads/", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadRateLimited(t *testing.T) {
	root := t.TempDir()
	store, err := storage.New(filepath.Join(root, "uploads"))
	require.NoError(t, err)
	cfg := config.AppConfig{StaticRoot: root, MaxFileSizeMB: 1, MaxFieldSizeMB: 1, RateLimitPerMinute: 2, GinMode: "test"}
	r := SetupRouter(cfg, store, zap.NewNop())

	require.Equal(t, http.StatusOK, serve(r, uploadRequest(t, "a.txt", []byte("a"))).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(r, uploadRequest(t, "b.txt", []byte("b"))).Code)

	// Other routes are not limited.
	require.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}
