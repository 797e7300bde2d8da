package fetcher

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"
)

var png = []byte("\x89PNG\r\n\x1a\nfake")

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/cat.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})
	mux.HandleFunc("/raw", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})
	mux.HandleFunc("/og", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><meta property="og:image" content="/cat.png"></head>
<body><img src="/other.png"></body></html>`))
	})
	mux.HandleFunc("/img", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><p>hi</p><img src="cat.png"><img src="/other.png"></body></html>`))
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><p>no pictures</p></body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchFile(t *testing.T) {
	srv := newSite(t)

	tests := []struct {
		path     string
		filename string
	}{
		{"/cat.png", "cat.png"},
		{"/raw", "raw.png"},
		{"/og", "cat.png"},
		{"/img", "cat.png"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f, err := FetchFile(srv.URL + tt.path)
			assert.Equal(t, err, nil)
			assert.Equal(t, f.Filename, tt.filename)
			assert.Equal(t, f.Data, png)
			assert.Equal(t, f.ContentType, "image/png")
		})
	}
}

func TestFetchFileErrors(t *testing.T) {
	srv := newSite(t)

	_, err := FetchFile(srv.URL + "/text")
	assert.NotEqual(t, err, nil)

	_, err = FetchFile(srv.URL + "/missing")
	assert.NotEqual(t, err, nil)

	_, err = FetchFile("ftp://example.com/a.png")
	assert.NotEqual(t, err, nil)
}

func TestLoadLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	if err := os.WriteFile(path, []byte("A"), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	assert.Equal(t, err, nil)
	assert.Equal(t, f.Filename, "a.png")
	assert.Equal(t, f.BlobStr(), "QQ==")
}

func TestIsURL(t *testing.T) {
	assert.Equal(t, IsURL("https://x.org/a.png"), true)
	assert.Equal(t, IsURL("www.x.org"), true)
	assert.Equal(t, IsURL("./a.png"), false)
}
