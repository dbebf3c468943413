package uploader

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugsite/plugsite/pkg/catalog"
)

// memFileServer is a minimal in-memory HTTP file store backing GET, HEAD,
// PUT and DELETE, standing in for a real WebDAV-ish upload endpoint in
// tests of HTTPTransport's GET+PUT+DELETE rename approximation.
type memFileServer struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFileServer() *memFileServer { return &memFileServer{files: make(map[string][]byte)} }

func (s *memFileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		b, ok := s.files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Last-Modified", "Wed, 21 Oct 2020 07:28:00 GMT")
		w.Header().Set("Content-Length", strconv.Itoa(len(b)))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		b, ok := s.files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Last-Modified", "Wed, 21 Oct 2020 07:28:00 GMT")
		_, _ = w.Write(b)
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		s.files[r.URL.Path] = body
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		delete(s.files, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestHTTPTransport_ProbeCatalogMtime(t *testing.T) {
	srv := newMemFileServer()
	srv.files["/up/db.xml.gz"] = []byte("catalog bytes")
	server := httptest.NewServer(srv)
	defer server.Close()

	transport := NewHTTPTransport(server.Client())
	site := &catalog.Site{Name: "Example", Host: server.URL, UploadDir: "up"}

	mtime, err := transport.ProbeCatalogMtime(context.Background(), site)
	require.NoError(t, err)
	assert.False(t, mtime.IsZero())
}

func TestHTTPTransport_LockThenContested(t *testing.T) {
	srv := newMemFileServer()
	server := httptest.NewServer(srv)
	defer server.Close()

	transport := NewHTTPTransport(server.Client())
	site := &catalog.Site{Name: "Example", Host: server.URL, UploadDir: "up"}

	require.NoError(t, transport.Lock(context.Background(), site))

	other := NewHTTPTransport(server.Client())
	err := other.Lock(context.Background(), site)
	require.Error(t, err)
}

func TestHTTPTransport_UploadAndCommit(t *testing.T) {
	srv := newMemFileServer()
	server := httptest.NewServer(srv)
	defer server.Close()

	transport := NewHTTPTransport(server.Client())
	site := &catalog.Site{Name: "Example", Host: server.URL, UploadDir: "up"}

	content := []byte("plugin payload")
	err := transport.UploadFile(context.Background(), site, "Example.jar", bytesReader(content), int64(len(content)))
	require.NoError(t, err)

	require.NoError(t, transport.Lock(context.Background(), site))
	catalogBytes := []byte("fake catalog content")
	mtime, err := transport.CommitCatalog(context.Background(), site, catalogBytes)
	require.NoError(t, err)
	assert.False(t, mtime.IsZero())

	srv.mu.Lock()
	got := srv.files["/up/db.xml.gz"]
	_, lockStillThere := srv.files["/up/db.xml.gz.lock"]
	srv.mu.Unlock()
	assert.Equal(t, catalogBytes, got)
	assert.False(t, lockStillThere, "commit must rename the lock file away")
}

func TestHTTPTransport_UploadFileSendsBasicAuthWhenConfigured(t *testing.T) {
	var gotUser, gotPass string
	var gotOK bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.Client())
	site := &catalog.Site{
		Name: "Example", Host: server.URL, UploadDir: "up",
		AuthUsername: "uploader", AuthPassword: "secret",
	}

	content := []byte("plugin payload")
	err := transport.UploadFile(context.Background(), site, "Example.jar", bytesReader(content), int64(len(content)))
	require.NoError(t, err)
	require.True(t, gotOK, "expected a Basic auth header on the upload request")
	assert.Equal(t, "uploader", gotUser)
	assert.Equal(t, "secret", gotPass)
}

func TestHTTPTransport_ProbeSendsHeaderAuthWhenConfigured(t *testing.T) {
	var gotHeader string
	srv := newMemFileServer()
	srv.files["/up/db.xml.gz"] = []byte("catalog bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		srv.ServeHTTP(w, r)
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.Client())
	site := &catalog.Site{
		Name: "Example", Host: server.URL, UploadDir: "up",
		AuthHeaderName: "X-Api-Key", AuthHeaderValue: "token-123",
	}

	_, err := transport.ProbeCatalogMtime(context.Background(), site)
	require.NoError(t, err)
	assert.Equal(t, "token-123", gotHeader)
}
