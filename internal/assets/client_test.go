package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/address-formatter/internal/registry"
)

func TestLoad_FromFileServer(t *testing.T) {
	var (
		mu   sync.Mutex
		hits []string
	)
	fileServer := http.FileServer(http.Dir("../registry/conf"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		fileServer.ServeHTTP(w, r)
	}))
	defer srv.Close()

	reg, err := NewClient(srv.URL+"/", nil).Load(context.Background(), nil)
	require.NoError(t, err)

	want, err := registry.Default()
	require.NoError(t, err)
	assert.Equal(t, want.Codes(), reg.Codes())
	assert.Equal(t, want.Abbreviations("de"), reg.Abbreviations("de"))
	assert.Equal(t, want.Languages("BE"), reg.Languages("BE"))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, hits, "/abbreviations/en.yaml")
	assert.Contains(t, hits, "/abbreviations/pap.yaml", "languages come from country2lang")
}

func TestFetch_OptionalFilesMayBeMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/" + registry.WorldwideFile:
			_, _ = w.Write([]byte("default:\n    address_template: \"{{{road}}}\"\n    fallback_template: \"{{{road}}}\"\n"))
		case "/" + registry.ComponentsFile:
			_, _ = w.Write([]byte("name: road\n"))
		case "/abbreviations/en.yaml":
			_, _ = w.Write([]byte("road:\n    Street: St\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a, err := NewClient(srv.URL, nil).Fetch(context.Background(), []string{"EN", "fr", " "})
	require.NoError(t, err)
	assert.Nil(t, a.StateCodes)
	assert.Nil(t, a.Country2Lang)
	assert.Equal(t, map[string][]byte{"en": []byte("road:\n    Street: St\n")}, a.Abbreviations)

	reg, err := registry.Parse(a)
	require.NoError(t, err)
	assert.Empty(t, reg.Codes())
}

func TestFetch_RequiredFileMissing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Fetch(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), registry.WorldwideFile)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls[r.URL.Path]++
		n := calls[r.URL.Path]
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path == "/"+registry.WorldwideFile {
			_, _ = w.Write([]byte("default: {}\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Fetch(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), registry.ComponentsFile)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls["/"+registry.WorldwideFile])
}

func TestFetch_ClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Fetch(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules server error 403: forbidden")
}

func TestIOReadAllLimit(t *testing.T) {
	b, err := ioReadAllLimit(strings.NewReader("abc"), 3)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(b))

	_, err = ioReadAllLimit(strings.NewReader("abcd"), 3)
	assert.EqualError(t, err, "payload too large")
}

func TestLanguagesOf(t *testing.T) {
	assert.Equal(t, []string{"de", "en", "fr", "nl"}, languagesOf([]byte("BE: nl, fr,de\nCA: en,fr\n")))
	assert.Nil(t, languagesOf([]byte("[")))
}
