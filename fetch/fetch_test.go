package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fetchData = "release artifact bytes"

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/artifact":
			io.WriteString(w, fetchData)
		case "/missing":
			http.Error(w, "no such artifact", http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "nested", "artifact")
		f := NewFetcher(WithRetries(0))

		err := f.Fetch(ctx, srv.URL+"/artifact", dest)
		require.NoError(t, err)

		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, fetchData, string(got))

		_, err = os.Stat(dest + ".tmp")
		assert.True(t, os.IsNotExist(err), "temp file should not survive a successful fetch")
	})

	t.Run("NotFound", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "artifact")
		f := NewFetcher(WithRetries(1), WithRetryWait(time.Millisecond))

		err := f.Fetch(ctx, srv.URL+"/missing", dest)
		assert.Error(t, err)
		assert.ErrorContains(t, err, "download failed after 1 retries")
		assert.ErrorContains(t, err, "no such artifact")

		_, statErr := os.Stat(dest)
		assert.True(t, os.IsNotExist(statErr), "no file should be written on failure")
	})
}

func TestFetchRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fetchData)
	}))
	t.Cleanup(srv.Close)

	dest := filepath.Join(t.TempDir(), "artifact")
	f := NewFetcher(WithRetries(3), WithRetryWait(time.Millisecond))

	err := f.Fetch(context.Background(), srv.URL+"/flaky", dest)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, fetchData, string(got))
}

func TestFetchContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(WithRetries(3), WithRetryWait(time.Second))
	err := f.Fetch(ctx, srv.URL, filepath.Join(t.TempDir(), "artifact"))
	assert.ErrorIs(t, err, context.Canceled)
}
