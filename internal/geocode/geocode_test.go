package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestCoordinates_Success(t *testing.T) {
	srv, hits := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "San Francisco", r.URL.Query().Get("q"))
		require.Equal(t, "key123", r.URL.Query().Get("api_key"))
		_, _ = w.Write([]byte(`[{"lat":"37.7792588","lon":"-122.4193286","display_name":"San Francisco"},{"lat":"1","lon":"2"}]`))
	})
	c := New(Config{BaseURL: srv.URL, APIKey: "key123", RequestsPerSecond: 100})

	res, err := c.Coordinates(context.Background(), "San Francisco")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	require.InDelta(t, 37.7792588, *res.Latitude, 1e-9)
	require.InDelta(t, -122.4193286, *res.Longitude, 1e-9)

	// cached per place, case-insensitively
	_, err = c.Coordinates(context.Background(), "san francisco ")
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())
}

func TestCoordinates_NoResults(t *testing.T) {
	srv, hits := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	c := New(Config{BaseURL: srv.URL, RequestsPerSecond: 100})

	res, err := c.Coordinates(context.Background(), "Atlantis")
	require.NoError(t, err)
	require.Equal(t, StatusNoResults, res.Status)
	require.Nil(t, res.Latitude)
	require.Nil(t, res.Longitude)

	// misses are not cached
	_, _ = c.Coordinates(context.Background(), "Atlantis")
	require.Equal(t, int32(2), hits.Load())
}

func TestCoordinates_HTTPError(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})
	c := New(Config{BaseURL: srv.URL, RequestsPerSecond: 100})

	res, err := c.Coordinates(context.Background(), "Paris")
	require.Error(t, err)
	require.Contains(t, res.Status, "Request error:")
	require.Contains(t, res.Status, "429")
	require.Nil(t, res.Latitude)
}

func TestCoordinates_DecodeError(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	c := New(Config{BaseURL: srv.URL, RequestsPerSecond: 100})

	res, err := c.Coordinates(context.Background(), "Paris")
	require.Error(t, err)
	require.Contains(t, res.Status, "JSON decode error:")
}

func TestCoordinates_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(Config{BaseURL: srv.URL, RequestsPerSecond: 100})

	res, err := c.Coordinates(context.Background(), "Paris")
	require.Error(t, err)
	require.Contains(t, res.Status, "Request error:")
}

func TestCoordinates_EmptyPlace(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})

	res, err := c.Coordinates(context.Background(), "  ")
	require.Error(t, err)
	require.Contains(t, res.Status, "Request error")
}

func TestCoordinates_CancelledWhileRateLimited(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	c := New(Config{BaseURL: srv.URL, RequestsPerSecond: 0.001})

	_, err := c.Coordinates(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := c.Coordinates(ctx, "second")
	require.Error(t, err)
	require.Contains(t, res.Status, "rate limiter")
}
