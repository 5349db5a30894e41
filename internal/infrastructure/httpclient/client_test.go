package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"healthy", http.StatusOK, false},
		{"no content", http.StatusNoContent, false},
		{"starting up", http.StatusServiceUnavailable, true},
		{"not found", http.StatusNotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := New(Options{Timeout: time.Second}).Probe(context.Background(), srv.URL+"/health")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProbeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(Options{Timeout: time.Second}).Probe(context.Background(), url)
	assert.Error(t, err)
}

func TestRequestHonoursContext(t *testing.T) {
	client := New(Options{RateLimit: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Request(ctx)
	assert.Error(t, err)
}

func TestBaseURLAndHeaders(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/command", r.URL.Path)
		assert.Equal(t, "http://localhost", r.Header.Get("Origin"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(Options{BaseURL: srv.URL, Headers: map[string]string{"Origin": "http://localhost"}})
	req, err := client.Request(context.Background())
	require.NoError(t, err)

	resp, err := req.Post("/api/command")
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, int32(1), hits.Load())
}
