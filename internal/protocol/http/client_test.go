package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/reqdeck/internal/protocol"
)

func serve(t *testing.T, h http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestExecuteKeepsQueryVerbatim(t *testing.T) {
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "page=1&q=a%20b&flag", r.URL.RawQuery)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"ok"}`)
	})

	resp, err := New().Execute(context.Background(), &protocol.Request{
		Method:  http.MethodGet,
		URL:     base + "/search?page=1&q=a%20b&flag",
		Headers: map[string]string{"Accept": "application/json"},
	})
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Body))
	assert.Equal(t, int64(len(resp.Body)), resp.Size)
	require.NotNil(t, resp.Timing)
	assert.Positive(t, resp.Timing.Total)
	assert.GreaterOrEqual(t, resp.Timing.Total, resp.Timing.TTFB)
	assert.False(t, resp.Truncated)
}

func TestExecuteSendsBody(t *testing.T) {
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, `{"name":"Ping"}`, string(body))
		w.WriteHeader(http.StatusAccepted)
	})

	resp, err := New().Execute(context.Background(), &protocol.Request{
		Method: http.MethodPatch,
		URL:    base + "/requests/1",
		Body:   []byte(`{"name":"Ping"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Empty(t, resp.Body)
}

func TestExecuteErrorStatusesAreResponses(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusBadGateway} {
		base := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			io.WriteString(w, http.StatusText(status))
		})

		resp, err := New().Execute(context.Background(), &protocol.Request{Method: http.MethodGet, URL: base})
		require.NoError(t, err, "status %d", status)
		assert.Equal(t, status, resp.StatusCode)
		assert.Equal(t, http.StatusText(status), string(resp.Body))
	}
}

func TestExecuteWithoutResponse(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	closed := srv.URL
	srv.Close()

	_, err := New().Execute(context.Background(), &protocol.Request{Method: http.MethodGet, URL: closed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sending request")
}

func TestExecuteTimeouts(t *testing.T) {
	release := make(chan struct{})
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := New().Execute(context.Background(), &protocol.Request{
		Method:  http.MethodGet,
		URL:     base,
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err, "request timeout")

	c := New()
	c.SetTimeout(50 * time.Millisecond)
	_, err = c.Execute(context.Background(), &protocol.Request{Method: http.MethodGet, URL: base})
	require.Error(t, err, "client timeout")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New().Execute(ctx, &protocol.Request{Method: http.MethodGet, URL: base})
	require.Error(t, err, "cancelled context")
}

func TestExecuteBodyCap(t *testing.T) {
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Repeat("x", 100))
	})

	tests := []struct {
		limit     int64
		wantLen   int
		truncated bool
	}{
		{limit: 10, wantLen: 10, truncated: true},
		{limit: 100, wantLen: 100},
		{limit: 0, wantLen: 100},
	}
	for _, tt := range tests {
		c := New()
		c.SetMaxBodyBytes(tt.limit)
		resp, err := c.Execute(context.Background(), &protocol.Request{Method: http.MethodGet, URL: base})
		require.NoError(t, err)
		assert.Len(t, resp.Body, tt.wantLen, "limit %d", tt.limit)
		assert.Equal(t, tt.truncated, resp.Truncated, "limit %d", tt.limit)
		assert.Equal(t, int64(tt.wantLen), resp.Size)
	}
}

func TestExecuteStopsRedirectLoops(t *testing.T) {
	var base string
	base = serve(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, base+"/loop", http.StatusFound)
	})

	_, err := New().Execute(context.Background(), &protocol.Request{Method: http.MethodGet, URL: base})
	require.Error(t, err)
	assert.ErrorIs(t, err, errTooManyRedirects)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     protocol.Request
		wantErr bool
	}{
		{"absolute", protocol.Request{Method: "GET", URL: "http://example.com"}, false},
		{"no url", protocol.Request{Method: "GET"}, true},
		{"no method", protocol.Request{URL: "http://example.com"}, true},
		{"relative", protocol.Request{Method: "GET", URL: "example.com/path"}, true},
		{"no host", protocol.Request{Method: "GET", URL: "http:///path"}, true},
	}
	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Validate(&tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func BenchmarkExecute(b *testing.B) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := New()
	req := &protocol.Request{Method: http.MethodGet, URL: srv.URL}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := c.Execute(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}
