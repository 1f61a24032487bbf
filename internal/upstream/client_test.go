package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON_DecodesBodyAndSendsParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/cases/", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":1}`))
	}))
	defer srv.Close()

	c := NewClient("jds", srv.URL+"/api/", nil, 0)
	var out struct {
		Count int `json:"count"`
	}
	err := c.GetJSON(context.Background(), "/cases/", url.Values{"page": {"2"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)
}

func TestGetJSON_Non2xxIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Not found"}`))
	}))
	defer srv.Close()

	c := NewClient("nes", srv.URL, nil, 0)
	err := c.GetJSON(context.Background(), "/entity/person/invalid", nil, &struct{}{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "/entity/person/invalid", apiErr.Endpoint)
	assert.Contains(t, apiErr.Error(), "Not found")
	assert.True(t, IsNotFound(err))
}

func TestGetJSON_TimeoutIsAPIError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient("jds", srv.URL, NewHTTPClient(50*time.Millisecond, nil), 0)
	err := c.GetJSON(context.Background(), "/statistics/", nil, &struct{}{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Zero(t, apiErr.StatusCode)
	assert.NotNil(t, apiErr.Err)
}

func TestGetJSON_ResponseCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"` + strings.Repeat("x", 64) + `"`))
	}))
	defer srv.Close()

	c := NewClient("jds", srv.URL, nil, 16)
	var s string
	err := c.GetJSON(context.Background(), "/cases/", nil, &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 16 bytes")
}
