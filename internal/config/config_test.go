package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jawafdehi/internal/archive"
	"jawafdehi/internal/query"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "jawafdehi.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://portal.jawafdehi.org/api", cfg.Upstream.JDS)
	assert.Equal(t, "https://nes.newnepal.org/api", cfg.Upstream.NES)
	assert.Equal(t, 10*time.Second, cfg.Upstream.TimeoutDur)
	assert.Equal(t, int64(8*1024*1024), cfg.Upstream.MaxResponseBytes)
	assert.Equal(t, 5*time.Minute, cfg.StaleDur)
	assert.Equal(t, "__REACT_QUERY_STATE__", cfg.Prerender.GlobalName)
	require.Len(t, cfg.Prerender.Routes, 3)
	assert.Equal(t, "/information", cfg.Prerender.Routes[2].URL)
	assert.Equal(t, archive.ModeOff, cfg.Archive.ModeVal)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	t.Setenv("JDS_API_BASE_URL", "http://localhost:8000/api/")
	t.Setenv("LOG_LEVEL", "debug")

	p := writeConfig(t, `
staleTime: forever
upstream:
  timeout: 3s
  maxResponse: 2mb
prerender:
  template: dist/client/index.html
  siteURL: https://jawafdehi.org
  routes:
    - url: /
      prefetch: [page]
    - url: /case/1
      prefetch: [case]
archive:
  mode: replay
  path: ./testdata/archive
serve:
  pageTTL: 30s
  rules:
    - match: PathPrefix(/entities) | PathPrefix(/cases)
      priority: 2
      bypass: true
    - match: PathPrefix(/case/)
      priority: 1
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/api", cfg.Upstream.JDS)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, query.Forever, cfg.StaleDur)
	assert.Equal(t, 3*time.Second, cfg.Upstream.TimeoutDur)
	assert.Equal(t, int64(2*1024*1024), cfg.Upstream.MaxResponseBytes)
	assert.Equal(t, []string{"page"}, cfg.Prerender.Routes[0].Prefetch)
	assert.Equal(t, archive.ModeReplay, cfg.Archive.ModeVal)
	assert.Equal(t, 30*time.Second, cfg.Serve.PageTTLDur)

	require.Len(t, cfg.Serve.Rules, 2)
	assert.Equal(t, 1, cfg.Serve.Rules[0].Priority)
	r := cfg.Serve.PickRule("/cases")
	require.NotNil(t, r)
	assert.True(t, r.Bypass)
	assert.False(t, cfg.Serve.PickRule("/case/4").Bypass)
	assert.Nil(t, cfg.Serve.PickRule("/about"))
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":       "upstream: [",
		"bad timeout":    "upstream:\n  timeout: soon\n",
		"zero stale":     "staleTime: 0s\n",
		"bad url":        "upstream:\n  nes: not a url\n",
		"bad route":      "prerender:\n  routes:\n    - url: about\n",
		"no routes":      "prerender:\n  routes: []\n",
		"bad global":     "prerender:\n  globalName: window.state\n",
		"bad mode":       "archive:\n  mode: rewind\n",
		"redis no url":   "archive:\n  mode: record\n  driver: redis\n",
		"bad match":      "serve:\n  rules:\n    - match: Host(x)\n",
		"bad log format": "log:\n  format: xml\n",
		"bad port":       "serve:\n  port: 70000\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
			var cerr *Error
			assert.True(t, errors.As(err, &cerr))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseMatch(t *testing.T) {
	ms, err := parseMatch("PathPrefix(/a) | PathPrefix(/b/c)")
	require.NoError(t, err)
	assert.Len(t, ms, 2)

	for _, bad := range []string{"", "PathPrefix()", "PathPrefix(a)", "Prefix(/a)", " | "} {
		_, err := parseMatch(bad)
		assert.Error(t, err, bad)
	}
}
