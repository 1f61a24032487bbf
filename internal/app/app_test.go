package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jawafdehi/internal/archive"
	"jawafdehi/internal/config"
)

func TestNewLogger(t *testing.T) {
	l := NewLogger(config.Log{Level: "debug", Format: "json"})
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	l = NewLogger(config.Log{Level: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)
}

func TestOpenArchive(t *testing.T) {
	s, checks, err := OpenArchive(context.Background(), config.Archive{ModeVal: archive.ModeOff})
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Empty(t, checks)

	s, _, err = OpenArchive(context.Background(), config.Archive{
		ModeVal: archive.ModeRecord,
		Driver:  config.DriverLevelDB,
		Path:    filepath.Join(t.TempDir(), "archive"),
	})
	require.NoError(t, err)
	assert.IsType(t, &archive.LevelDB{}, s)
	require.NoError(t, s.Close())
}

func TestNew(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.ModeVal = archive.ModeReplay
	cfg.Archive.Path = filepath.Join(t.TempDir(), "archive")
	logger, _ := test.NewNullLogger()

	var wrapped bool
	a, err := New(context.Background(), cfg, logger, func(rt http.RoundTripper) http.RoundTripper {
		wrapped = true
		return rt
	})
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, wrapped)
	assert.NotNil(t, a.Site)
	assert.NotNil(t, a.Archive)

	tmpl, err := a.Template()
	require.NoError(t, err)
	assert.Contains(t, tmpl, "<!--app-html-->")
}

func TestTemplateFromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(p, []byte("<head></head><!--app-html-->"), 0o644))

	cfg := config.Default()
	cfg.Prerender.Template = p
	a := &App{Config: cfg}
	tmpl, err := a.Template()
	require.NoError(t, err)
	assert.Equal(t, "<head></head><!--app-html-->", tmpl)

	a.Config.Prerender.Template = p + ".missing"
	_, err = a.Template()
	assert.Error(t, err)
}
