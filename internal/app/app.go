// Package app wires configuration into the pieces both commands share.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"jawafdehi/internal/archive"
	"jawafdehi/internal/config"
	"jawafdehi/internal/jds"
	"jawafdehi/internal/nes"
	"jawafdehi/internal/server"
	"jawafdehi/internal/site"
	"jawafdehi/internal/upstream"
)

// NewLogger builds the process logger from the log section.
func NewLogger(c config.Log) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if c.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

type App struct {
	Config  config.Config
	Logger  *logrus.Logger
	Archive archive.Store
	Site    *site.Site
	Checks  []server.Checker
}

// OpenArchive returns nil when archiving is off.
func OpenArchive(ctx context.Context, c config.Archive) (archive.Store, []server.Checker, error) {
	if c.ModeVal == archive.ModeOff {
		return nil, nil, nil
	}
	switch c.Driver {
	case config.DriverRedis:
		client, err := archive.DialRedis(ctx, c.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		s := archive.NewRedis(client, c.Prefix, c.TTLDur)
		return s, []server.Checker{server.CheckFunc{Label: "archive", Fn: s.Ping}}, nil
	default:
		s, err := archive.OpenLevelDB(c.Path, c.MaxBytes)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	}
}

// New opens the archive and builds the site on top of upstream clients.
// wrap, when set, decorates the network transport below the archive.
func New(ctx context.Context, cfg config.Config, logger *logrus.Logger, wrap func(http.RoundTripper) http.RoundTripper) (*App, error) {
	store, checks, err := OpenArchive(ctx, cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	var rt http.RoundTripper = http.DefaultTransport
	if wrap != nil {
		rt = wrap(rt)
	}
	if store != nil {
		tr := archive.NewTransport(cfg.Archive.ModeVal, store, rt, logger.WithField("component", "archive"))
		tr.MaxBody = cfg.Upstream.MaxResponseBytes
		rt = tr
		logger.WithFields(logrus.Fields{
			"mode":   cfg.Archive.ModeVal,
			"driver": cfg.Archive.Driver,
		}).Info("upstream archive enabled")
	}
	httpClient := upstream.NewHTTPClient(cfg.Upstream.TimeoutDur, rt)

	svc := site.Services{
		Cases:    jds.NewClient(cfg.Upstream.JDS, httpClient, cfg.Upstream.MaxResponseBytes),
		Entities: nes.NewClient(cfg.Upstream.NES, httpClient, cfg.Upstream.MaxResponseBytes),
	}
	s, err := site.New(svc)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, fmt.Errorf("load templates: %w", err)
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Archive: store,
		Site:    s,
		Checks:  checks,
	}, nil
}

// Template returns the configured client document, or the built-in shell.
func (a *App) Template() (string, error) {
	if a.Config.Prerender.Template == "" {
		return site.Shell(), nil
	}
	b, err := os.ReadFile(a.Config.Prerender.Template)
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	return string(b), nil
}

func (a *App) Close() error {
	if a.Archive == nil {
		return nil
	}
	return a.Archive.Close()
}
