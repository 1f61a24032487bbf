package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jawafdehi/internal/app"
	"jawafdehi/internal/config"
	"jawafdehi/internal/metrics"
	"jawafdehi/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	flag.StringVar(&configPath, "config", getenvDefault("JAWAFDEHI_CONFIG", ""), "path to jawafdehi.yaml")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	a, err := app.New(ctx, cfg, logger, m.InstrumentTransport)
	if err != nil {
		logger.WithError(err).Error("init failed")
		return 1
	}
	defer a.Close()

	tmpl, err := a.Template()
	if err != nil {
		logger.WithError(err).Error("init failed")
		return 1
	}

	srv := server.New(a.Site, server.Options{
		Port:          cfg.Serve.Port,
		Template:      tmpl,
		GlobalName:    cfg.Prerender.GlobalName,
		StaleTime:     cfg.StaleDur,
		StaticDir:     cfg.Prerender.OutDir,
		PageTTL:       cfg.Serve.PageTTLDur,
		PageCacheSize: cfg.Serve.PageCacheSize,
		Bypass: func(path string) bool {
			r := cfg.Serve.PickRule(path)
			return r != nil && r.Bypass
		},
		Checks: a.Checks,
	}, m, logger)

	serveErr := make(chan error, 1)
	go func() {
		err := srv.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	code := 0
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			logger.WithError(err).Error("server error")
			code = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown")
	}
	return code
}

func getenvDefault(name, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}
