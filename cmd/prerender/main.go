package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"jawafdehi/internal/app"
	"jawafdehi/internal/config"
	"jawafdehi/internal/prerender"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath, outDir string
	flag.StringVar(&configPath, "config", getenvDefault("JAWAFDEHI_CONFIG", ""), "path to jawafdehi.yaml")
	flag.StringVar(&outDir, "out", "", "output directory (overrides prerender.outDir)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	if outDir != "" {
		cfg.Prerender.OutDir = outDir
	}
	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, nil)
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

	d := &prerender.Driver{
		Renderer:   a.Site,
		Queries:    a.Site,
		Template:   tmpl,
		OutDir:     cfg.Prerender.OutDir,
		GlobalName: cfg.Prerender.GlobalName,
		StaleTime:  cfg.StaleDur,
		SiteURL:    cfg.Prerender.SiteURL,
		Logger:     logger,
	}
	res := d.Run(ctx, cfg.Prerender.Routes)
	for _, f := range res.Failed {
		logger.WithError(f.Err).WithFields(logrus.Fields{
			"route": f.URL,
			"stage": f.Stage,
		}).Error("route failed")
	}
	return res.ExitCode()
}

func getenvDefault(name, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}
