// Package server serves the site over HTTP. Prerendered files are served as
// they are; every other page is rendered on demand and cached for a while.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/viccon/sturdyc"
	"golang.org/x/sync/errgroup"

	"jawafdehi/internal/metrics"
	"jawafdehi/internal/prerender"
	"jawafdehi/internal/query"
	"jawafdehi/internal/site"
)

// Pages is what the server needs from the site.
type Pages interface {
	Render(url string, c *query.Cache) (string, error)
	PageQueries(url string) ([]site.Warm, error)
	Status(url string) int
}

// Checker is a dependency reported by /healthz.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

type CheckFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.Label }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

type Options struct {
	Port       int
	Template   string
	GlobalName string
	StaleTime  time.Duration
	// StaticDir holds prerendered pages and client assets. Empty disables
	// static serving.
	StaticDir string
	// PageTTL of rendered pages. Zero disables the page cache.
	PageTTL       time.Duration
	PageCacheSize int
	RenderTimeout time.Duration
	// Bypass reports paths that are always rendered fresh.
	Bypass func(path string) bool
	Checks []Checker
}

const (
	RenderHeader = "X-Render"

	renderHit    = "hit"
	renderMiss   = "miss"
	renderBypass = "bypass"
	renderStatic = "static"

	defaultRenderTimeout = 30 * time.Second
	cacheShards          = 10
	cacheEvictPercent    = 10
)

type renderedPage struct {
	Status int
	Body   string
}

type Server struct {
	echo    *echo.Echo
	opts    Options
	pages   Pages
	cache   *sturdyc.Client[renderedPage]
	metrics *metrics.Metrics
	logger  *logrus.Logger
	errLog  *rateLimitedLogger
}

func New(pages Pages, opts Options, m *metrics.Metrics, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if m == nil {
		m = metrics.New()
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = defaultRenderTimeout
	}
	if opts.GlobalName == "" {
		opts.GlobalName = prerender.DefaultGlobalName
	}
	if opts.StaleTime == 0 {
		opts.StaleTime = query.DefaultStaleTime
	}
	if opts.Template == "" {
		opts.Template = site.Shell()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		opts:    opts,
		pages:   pages,
		metrics: m,
		logger:  logger,
		errLog:  newRateLimitedLogger(logger, 5*time.Second),
	}
	if opts.PageTTL > 0 {
		size := opts.PageCacheSize
		if size <= 0 {
			size = 1000
		}
		s.cache = sturdyc.New[renderedPage](size, cacheShards, opts.PageTTL, cacheEvictPercent)
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(s.metrics.CollectHTTPMetrics())
	s.echo.Use(s.requestLogging())
}

func (s *Server) requestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			s.logger.WithFields(logrus.Fields{
				"method":     c.Request().Method,
				"path":       c.Request().URL.Path,
				"status":     c.Response().Status,
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
				"render":     c.Response().Header().Get(RenderHeader),
				"duration":   time.Since(start).String(),
			}).Debug("request")
			return nil
		}
	}
}

func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", s.healthCheck)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	s.echo.GET("/*", s.handlePage)
	s.echo.HEAD("/*", s.handlePage)
}

func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string)
	overall := "healthy"
	for _, hc := range s.opts.Checks {
		if err := hc.Check(ctx); err != nil {
			deps[hc.Name()] = "unhealthy"
			overall = "degraded"
			continue
		}
		deps[hc.Name()] = "healthy"
	}
	code := http.StatusOK
	if overall != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{
		"status":       overall,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"dependencies": deps,
	})
}

func (s *Server) handlePage(c echo.Context) error {
	req := c.Request()
	resp := c.Response()

	if f, ok := s.staticFile(req.URL.Path, req.URL.RawQuery); ok {
		resp.Header().Set(RenderHeader, renderStatic)
		return c.File(f)
	}

	url := req.URL.RequestURI()
	var (
		pg      renderedPage
		err     error
		outcome string
	)
	switch {
	case s.cache == nil || (s.opts.Bypass != nil && s.opts.Bypass(req.URL.Path)):
		outcome = renderBypass
		pg, err = s.render(req.Context(), url)
	default:
		var fetched atomic.Bool
		pg, err = s.cache.GetOrFetch(req.Context(), url, func(ctx context.Context) (renderedPage, error) {
			fetched.Store(true)
			// Shared with concurrent callers, so one client going away must
			// not cancel it.
			return s.render(context.WithoutCancel(ctx), url)
		})
		outcome = renderHit
		if fetched.Load() {
			outcome = renderMiss
		}
	}
	s.metrics.PageCache.WithLabelValues(outcome).Inc()

	if err != nil {
		fields := logrus.Fields{"url": url, "error": err.Error()}
		var re *site.RenderError
		if errors.As(err, &re) && len(re.Stack) > 0 {
			fields["stack"] = string(re.Stack)
		}
		s.errLog.Error(fields, "render failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "render failed")
	}

	resp.Header().Set(RenderHeader, outcome)
	return c.HTML(pg.Status, pg.Body)
}

// staticFile finds a file under StaticDir for the request. Pages only match
// without a query string, since the prerendered copy ignores it.
func (s *Server) staticFile(urlPath, rawQuery string) (string, bool) {
	if s.opts.StaticDir == "" {
		return "", false
	}
	clean := path.Clean("/" + urlPath)
	var f string
	if path.Ext(clean) != "" {
		f = filepath.Join(s.opts.StaticDir, filepath.FromSlash(clean))
	} else {
		if rawQuery != "" {
			return "", false
		}
		var err error
		if f, err = prerender.OutputPath(s.opts.StaticDir, clean); err != nil {
			return "", false
		}
	}
	st, err := os.Stat(f)
	if err != nil || !st.Mode().IsRegular() {
		return "", false
	}
	return f, true
}

// render warms the page's queries, renders it and embeds the snapshot. Query
// failures render as error sections; only a render or encode failure fails.
func (s *Server) render(ctx context.Context, url string) (renderedPage, error) {
	start := time.Now()
	pg, err := s.renderPage(ctx, url)
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.ObserveRender(result, time.Since(start))
	return pg, err
}

func (s *Server) renderPage(ctx context.Context, url string) (renderedPage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RenderTimeout)
	defer cancel()

	c := query.New(query.WithStaleTime(s.opts.StaleTime))
	warms, err := s.pages.PageQueries(url)
	if err != nil {
		return renderedPage{}, err
	}

	var g errgroup.Group
	for _, w := range warms {
		g.Go(func() error {
			e := c.Warm(ctx, w.Key, w.Fetch)
			if e.Status == query.StatusError {
				s.logger.WithError(e.Err).WithFields(logrus.Fields{
					"url":   url,
					"query": w.Key.String(),
				}).Warn("query failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	html, err := s.pages.Render(url, c)
	if err != nil {
		return renderedPage{}, err
	}
	snap, err := c.Snapshot()
	if err != nil {
		return renderedPage{}, err
	}
	payload, err := query.MarshalScript(snap)
	if err != nil {
		return renderedPage{}, err
	}
	body, err := prerender.Compose(s.opts.Template, html, payload, s.opts.GlobalName)
	if err != nil {
		return renderedPage{}, fmt.Errorf("compose %s: %w", url, err)
	}
	return renderedPage{Status: s.pages.Status(url), Body: body}, nil
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.opts.Port)
	srv := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.opts.RenderTimeout + 10*time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.logger.WithField("addr", addr).Info("listening")
	return s.echo.StartServer(srv)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}
