// Package prerender renders a fixed list of routes to static HTML files, each
// carrying the query cache snapshot it was rendered from.
package prerender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"jawafdehi/internal/query"
	"jawafdehi/internal/site"
)

// Route is one page to prerender. Prefetch names queries to warm before
// rendering; "page" stands for every query the page reads.
type Route struct {
	URL      string   `yaml:"url"`
	Prefetch []string `yaml:"prefetch"`
}

type Renderer interface {
	Render(url string, c *query.Cache) (string, error)
}

// Resolver turns prefetch names into warmable queries for a URL.
type Resolver interface {
	Prefetch(url string, names []string) ([]site.Warm, error)
}

// Stage names where a route failed.
const (
	StageWarm      = "warm"
	StageRender    = "render"
	StageSerialize = "serialize"
	StageWrite     = "write"
	StageSitemap   = "sitemap"
	StageCancelled = "cancelled"
)

type RouteFailure struct {
	URL   string
	Stage string
	Err   error
}

type Result struct {
	RunID    string
	Written  []string
	Failed   []RouteFailure
	Stats    Stats
	Duration time.Duration
}

// ExitCode is 1 when any route failed, otherwise 0.
func (r Result) ExitCode() int {
	if len(r.Failed) > 0 {
		return 1
	}
	return 0
}

type Driver struct {
	Renderer   Renderer
	Queries    Resolver
	Template   string
	OutDir     string
	GlobalName string
	// StaleTime of each route's cache; zero means query.DefaultStaleTime.
	StaleTime time.Duration
	// SiteURL enables sitemap.xml when set.
	SiteURL string
	Logger  logrus.FieldLogger
}

func (d *Driver) logger() logrus.FieldLogger {
	if d.Logger != nil {
		return d.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Run processes routes one at a time. A failing route is logged and
// recorded; the remaining routes still run.
func (d *Driver) Run(ctx context.Context, routes []Route) Result {
	start := time.Now()
	res := Result{RunID: uuid.NewString()}
	log := d.logger().WithField("run_id", res.RunID)
	stats := newPageStats()

	log.WithField("routes", len(routes)).Info("prerender started")
	for _, rt := range routes {
		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, RouteFailure{URL: rt.URL, Stage: StageCancelled, Err: err})
			continue
		}
		size, fail := d.route(ctx, log.WithField("route", rt.URL), rt)
		if fail != nil {
			res.Failed = append(res.Failed, *fail)
			continue
		}
		stats.Observe(size)
		res.Written = append(res.Written, rt.URL)
	}

	if d.SiteURL != "" && len(res.Written) > 0 {
		p, err := writeSitemap(d.OutDir, d.SiteURL, res.Written, time.Now())
		if err != nil {
			log.WithError(err).Error("sitemap write failed")
			res.Failed = append(res.Failed, RouteFailure{URL: "/sitemap.xml", Stage: StageSitemap, Err: err})
		} else {
			log.WithField("path", p).Info("sitemap written")
		}
	}

	res.Stats = stats.Snapshot()
	res.Duration = time.Since(start)
	log.WithFields(res.Stats.Fields()).WithFields(logrus.Fields{
		"failed":   len(res.Failed),
		"duration": res.Duration.Round(time.Millisecond).String(),
	}).Info("prerender finished")
	return res
}

func (d *Driver) route(ctx context.Context, log *logrus.Entry, rt Route) (int, *RouteFailure) {
	fail := func(stage string, err error) (int, *RouteFailure) {
		return 0, &RouteFailure{URL: rt.URL, Stage: stage, Err: err}
	}

	staleTime := d.StaleTime
	if staleTime == 0 {
		staleTime = query.DefaultStaleTime
	}
	c := query.New(query.WithStaleTime(staleTime))

	if len(rt.Prefetch) > 0 {
		if err := d.warm(ctx, log, c, rt); err != nil {
			log.WithError(err).Error("prefetch setup failed")
			return fail(StageWarm, err)
		}
	}

	html, err := d.render(rt.URL, c)
	if err != nil {
		entry := log.WithError(err)
		var re *site.RenderError
		if errors.As(err, &re) && len(re.Stack) > 0 {
			entry = entry.WithField("stack", string(re.Stack))
		}
		entry.Error("render failed")
		return fail(StageRender, err)
	}

	snap, err := c.Snapshot()
	if err != nil {
		log.WithError(err).Error("snapshot failed")
		return fail(StageSerialize, err)
	}
	payload, err := query.MarshalScript(snap)
	if err != nil {
		log.WithError(err).Error("snapshot encode failed")
		return fail(StageSerialize, err)
	}

	page, err := Compose(d.Template, html, payload, d.GlobalName)
	if err != nil {
		log.WithError(err).Error("compose failed")
		return fail(StageWrite, err)
	}
	out, err := OutputPath(d.OutDir, rt.URL)
	if err != nil {
		log.WithError(err).Error("bad output path")
		return fail(StageWrite, err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		log.WithError(err).Error("mkdir failed")
		return fail(StageWrite, err)
	}
	if err := os.WriteFile(out, []byte(page), 0o644); err != nil {
		log.WithError(err).Error("write failed")
		return fail(StageWrite, err)
	}

	log.WithFields(logrus.Fields{
		"path":    out,
		"bytes":   len(page),
		"queries": len(snap.Queries),
		"hash":    fmt.Sprintf("%016x", xxhash.Sum64String(page)),
	}).Info("page written")
	return len(page), nil
}

// warm fetches the route's queries concurrently and waits for all of them.
// Fetch failures stay in the cache as error entries.
func (d *Driver) warm(ctx context.Context, log *logrus.Entry, c *query.Cache, rt Route) error {
	if d.Queries == nil {
		return errors.New("no query resolver configured")
	}
	warms, err := d.Queries.Prefetch(rt.URL, rt.Prefetch)
	if err != nil {
		return err
	}

	var g errgroup.Group
	for _, w := range warms {
		g.Go(func() error {
			e := c.Warm(ctx, w.Key, w.Fetch)
			if e.Status == query.StatusError {
				log.WithError(e.Err).WithField("query", w.Key.String()).Warn("prefetch failed")
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Driver) render(url string, c *query.Cache) (html string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &site.RenderError{URL: url, Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
	}()
	if d.Renderer == nil {
		return "", errors.New("no renderer configured")
	}
	return d.Renderer.Render(url, c)
}
