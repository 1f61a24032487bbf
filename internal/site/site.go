// Package site renders the public pages from an already-warmed query cache.
package site

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"

	"jawafdehi/internal/jds"
	"jawafdehi/internal/nes"
	"jawafdehi/internal/query"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed templates/shell.html
var shell string

// Shell is the built-in client document used when no template file is
// configured. It carries the app placeholder and a closing head tag.
func Shell() string { return shell }

// RenderError reports a failed render. No partial output accompanies it.
type RenderError struct {
	URL   string
	Err   error
	Stack []byte
}

func (e *RenderError) Error() string { return fmt.Sprintf("render %s: %v", e.URL, e.Err) }
func (e *RenderError) Unwrap() error { return e.Err }

type Site struct {
	services Services
	pages    map[string]*template.Template
}

type pageData struct {
	Title string
	Page  string
	Path  string
	View  any
}

var funcs = template.FuncMap{
	"formatDate":     func(v any) string { return FormatDate(textOf(v)) },
	"formatDateTime": func(v any) string { return FormatDateTime(textOf(v)) },
	"dateRange":      func(start, end any) string { return FormatDateRange(textOf(start), textOf(end)) },
	"deref":          deref,
	"truncate":       truncate,
	"entityName":     func(e nes.Entity) string { return nes.UnifiedName(e, nes.LangEN) },
	"entityLink":     func(id string) string { return "/entity/" + url.PathEscape(id) },
	"caseLink":       func(id int) string { return "/case/" + strconv.Itoa(id) },
	"casesLink":      casesLink,
	"caseTypeLabel":  caseTypeLabel,
	"text":           func(p *nes.LangTextPair) string { return p.Text() },
}

func casesLink(p jds.CaseSearchParams, page int) string {
	p.Page = page
	v := p.Values()
	if page <= 1 {
		v.Del("page")
	}
	if len(v) == 0 {
		return "/cases"
	}
	return "/cases?" + v.Encode()
}

func caseTypeLabel(t jds.CaseType) string {
	switch t {
	case jds.CaseTypeCorruption:
		return "Corruption"
	case jds.CaseTypePromises:
		return "Broken Promises"
	default:
		return string(t)
	}
}

// New parses the embedded templates once.
func New(svc Services) (*Site, error) {
	base, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/partials.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	s := &Site{services: svc, pages: map[string]*template.Template{}}
	for _, pg := range append([]*page{notFound}, pages...) {
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, "templates/"+pg.template); err != nil {
			return nil, fmt.Errorf("parse %s: %w", pg.template, err)
		}
		s.pages[pg.name] = t
	}
	return s, nil
}

// Render produces the app markup for rawURL using only entries already in c.
// Sections whose data is absent render as loading.
func (s *Site) Render(rawURL string, c *query.Cache) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = ""
			err = &RenderError{URL: rawURL, Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
	}()

	pg, params, err := resolve(rawURL)
	if err != nil {
		return "", &RenderError{URL: rawURL, Err: err}
	}
	if c == nil {
		c = query.New()
	}

	data := pageData{Title: pg.title, Page: pg.name, Path: cleanPath(pathOf(rawURL))}
	if pg.view != nil {
		data.View = pg.view(&viewer{cache: c, params: params})
	}

	var buf bytes.Buffer
	if err := s.pages[pg.name].ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", &RenderError{URL: rawURL, Err: err}
	}
	return buf.String(), nil
}

// Status is the HTTP status the page at rawURL is served with.
func (s *Site) Status(rawURL string) int {
	pg, _, err := resolve(rawURL)
	if err != nil {
		return http.StatusBadRequest
	}
	if pg.status != 0 {
		return pg.status
	}
	return http.StatusOK
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "/"
	}
	return u.Path
}
