package site

import (
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Params merges path parameters and the first value of each query string
// parameter. Path parameters win.
type Params map[string]string

func (p Params) Get(name string) string { return p[name] }

func (p Params) Int(name string, def int) int {
	v, err := strconv.Atoi(p[name])
	if err != nil {
		return def
	}
	return v
}

type page struct {
	name     string
	pattern  string
	template string
	title    string
	status   int
	queries  func(p Params) []string
	view     func(v *viewer) any
}

func noQueries(Params) []string { return nil }

var pages = []*page{
	{name: "home", pattern: "/", template: "home.html", title: "Public Accountability Platform Nepal",
		queries: func(Params) []string { return []string{qStatistics, qCases} }, view: homeView},
	{name: "cases", pattern: "/cases", template: "cases.html", title: "Cases",
		queries: func(Params) []string { return []string{qCases} }, view: casesView},
	{name: "case", pattern: "/case/:id", template: "case.html", title: "Case",
		queries: func(Params) []string { return []string{qCase, qCaseSources} }, view: caseView},
	{name: "entities", pattern: "/entities", template: "entities.html", title: "Entities",
		queries: entitiesQueries, view: entitiesView},
	{name: "entity", pattern: "/entity/:id", template: "entity.html", title: "Entity",
		queries: func(Params) []string {
			return []string{qEntity, qRelationships, qEntityVersions, qEntityCases}
		}, view: entityView},
	{name: "report", pattern: "/report", template: "report.html", title: "Report an Allegation", queries: noQueries},
	{name: "feedback", pattern: "/feedback", template: "feedback.html", title: "Feedback", queries: noQueries},
	{name: "information", pattern: "/information", template: "information.html", title: "Information", queries: noQueries},
	{name: "about", pattern: "/about", template: "about.html", title: "About", queries: noQueries},
}

var notFound = &page{name: "not-found", template: "notfound.html", title: "Page not found",
	status: http.StatusNotFound, queries: noQueries}

// resolve finds the page for a URL. Unknown paths resolve to the not-found
// page rather than an error.
func resolve(rawURL string) (*page, Params, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, err
	}
	p := cleanPath(u.EscapedPath())

	for _, pg := range pages {
		pathParams, ok := match(pg.pattern, p)
		if !ok {
			continue
		}
		params := Params{}
		for k, vs := range u.Query() {
			if len(vs) > 0 {
				params[k] = vs[0]
			}
		}
		for k, v := range pathParams {
			params[k] = v
		}
		return pg, params, nil
	}
	return notFound, Params{}, nil
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	p = path.Clean("/" + p)
	return p
}

// match compares a pattern such as "/case/:id" with a cleaned path.
func match(pattern, p string) (Params, bool) {
	if pattern == "/" || p == "/" {
		return Params{}, pattern == p
	}
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	segs := strings.Split(strings.Trim(p, "/"), "/")
	if len(ps) != len(segs) {
		return nil, false
	}
	out := Params{}
	for i, s := range ps {
		if name, ok := strings.CutPrefix(s, ":"); ok {
			v, err := url.PathUnescape(segs[i])
			if err != nil || v == "" {
				return nil, false
			}
			out[name] = v
			continue
		}
		if s != segs[i] {
			return nil, false
		}
	}
	return out, true
}
