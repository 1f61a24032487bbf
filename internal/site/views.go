package site

import (
	"fmt"

	"jawafdehi/internal/jds"
	"jawafdehi/internal/nes"
	"jawafdehi/internal/query"
)

type sectionState string

const (
	stateLoading sectionState = "loading"
	stateError   sectionState = "error"
	stateReady   sectionState = "ready"
)

// Section is one cache-backed block of a page.
type Section[T any] struct {
	State sectionState
	Data  T
	Error string
}

func (s Section[T]) Loading() bool { return s.State == stateLoading }
func (s Section[T]) Failed() bool  { return s.State == stateError }
func (s Section[T]) Ready() bool   { return s.State == stateReady }

// viewer reads page data out of the cache. It never fetches.
type viewer struct {
	cache  *query.Cache
	params Params
}

func (v *viewer) key(name string) query.Key {
	return queryDefs[name].key(v.params)
}

func load[T any](v *viewer, name string) Section[T] {
	e, ok := v.cache.Read(v.key(name))
	if !ok || e.Status == query.StatusPending {
		return Section[T]{State: stateLoading}
	}
	data, err := query.Decode[T](e)
	if err != nil {
		return Section[T]{State: stateError, Error: err.Error()}
	}
	return Section[T]{State: stateReady, Data: data}
}

type homePage struct {
	Stats  Section[jds.Statistics]
	Latest Section[jds.PaginatedCaseList]
}

func homeView(v *viewer) any {
	return homePage{
		Stats:  load[jds.Statistics](v, qStatistics),
		Latest: load[jds.PaginatedCaseList](v, qCases),
	}
}

type casesPage struct {
	Cases    Section[jds.PaginatedCaseList]
	Search   jds.CaseSearchParams
	PrevPage int
	NextPage int
}

func casesView(v *viewer) any {
	p := casesPage{
		Cases:  load[jds.PaginatedCaseList](v, qCases),
		Search: caseParams(v.params),
	}
	if p.Cases.Ready() {
		if p.Cases.Data.Previous != nil && p.Search.Page > 1 {
			p.PrevPage = p.Search.Page - 1
		}
		if p.Cases.Data.Next != nil {
			p.NextPage = p.Search.Page + 1
		}
	}
	return p
}

type casePage struct {
	ID       string
	Case     Section[jds.CaseDetail]
	Evidence []evidenceItem
}

// evidenceItem is an evidence entry joined with the source it cites.
type evidenceItem struct {
	Title             string
	SourceDescription string
	Description       string
	URL               string
}

func caseView(v *viewer) any {
	p := casePage{ID: v.params.Get("id"), Case: load[jds.CaseDetail](v, qCase)}
	if !p.Case.Ready() {
		return p
	}
	sources := load[map[int]jds.DocumentSource](v, qCaseSources)
	for _, ev := range p.Case.Data.Evidence {
		item := evidenceItem{
			Title:       fmt.Sprintf("Source %d", ev.SourceID),
			Description: ev.Description,
		}
		if src, ok := sources.Data[ev.SourceID]; ok {
			if src.Title != "" {
				item.Title = src.Title
			}
			item.SourceDescription = src.Description
			if src.URL != nil {
				item.URL = *src.URL
			}
		}
		p.Evidence = append(p.Evidence, item)
	}
	return p
}

type entitiesPage struct {
	Query    string
	Type     string
	Entities Section[nes.EntityList]
}

func entitiesView(v *viewer) any {
	name := qEntities
	if v.params.Get("q") != "" {
		name = qEntitySearch
	}
	return entitiesPage{
		Query:    v.params.Get("q"),
		Type:     v.params.Get("type"),
		Entities: load[nes.EntityList](v, name),
	}
}

type entityPage struct {
	ID            string
	Name          string
	Entity        Section[nes.Entity]
	Sources       map[nes.SourceType][]nes.EvidenceSource
	SourceTypes   []nes.SourceType
	Relationships Section[nes.RelationshipList]
	Versions      Section[nes.EntityVersions]
	Cases         Section[[]jds.Case]
}

func entityView(v *viewer) any {
	p := entityPage{
		ID:            v.params.Get("id"),
		Entity:        load[nes.Entity](v, qEntity),
		Relationships: load[nes.RelationshipList](v, qRelationships),
		Versions:      load[nes.EntityVersions](v, qEntityVersions),
		Cases:         load[[]jds.Case](v, qEntityCases),
	}
	if p.Entity.Ready() {
		p.Name = nes.UnifiedName(p.Entity.Data, nes.LangEN)
		p.Sources = nes.GroupSourcesByType(nes.SortSourcesByDate(nes.MergeEvidenceAndSources(p.Entity.Data)))
		for _, t := range nes.SourceTypes {
			if len(p.Sources[t]) > 0 {
				p.SourceTypes = append(p.SourceTypes, t)
			}
		}
	}
	return p
}
