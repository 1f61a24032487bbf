package site

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"jawafdehi/internal/jds"
	"jawafdehi/internal/nes"
	"jawafdehi/internal/query"
)

// CaseService is the part of the case-tracking client the site reads.
type CaseService interface {
	Cases(ctx context.Context, p jds.CaseSearchParams) (jds.PaginatedCaseList, error)
	Case(ctx context.Context, id int) (jds.CaseDetail, error)
	CasesByEntity(ctx context.Context, nesID string, p jds.CaseSearchParams) ([]jds.Case, error)
	EvidenceSources(ctx context.Context, evidence []jds.EvidenceEntry) (map[int]jds.DocumentSource, error)
	Statistics(ctx context.Context) (jds.Statistics, error)
}

// EntityService is the part of the entity-profile client the site reads.
type EntityService interface {
	Entities(ctx context.Context, p nes.EntityParams) (nes.EntityList, error)
	SearchEntities(ctx context.Context, q string, p nes.EntityParams) (nes.EntityList, error)
	EntityByID(ctx context.Context, id string) (nes.Entity, error)
	EntityVersions(ctx context.Context, entityType, slug string) (nes.EntityVersions, error)
	Relationships(ctx context.Context, p nes.RelationshipParams) (nes.RelationshipList, error)
}

type Services struct {
	Cases    CaseService
	Entities EntityService
}

// Query names usable in prefetch lists.
const (
	qStatistics     = "statistics"
	qCases          = "cases"
	qCase           = "case"
	qCaseSources    = "case-sources"
	qEntities       = "entities"
	qEntitySearch   = "entity-search"
	qEntity         = "entity"
	qEntityVersions = "entity-versions"
	qRelationships  = "relationships"
	qEntityCases    = "entity-cases"

	// PrefetchPage expands to every query the resolved page reads.
	PrefetchPage = "page"
)

var (
	errNoCaseService   = errors.New("case service not configured")
	errNoEntityService = errors.New("entity service not configured")
)

// Warm is one query ready to be warmed into a cache.
type Warm struct {
	Name  string
	Key   query.Key
	Fetch query.Fetcher
}

type queryDef struct {
	key   func(p Params) query.Key
	fetch func(s Services, p Params) query.Fetcher
}

func caseParams(p Params) jds.CaseSearchParams {
	return jds.CaseSearchParams{
		CaseType: jds.CaseType(p.Get("case_type")),
		Tags:     p.Get("tags"),
		Search:   p.Get("search"),
		Page:     p.Int("page", 1),
	}
}

func entityParams(p Params) nes.EntityParams {
	return nes.EntityParams{EntityType: p.Get("type"), Limit: p.Int("limit", 50)}
}

func casesFetcher[T any](s Services, fn func(ctx context.Context, svc CaseService) (T, error)) query.Fetcher {
	return func(ctx context.Context) (any, error) {
		if s.Cases == nil {
			return nil, errNoCaseService
		}
		return fn(ctx, s.Cases)
	}
}

func entitiesFetcher[T any](s Services, fn func(ctx context.Context, svc EntityService) (T, error)) query.Fetcher {
	return func(ctx context.Context) (any, error) {
		if s.Entities == nil {
			return nil, errNoEntityService
		}
		return fn(ctx, s.Entities)
	}
}

var queryDefs = map[string]queryDef{
	qStatistics: {
		key: func(Params) query.Key { return query.MustKey(qStatistics) },
		fetch: func(s Services, _ Params) query.Fetcher {
			return casesFetcher(s, func(ctx context.Context, svc CaseService) (jds.Statistics, error) {
				return svc.Statistics(ctx)
			})
		},
	},
	qCases: {
		key: func(p Params) query.Key {
			cp := caseParams(p)
			return query.MustKey(qCases, string(cp.CaseType), cp.Tags, cp.Search, cp.Page)
		},
		fetch: func(s Services, p Params) query.Fetcher {
			return casesFetcher(s, func(ctx context.Context, svc CaseService) (jds.PaginatedCaseList, error) {
				return svc.Cases(ctx, caseParams(p))
			})
		},
	},
	qCase: {
		key: func(p Params) query.Key { return query.MustKey(qCase, p.Get("id")) },
		fetch: func(s Services, p Params) query.Fetcher {
			return casesFetcher(s, func(ctx context.Context, svc CaseService) (jds.CaseDetail, error) {
				id, err := strconv.Atoi(p.Get("id"))
				if err != nil {
					return jds.CaseDetail{}, fmt.Errorf("invalid case id %q", p.Get("id"))
				}
				return svc.Case(ctx, id)
			})
		},
	},
	qCaseSources: {
		key: func(p Params) query.Key { return query.MustKey(qCaseSources, p.Get("id")) },
		fetch: func(s Services, p Params) query.Fetcher {
			return casesFetcher(s, func(ctx context.Context, svc CaseService) (map[int]jds.DocumentSource, error) {
				id, err := strconv.Atoi(p.Get("id"))
				if err != nil {
					return nil, fmt.Errorf("invalid case id %q", p.Get("id"))
				}
				detail, err := svc.Case(ctx, id)
				if err != nil {
					return nil, err
				}
				return svc.EvidenceSources(ctx, detail.Evidence)
			})
		},
	},
	qEntities: {
		key: func(p Params) query.Key {
			ep := entityParams(p)
			return query.MustKey(qEntities, ep.EntityType, ep.Limit)
		},
		fetch: func(s Services, p Params) query.Fetcher {
			return entitiesFetcher(s, func(ctx context.Context, svc EntityService) (nes.EntityList, error) {
				return svc.Entities(ctx, entityParams(p))
			})
		},
	},
	qEntitySearch: {
		key: func(p Params) query.Key {
			ep := entityParams(p)
			return query.MustKey(qEntitySearch, p.Get("q"), ep.EntityType, ep.Limit)
		},
		fetch: func(s Services, p Params) query.Fetcher {
			return entitiesFetcher(s, func(ctx context.Context, svc EntityService) (nes.EntityList, error) {
				return svc.SearchEntities(ctx, p.Get("q"), entityParams(p))
			})
		},
	},
	qEntity: {
		key: func(p Params) query.Key { return query.MustKey(qEntity, p.Get("id")) },
		fetch: func(s Services, p Params) query.Fetcher {
			return entitiesFetcher(s, func(ctx context.Context, svc EntityService) (nes.Entity, error) {
				return svc.EntityByID(ctx, p.Get("id"))
			})
		},
	},
	qEntityVersions: {
		key: func(p Params) query.Key { return query.MustKey(qEntityVersions, p.Get("id")) },
		fetch: func(s Services, p Params) query.Fetcher {
			return entitiesFetcher(s, func(ctx context.Context, svc EntityService) (nes.EntityVersions, error) {
				typ, slug, ok := nes.SplitID(p.Get("id"))
				if !ok {
					return nes.EntityVersions{}, fmt.Errorf("entity id %q has no type/slug form", p.Get("id"))
				}
				return svc.EntityVersions(ctx, typ, slug)
			})
		},
	},
	qRelationships: {
		key: func(p Params) query.Key { return query.MustKey(qRelationships, p.Get("id")) },
		fetch: func(s Services, p Params) query.Fetcher {
			return entitiesFetcher(s, func(ctx context.Context, svc EntityService) (nes.RelationshipList, error) {
				return svc.Relationships(ctx, nes.RelationshipParams{SourceID: p.Get("id")})
			})
		},
	},
	qEntityCases: {
		key: func(p Params) query.Key { return query.MustKey(qEntityCases, p.Get("id")) },
		fetch: func(s Services, p Params) query.Fetcher {
			return casesFetcher(s, func(ctx context.Context, svc CaseService) ([]jds.Case, error) {
				return svc.CasesByEntity(ctx, p.Get("id"), jds.CaseSearchParams{})
			})
		},
	},
}

func entitiesQueries(p Params) []string {
	if p.Get("q") != "" {
		return []string{qEntitySearch}
	}
	return []string{qEntities}
}

// Prefetch resolves query names for the page at rawURL. Parameters come from
// the URL, so "case" on /case/42 warms case 42.
func (s *Site) Prefetch(rawURL string, names []string) ([]Warm, error) {
	pg, params, err := resolve(rawURL)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []Warm
	var add func(name string) error
	add = func(name string) error {
		if name == PrefetchPage {
			for _, n := range pg.queries(params) {
				if err := add(n); err != nil {
					return err
				}
			}
			return nil
		}
		def, ok := queryDefs[name]
		if !ok {
			return fmt.Errorf("unknown query %q", name)
		}
		key := def.key(params)
		if seen[key.Hash()] {
			return nil
		}
		seen[key.Hash()] = true
		out = append(out, Warm{Name: name, Key: key, Fetch: def.fetch(s.services, params)})
		return nil
	}
	for _, n := range names {
		if err := add(n); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PageQueries returns every query the page at rawURL reads.
func (s *Site) PageQueries(rawURL string) ([]Warm, error) {
	return s.Prefetch(rawURL, []string{PrefetchPage})
}
