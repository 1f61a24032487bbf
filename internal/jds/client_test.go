package jds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jawafdehi/internal/upstream"
)

const casesPage = `{
  "count": 2, "next": null, "previous": null,
  "results": [
    {"id": 1, "case_id": "case-1", "case_type": "CORRUPTION", "title": "Highway funds",
     "alleged_entities": [{"id": 10, "nes_id": "entity:person/rabi", "display_name": "Rabi"}],
     "related_entities": [], "locations": [{"id": 30, "nes_id": null, "display_name": "Kathmandu"}],
     "tags": ["roads"], "description": "", "key_allegations": [], "timeline": [], "evidence": [],
     "created_at": "2024-03-15T00:00:00Z", "updated_at": "2024-03-15T00:00:00Z"},
    {"id": 2, "case_id": "case-2", "case_type": "PROMISES", "title": "Medical equipment",
     "alleged_entities": [], "related_entities": [{"id": 20, "nes_id": "entity:organization/moh", "display_name": null}],
     "locations": [], "tags": [], "description": "", "key_allegations": [], "timeline": [], "evidence": [],
     "created_at": "2024-02-28T00:00:00Z", "updated_at": "2024-02-28T00:00:00Z"}
  ]
}`

func newTestServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Not found."}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCases_PassesSearchParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(casesPage))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, 0)
	list, err := c.Cases(context.Background(), CaseSearchParams{CaseType: CaseTypeCorruption, Search: "road", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "case_type=CORRUPTION&page=2&search=road", gotQuery)
}

func TestCasesByEntity_FiltersAllegedAndRelated(t *testing.T) {
	srv := newTestServer(t, map[string]string{"/cases/": casesPage})
	c := NewClient(srv.URL, nil, 0)

	got, err := c.CasesByEntity(context.Background(), "entity:organization/moh", CaseSearchParams{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].ID)

	got, err = c.CasesByEntity(context.Background(), "entity:person/nobody", CaseSearchParams{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEvidenceSources_SkipsFailures(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/sources/7/": `{"id": 7, "source_id": "src-7", "title": "Audit report", "description": "OAG annual report", "url": "https://oag.gov.np/report.pdf"}`,
	})
	c := NewClient(srv.URL, nil, 0)

	got, err := c.EvidenceSources(context.Background(), []EvidenceEntry{
		{SourceID: 7, Description: "page 12"},
		{SourceID: 7, Description: "page 40"},
		{SourceID: 8, Description: "missing"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Audit report", got[7].Title)
	require.NotNil(t, got[7].URL)
	assert.Equal(t, "https://oag.gov.np/report.pdf", *got[7].URL)

	_, err = c.EvidenceSources(context.Background(), []EvidenceEntry{{SourceID: 8}})
	require.Error(t, err)
	assert.True(t, upstream.IsNotFound(err))

	got, err = c.EvidenceSources(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCase_NotFound(t *testing.T) {
	srv := newTestServer(t, map[string]string{})
	c := NewClient(srv.URL, nil, 0)

	_, err := c.Case(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, upstream.IsNotFound(err))
	assert.Contains(t, err.Error(), "/cases/5/")
}

func TestStatistics(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/statistics/": `{"published_cases":12,"entities_tracked":40,"cases_under_investigation":3,"cases_closed":2}`,
	})
	c := NewClient(srv.URL, nil, 0)

	s, err := c.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Statistics{PublishedCases: 12, EntitiesTracked: 40, CasesUnderInvestigation: 3, CasesClosed: 2}, s)
}

func TestJawafEntity_LabelFallbacks(t *testing.T) {
	nes := "entity:person/x"
	empty := ""
	assert.Equal(t, "entity:person/x", JawafEntity{NESID: &nes, DisplayName: &empty}.Label())
	assert.Equal(t, "Unknown", JawafEntity{}.Label())
}
