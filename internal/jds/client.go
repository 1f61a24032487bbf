// Package jds is a read-only client for the case-tracking service: published
// cases, their document sources and platform statistics.
package jds

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"jawafdehi/internal/upstream"
)

const (
	ServiceName    = "jds"
	DefaultBaseURL = "https://portal.jawafdehi.org/api"

	sourceFetchLimit = 4
)

type Client struct {
	api *upstream.Client
}

func NewClient(baseURL string, httpClient *http.Client, maxResponse int64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{api: upstream.NewClient(ServiceName, baseURL, httpClient, maxResponse)}
}

// Cases lists published cases, newest first.
func (c *Client) Cases(ctx context.Context, p CaseSearchParams) (PaginatedCaseList, error) {
	var out PaginatedCaseList
	err := c.api.GetJSON(ctx, "/cases/", p.Values(), &out)
	return out, err
}

// Case returns one published case with its audit history.
func (c *Client) Case(ctx context.Context, id int) (CaseDetail, error) {
	var out CaseDetail
	err := c.api.GetJSON(ctx, fmt.Sprintf("/cases/%d/", id), nil, &out)
	return out, err
}

// CasesByEntity returns the cases of one result page that name the entity as
// alleged or related.
func (c *Client) CasesByEntity(ctx context.Context, nesID string, p CaseSearchParams) ([]Case, error) {
	list, err := c.Cases(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]Case, 0, len(list.Results))
	for _, cs := range list.Results {
		if cs.Mentions(nesID) {
			out = append(out, cs)
		}
	}
	return out, nil
}

func (c *Client) Source(ctx context.Context, id int) (DocumentSource, error) {
	var out DocumentSource
	err := c.api.GetJSON(ctx, fmt.Sprintf("/sources/%d/", id), nil, &out)
	return out, err
}

// EvidenceSources resolves the document sources cited by evidence entries,
// keyed by source id. Sources that fail to load are left out; an error is
// returned only when none of them could be loaded.
func (c *Client) EvidenceSources(ctx context.Context, evidence []EvidenceEntry) (map[int]DocumentSource, error) {
	out := make(map[int]DocumentSource)
	var (
		mu       sync.Mutex
		firstErr error
		g        errgroup.Group
	)
	g.SetLimit(sourceFetchLimit)
	seen := make(map[int]bool)
	for _, ev := range evidence {
		id := ev.SourceID
		if seen[id] {
			continue
		}
		seen[id] = true
		g.Go(func() error {
			src, err := c.Source(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			out[id] = src
			return nil
		})
	}
	_ = g.Wait()
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (c *Client) Statistics(ctx context.Context) (Statistics, error) {
	var out Statistics
	err := c.api.GetJSON(ctx, "/statistics/", nil, &out)
	return out, err
}
