// Package nes is a read-only client for the entity-profile service.
package nes

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"jawafdehi/internal/upstream"
)

const (
	ServiceName    = "nes"
	DefaultBaseURL = "https://nes.newnepal.org/api"
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

func (c *Client) Entities(ctx context.Context, p EntityParams) (EntityList, error) {
	var out EntityList
	err := c.api.GetJSON(ctx, "/entity", p.values(), &out)
	return out, err
}

func (c *Client) SearchEntities(ctx context.Context, q string, p EntityParams) (EntityList, error) {
	v := p.values()
	v.Set("q", q)
	var out EntityList
	err := c.api.GetJSON(ctx, "/entity/search", v, &out)
	return out, err
}

func (c *Client) EntityBySlug(ctx context.Context, entityType, slug string) (Entity, error) {
	var out Entity
	err := c.api.GetJSON(ctx, "/entity/"+url.PathEscape(entityType)+"/"+url.PathEscape(slug), nil, &out)
	return out, err
}

// EntityByID accepts "entity:type/slug", "type:slug" or an opaque id.
func (c *Client) EntityByID(ctx context.Context, id string) (Entity, error) {
	if typ, slug, ok := SplitID(id); ok {
		return c.EntityBySlug(ctx, typ, slug)
	}
	var out Entity
	err := c.api.GetJSON(ctx, "/entity/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) EntityVersions(ctx context.Context, entityType, slug string) (EntityVersions, error) {
	var out EntityVersions
	err := c.api.GetJSON(ctx, "/entity/"+url.PathEscape(entityType)+"/"+url.PathEscape(slug)+"/versions", nil, &out)
	return out, err
}

func (c *Client) Relationships(ctx context.Context, p RelationshipParams) (RelationshipList, error) {
	var out RelationshipList
	err := c.api.GetJSON(ctx, "/relationship", p.values(), &out)
	return out, err
}

// SplitID extracts type and slug from "entity:type/slug" or "type:slug".
func SplitID(id string) (entityType, slug string, ok bool) {
	if rest, found := strings.CutPrefix(id, "entity:"); found {
		entityType, slug, ok = strings.Cut(rest, "/")
		return entityType, slug, ok && entityType != "" && slug != ""
	}
	entityType, slug, ok = strings.Cut(id, ":")
	if !ok || entityType == "" || slug == "" || strings.Contains(slug, "/") {
		return "", "", false
	}
	return entityType, slug, true
}
