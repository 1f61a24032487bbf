package nes

import (
	"net/url"
	"strconv"
)

type Lang string

const (
	LangEN Lang = "en"
	LangNE Lang = "ne"
)

type NameParts struct {
	Full   string `json:"full"`
	Given  string `json:"given,omitempty"`
	Family string `json:"family,omitempty"`
}

type Name struct {
	Kind string     `json:"kind"`
	EN   *NameParts `json:"en,omitempty"`
	NE   *NameParts `json:"ne,omitempty"`
}

func (n Name) In(lang Lang) *NameParts {
	if lang == LangNE {
		return n.NE
	}
	return n.EN
}

type LangText struct {
	Value string `json:"value"`
}

type LangTextPair struct {
	EN *LangText `json:"en,omitempty"`
	NE *LangText `json:"ne,omitempty"`
}

// Text returns the English value, falling back to Nepali.
func (p *LangTextPair) Text() string {
	if p == nil {
		return ""
	}
	if p.EN != nil && p.EN.Value != "" {
		return p.EN.Value
	}
	if p.NE != nil {
		return p.NE.Value
	}
	return ""
}

type Attribution struct {
	Title   *LangTextPair `json:"title,omitempty"`
	Details *LangTextPair `json:"details,omitempty"`
}

type Contact struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type Entity struct {
	ID           string         `json:"id"`
	Slug         string         `json:"slug"`
	EntityType   string         `json:"entity_type"`
	SubType      string         `json:"sub_type,omitempty"`
	Names        []Name         `json:"names"`
	Description  *LangTextPair  `json:"description,omitempty"`
	Contacts     []Contact      `json:"contacts,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	Attributions []Attribution  `json:"attributions,omitempty"`
	CreatedAt    string         `json:"created_at,omitempty"`
	UpdatedAt    string         `json:"updated_at,omitempty"`
}

// Contact returns the first contact of the given type, e.g. "EMAIL".
func (e Entity) Contact(kind string) string {
	for _, c := range e.Contacts {
		if c.Type == kind {
			return c.Value
		}
	}
	return ""
}

type EntityList struct {
	Entities []Entity `json:"entities"`
	Total    int      `json:"total"`
	Limit    int      `json:"limit,omitempty"`
	Offset   int      `json:"offset,omitempty"`
}

type Version struct {
	Version           int    `json:"version"`
	CreatedAt         string `json:"created_at"`
	ChangeDescription string `json:"change_description,omitempty"`
	Author            string `json:"author,omitempty"`
}

type EntityVersions struct {
	EntityID string    `json:"entity_id"`
	Versions []Version `json:"versions"`
}

type Relationship struct {
	ID        string `json:"id"`
	SourceID  string `json:"source_id"`
	TargetID  string `json:"target_id"`
	Type      string `json:"type"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type RelationshipList struct {
	Relationships []Relationship `json:"relationships"`
	Total         int            `json:"total,omitempty"`
}

type EntityParams struct {
	EntityType string
	SubType    string
	Limit      int
	Offset     int
}

func (p EntityParams) values() url.Values {
	v := url.Values{}
	if p.EntityType != "" {
		v.Set("entity_type", p.EntityType)
	}
	if p.SubType != "" {
		v.Set("sub_type", p.SubType)
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		v.Set("offset", strconv.Itoa(p.Offset))
	}
	return v
}

type RelationshipParams struct {
	SourceID string
	TargetID string
	Type     string
	Limit    int
}

func (p RelationshipParams) values() url.Values {
	v := url.Values{}
	if p.SourceID != "" {
		v.Set("source_id", p.SourceID)
	}
	if p.TargetID != "" {
		v.Set("target_id", p.TargetID)
	}
	if p.Type != "" {
		v.Set("type", p.Type)
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	return v
}
