package jds

import (
	"net/url"
	"strconv"
)

type CaseType string

const (
	CaseTypeCorruption CaseType = "CORRUPTION"
	CaseTypePromises   CaseType = "PROMISES"
)

// JawafEntity is an entity reference inside a case. NESID links it to the
// entity service when set.
type JawafEntity struct {
	ID          int     `json:"id"`
	NESID       *string `json:"nes_id"`
	DisplayName *string `json:"display_name"`
}

// Label is the best human name available for the reference.
func (e JawafEntity) Label() string {
	if e.DisplayName != nil && *e.DisplayName != "" {
		return *e.DisplayName
	}
	if e.NESID != nil && *e.NESID != "" {
		return *e.NESID
	}
	return "Unknown"
}

type TimelineEntry struct {
	EventDate   string `json:"event_date"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type EvidenceEntry struct {
	SourceID    int    `json:"source_id"`
	Description string `json:"description"`
}

type VersionInfo struct {
	VersionNumber int    `json:"version_number"`
	UserID        *int   `json:"user_id,omitempty"`
	ChangeSummary string `json:"change_summary,omitempty"`
	Datetime      string `json:"datetime"`
}

type AuditHistory struct {
	Versions []VersionInfo `json:"versions"`
}

type Case struct {
	ID              int             `json:"id"`
	CaseID          string          `json:"case_id"`
	CaseType        CaseType        `json:"case_type"`
	Title           string          `json:"title"`
	CaseStartDate   *string         `json:"case_start_date"`
	CaseEndDate     *string         `json:"case_end_date"`
	AllegedEntities []JawafEntity   `json:"alleged_entities"`
	RelatedEntities []JawafEntity   `json:"related_entities"`
	Locations       []JawafEntity   `json:"locations"`
	Tags            []string        `json:"tags"`
	Description     string          `json:"description"`
	KeyAllegations  []string        `json:"key_allegations"`
	Timeline        []TimelineEntry `json:"timeline"`
	Evidence        []EvidenceEntry `json:"evidence"`
	VersionInfo     *VersionInfo    `json:"versionInfo,omitempty"`
	ThumbnailURL    *string         `json:"thumbnail_url,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

// Mentions reports whether the entity service id appears among the alleged or
// related entities.
func (c Case) Mentions(nesID string) bool {
	for _, list := range [][]JawafEntity{c.AllegedEntities, c.RelatedEntities} {
		for _, e := range list {
			if e.NESID != nil && *e.NESID == nesID {
				return true
			}
		}
	}
	return false
}

type CaseDetail struct {
	Case
	AuditHistory AuditHistory `json:"audit_history"`
}

type DocumentSource struct {
	ID              int           `json:"id"`
	SourceID        string        `json:"source_id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	URL             *string       `json:"url,omitempty"`
	RelatedEntities []JawafEntity `json:"related_entities"`
	CreatedAt       string        `json:"created_at"`
	UpdatedAt       string        `json:"updated_at"`
}

type PaginatedCaseList struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []Case  `json:"results"`
}

// Statistics are aggregate platform counts; the service caches them for five
// minutes.
type Statistics struct {
	PublishedCases          int    `json:"published_cases"`
	EntitiesTracked         int    `json:"entities_tracked"`
	CasesUnderInvestigation int    `json:"cases_under_investigation"`
	CasesClosed             int    `json:"cases_closed"`
	LastUpdated             string `json:"last_updated,omitempty"`
}

type CaseSearchParams struct {
	CaseType CaseType
	Tags     string
	Search   string
	Page     int
}

func (p CaseSearchParams) Values() url.Values {
	v := url.Values{}
	if p.CaseType != "" {
		v.Set("case_type", string(p.CaseType))
	}
	if p.Tags != "" {
		v.Set("tags", p.Tags)
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	return v
}
