package nes

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// UnifiedName picks the PRIMARY name in lang, then the first non-empty name.
func UnifiedName(e Entity, lang Lang) string {
	for _, n := range e.Names {
		if n.Kind != "PRIMARY" {
			continue
		}
		if p := n.In(lang); p != nil && p.Full != "" {
			return p.Full
		}
	}
	for _, n := range e.Names {
		if p := n.In(lang); p != nil && p.Full != "" {
			return p.Full
		}
	}
	return "Unknown"
}

type SourceType string

const (
	SourceDocument    SourceType = "document"
	SourceArticle     SourceType = "article"
	SourcePhoto       SourceType = "photo"
	SourceVideo       SourceType = "video"
	SourceLegalRecord SourceType = "legal_record"
	SourceLetter      SourceType = "letter"
	SourceReport      SourceType = "report"
	SourceWebsite     SourceType = "website"
	SourceOther       SourceType = "other"
)

// SourceTypes is the display order of source groups.
var SourceTypes = []SourceType{
	SourceDocument, SourceArticle, SourcePhoto, SourceVideo, SourceLegalRecord,
	SourceLetter, SourceReport, SourceWebsite, SourceOther,
}

var sourceLabels = map[SourceType]string{
	SourceDocument:    "Document",
	SourceArticle:     "Article",
	SourcePhoto:       "Photo",
	SourceVideo:       "Video",
	SourceLegalRecord: "Legal Record",
	SourceLetter:      "Letter",
	SourceReport:      "Report",
	SourceWebsite:     "Website",
	SourceOther:       "Other",
}

func (t SourceType) Label() string {
	if l, ok := sourceLabels[t]; ok {
		return l
	}
	return "Unknown"
}

// EvidenceSource is one item of the merged evidence and sources list shown
// on entity profiles.
type EvidenceSource struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Type          SourceType `json:"type"`
	Description   string     `json:"description,omitempty"`
	URL           string     `json:"url,omitempty"`
	PublishedDate string     `json:"published_date,omitempty"`
}

// MergeEvidenceAndSources turns entity attributions into a single list.
func MergeEvidenceAndSources(e Entity) []EvidenceSource {
	out := make([]EvidenceSource, 0, len(e.Attributions))
	for i, a := range e.Attributions {
		title := a.Title.Text()
		if title == "" {
			title = "Unnamed Source"
		}
		out = append(out, EvidenceSource{
			ID:          fmt.Sprintf("attribution-%d", i),
			Title:       title,
			Type:        InferSourceType(a),
			Description: a.Details.Text(),
		})
	}
	return out
}

// InferSourceType guesses the kind of source from keywords in its title and
// details. Order matters: the first match wins.
func InferSourceType(a Attribution) SourceType {
	title := strings.ToLower(a.Title.Text())
	details := strings.ToLower(a.Details.Text())
	has := func(s string, words ...string) bool {
		for _, w := range words {
			if strings.Contains(s, w) {
				return true
			}
		}
		return false
	}

	switch {
	case has(title, "video") || has(details, "video"):
		return SourceVideo
	case has(title, "photo", "image") || has(details, "photo"):
		return SourcePhoto
	case has(title, "article") || has(details, "article"):
		return SourceArticle
	case has(title, "court", "legal") || has(details, "legal"):
		return SourceLegalRecord
	case has(title, "report") || has(details, "report"):
		return SourceReport
	case has(title, "letter") || has(details, "letter"):
		return SourceLetter
	default:
		return SourceDocument
	}
}

func GroupSourcesByType(sources []EvidenceSource) map[SourceType][]EvidenceSource {
	out := make(map[SourceType][]EvidenceSource, len(sourceLabels))
	for t := range sourceLabels {
		out[t] = nil
	}
	for _, s := range sources {
		out[s.Type] = append(out[s.Type], s)
	}
	return out
}

// SortSourcesByDate orders sources most recent first; undated sources go last.
func SortSourcesByDate(sources []EvidenceSource) []EvidenceSource {
	out := append([]EvidenceSource(nil), sources...)
	sort.SliceStable(out, func(i, j int) bool {
		ti, okI := parseDate(out[i].PublishedDate)
		tj, okJ := parseDate(out[j].PublishedDate)
		switch {
		case !okI:
			return false
		case !okJ:
			return true
		default:
			return ti.After(tj)
		}
	})
	return out
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
