package nes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(en string) *LangTextPair { return &LangTextPair{EN: &LangText{Value: en}} }

func TestUnifiedName(t *testing.T) {
	e := Entity{Names: []Name{
		{Kind: "ALIAS", EN: &NameParts{Full: "R. Lamichhane"}},
		{Kind: "PRIMARY", EN: &NameParts{Full: "Rabi Lamichhane"}, NE: &NameParts{Full: "रवि लामिछाने"}},
	}}
	assert.Equal(t, "Rabi Lamichhane", UnifiedName(e, LangEN))
	assert.Equal(t, "रवि लामिछाने", UnifiedName(e, LangNE))

	alias := Entity{Names: []Name{{Kind: "ALIAS", EN: &NameParts{Full: "Only alias"}}}}
	assert.Equal(t, "Only alias", UnifiedName(alias, LangEN))
	assert.Equal(t, "Unknown", UnifiedName(alias, LangNE))
	assert.Equal(t, "Unknown", UnifiedName(Entity{}, LangEN))
}

func TestMergeEvidenceAndSources(t *testing.T) {
	e := Entity{Attributions: []Attribution{
		{Title: text("Court verdict"), Details: text("Supreme court")},
		{Title: text("Interview"), Details: text("video recording")},
		{},
	}}
	got := MergeEvidenceAndSources(e)
	require.Len(t, got, 3)
	assert.Equal(t, "attribution-0", got[0].ID)
	assert.Equal(t, SourceLegalRecord, got[0].Type)
	assert.Equal(t, SourceVideo, got[1].Type)
	assert.Equal(t, "Unnamed Source", got[2].Title)
	assert.Equal(t, SourceDocument, got[2].Type)
	assert.Equal(t, "Legal Record", got[0].Type.Label())
}

func TestGroupAndSortSources(t *testing.T) {
	sources := []EvidenceSource{
		{ID: "a", Type: SourceReport, PublishedDate: "2023-01-01"},
		{ID: "b", Type: SourceReport},
		{ID: "c", Type: SourcePhoto, PublishedDate: "2024-05-01T00:00:00Z"},
	}
	grouped := GroupSourcesByType(sources)
	assert.Len(t, grouped[SourceReport], 2)
	assert.Len(t, grouped[SourcePhoto], 1)
	assert.Empty(t, grouped[SourceLetter])

	sorted := SortSourcesByDate(sources)
	assert.Equal(t, []string{"c", "a", "b"}, []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})
}
