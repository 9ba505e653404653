// Package notesearch provides a Bleve full-text index over stored lecture
// sections, scoped per room.
package notesearch

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/hyperjump/kokuban/internal/models"
)

// Index wraps a Bleve index keyed by "roomID:sectionID".
type Index struct {
	index bleve.Index
}

// Result is one search hit within a room.
type Result struct {
	SectionID string  `json:"section_id"`
	Score     float64 `json:"score"`
}

type noteDoc struct {
	RoomID    string `json:"room_id"`
	SectionID string `json:"section_id"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Caption   string `json:"caption"`
}

// NewIndex creates or opens a Bleve index at path. An existing index is
// reused; remove the directory to force a rebuild after a mapping change.
func NewIndex(path string) (*Index, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase + tokenize, no stemming, so a query for
	// "eigenvalues" is not stemmed away from the board's exact wording.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("caption", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("room_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("section_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("type", keywordFieldMapping)
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open search index: %w", openErr)
		}
		return &Index{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}
	return &Index{index: index}, nil
}

func docID(roomID, sectionID string) string {
	return roomID + ":" + sectionID
}

// IndexSections indexes or reindexes the given sections for a room.
func (ix *Index) IndexSections(ctx context.Context, roomID string, sections []models.Section) error {
	batch := ix.index.NewBatch()
	for _, sec := range sections {
		doc := noteDoc{
			RoomID:    roomID,
			SectionID: sec.SectionID,
			Type:      string(sec.Type),
			Content:   sec.Content,
			Caption:   sec.Caption,
		}
		if err := batch.Index(docID(roomID, sec.SectionID), doc); err != nil {
			return fmt.Errorf("failed to index section %s: %w", sec.SectionID, err)
		}
	}
	return ix.index.Batch(batch)
}

// DeleteSections removes sections from the index, typically after a merge
// consumed their ids.
func (ix *Index) DeleteSections(ctx context.Context, roomID string, sectionIDs []string) error {
	batch := ix.index.NewBatch()
	for _, id := range sectionIDs {
		batch.Delete(docID(roomID, id))
	}
	return ix.index.Batch(batch)
}

// Search runs a match query over content and caption, restricted to one room,
// and returns up to limit hits by score.
func (ix *Index) Search(ctx context.Context, roomID, query string, limit int) ([]Result, error) {
	roomQuery := bleve.NewTermQuery(roomID)
	roomQuery.SetField("room_id")
	matchQuery := bleve.NewMatchQuery(query)
	combined := bleve.NewConjunctionQuery(roomQuery, matchQuery)

	req := bleve.NewSearchRequest(combined)
	req.Size = limit
	req.Fields = []string{"section_id"}
	results, err := ix.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]Result, 0, len(results.Hits))
	for _, hit := range results.Hits {
		sectionID, _ := hit.Fields["section_id"].(string)
		out = append(out, Result{SectionID: sectionID, Score: hit.Score})
	}
	return out, nil
}

// DocCount returns the total number of indexed sections across all rooms.
func (ix *Index) DocCount() (uint64, error) {
	return ix.index.DocCount()
}

// Close closes the underlying index.
func (ix *Index) Close() error {
	return ix.index.Close()
}
