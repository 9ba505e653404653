// Package models defines core data structures for rooms, sections, notes, and comments.
package models

import "time"

// SectionType classifies extracted board content. It is a hint for the
// frontend, not load-bearing for correctness.
type SectionType string

const (
	TypeDefinition SectionType = "definition"
	TypeEquation   SectionType = "equation"
	TypeStep       SectionType = "step"
	TypeNote       SectionType = "note"
	TypeDiagram    SectionType = "diagram"
)

// Section is one extracted chunk of board content. SectionID is stable within
// a room: "block-N" for prose/equation content, "diag-N" for diagrams.
// Content may contain inline ($...$) and display ($$...$$) LaTeX math.
type Section struct {
	SectionID string      `json:"section_id"`
	Type      SectionType `json:"type"`
	Content   string      `json:"content"`
	Caption   string      `json:"caption,omitempty"`
	ImageURL  string      `json:"image_url,omitempty"`

	// In-flight only: freshly generated diagram image bytes and their format
	// ("png", "jpg"). Stripped before persistence, replaced by ImageURL once
	// the bytes are uploaded to object storage.
	ImageBytes []byte `json:"-"`
	ImageExt   string `json:"-"`
}

// HasGeneratedImage reports whether the section carries freshly generated
// image bytes that still need to be uploaded.
func (s *Section) HasGeneratedImage() bool {
	return len(s.ImageBytes) > 0 && s.ImageExt != ""
}

// Note is a persisted section with its database row id and highlight count.
type Note struct {
	ID             int64       `json:"id"`
	SectionID      string      `json:"section_id"`
	Type           SectionType `json:"type"`
	Content        string      `json:"content"`
	Caption        string      `json:"caption,omitempty"`
	ImageURL       string      `json:"image_url,omitempty"`
	HighlightCount int         `json:"highlight_count"`
	CreatedAt      time.Time   `json:"created_at"`
}

// SectionSummary is the read-only projection of a stored section fed back into
// the extraction prompt so the model reuses ids instead of minting duplicates.
type SectionSummary struct {
	SectionID      string      `json:"section_id"`
	Type           SectionType `json:"type"`
	ContentPreview string      `json:"content_preview"`
	ImageURL       string      `json:"image_url,omitempty"`
}

// UploadResult is the response of one processed board image.
type UploadResult struct {
	Sections []Section `json:"sections"`
	Notes    []Note    `json:"notes"`
}
