package models

import "time"

// Comment is a viewer annotation on a section. Append-only, ordered by
// creation time. HighlightedText optionally carries the substring the viewer
// had selected when commenting.
type Comment struct {
	ID              int64     `json:"id"`
	SectionID       string    `json:"section_id"`
	Text            string    `json:"comment"`
	HighlightedText string    `json:"highlighted_text,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
