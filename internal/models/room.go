package models

import "time"

// Room is a lecture session. All sections, highlights, and comments are scoped
// by room identity; viewers join with the short Code.
type Room struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name,omitempty"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	NoteCount int       `json:"note_count,omitempty"`
}
