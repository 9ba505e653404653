// Package storage defines the persistence interface for rooms, lecture notes,
// and comments, with SQLite and Postgres implementations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/hyperjump/kokuban/internal/config"
	"github.com/hyperjump/kokuban/internal/models"
)

// ErrRoomNotFound is returned when a room code or id resolves to nothing, or
// to a deactivated room.
var ErrRoomNotFound = errors.New("room not found")

// Store defines persistence operations for rooms, sections, and comments.
type Store interface {
	// Room operations. GetRoomByCode and ListRooms see active rooms only.
	CreateRoom(ctx context.Context, name string) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
	ListRooms(ctx context.Context) ([]*models.Room, error)

	// Section operations, keyed on (room_id, section_id)
	UpsertSections(ctx context.Context, roomID string, sections []models.Section) error
	DeleteSections(ctx context.Context, roomID string, sectionIDs []string) error
	ExistingSummaries(ctx context.Context, roomID string) ([]models.SectionSummary, error)
	NotesForRoom(ctx context.Context, roomID string) ([]models.Note, error)

	// Engagement operations. IncrementHighlight upserts: the first highlight
	// on a section creates its row at count 1.
	IncrementHighlight(ctx context.Context, roomID, sectionID string) (int, error)
	AddComment(ctx context.Context, roomID, sectionID, text, highlightedText string) (*models.Comment, error)
	CommentsForRoom(ctx context.Context, roomID string) ([]models.Comment, error)

	Close() error
}

// previewLength bounds the content excerpt sent back to the extraction model
// per existing section.
const previewLength = 150

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newRoomCode returns a 6-character join code. Uniqueness is enforced by the
// store; callers retry on collision.
func newRoomCode() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// Open constructs the Store named by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLiteStore(cfg.DatabasePath)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}
