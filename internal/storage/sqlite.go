package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kokuban/internal/models"
	"github.com/hyperjump/kokuban/pkg/utils"
)

// SQLiteStore implements Store using SQLite. It is the default driver for
// local development and tests; deployments against a hosted database use the
// Postgres store instead.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS lecture_notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		section_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		caption TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(room_id, section_id),
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_notes_room_id ON lecture_notes(room_id);

	CREATE TABLE IF NOT EXISTS highlights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		section_id TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(room_id, section_id),
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		section_id TEXT NOT NULL,
		comment TEXT NOT NULL,
		highlighted_text TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_comments_room_id ON comments(room_id);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateRoom inserts a room with a fresh join code, retrying on the unlikely
// code collision.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string) (*models.Room, error) {
	for attempt := 0; attempt < 5; attempt++ {
		room := &models.Room{
			ID:        uuid.NewString(),
			Code:      newRoomCode(),
			Name:      name,
			Active:    true,
			CreatedAt: time.Now(),
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO rooms (id, code, name, is_active, created_at) VALUES (?, ?, ?, 1, ?)`,
			room.ID, room.Code, room.Name, room.CreatedAt,
		)
		if err == nil {
			return room, nil
		}
		if !strings.Contains(err.Error(), "UNIQUE constraint failed: rooms.code") {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to create room: code collisions exhausted retries")
}

// GetRoomByCode returns the active room with the given join code. Deactivated
// rooms are treated as not found.
func (s *SQLiteStore) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, name, is_active, created_at FROM rooms WHERE code = ? AND is_active = 1`,
		strings.ToUpper(strings.TrimSpace(code)),
	).Scan(&room.ID, &room.Code, &room.Name, &room.Active, &room.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ListRooms returns all active rooms, newest first, with their note counts.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]*models.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.code, r.name, r.is_active, r.created_at, COUNT(n.id)
		 FROM rooms r LEFT JOIN lecture_notes n ON n.room_id = r.id
		 WHERE r.is_active = 1
		 GROUP BY r.id ORDER BY r.created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Code, &room.Name, &room.Active, &room.CreatedAt, &room.NoteCount); err != nil {
			return nil, err
		}
		rooms = append(rooms, &room)
	}
	return rooms, rows.Err()
}

// UpsertSections writes sections keyed on (room_id, section_id) in one
// transaction, updating content in place for reused ids.
func (s *SQLiteStore) UpsertSections(ctx context.Context, roomID string, sections []models.Section) error {
	if len(sections) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO lecture_notes (room_id, section_id, type, content, caption, image_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(room_id, section_id) DO UPDATE SET
			type = excluded.type,
			content = excluded.content,
			caption = excluded.caption,
			image_url = excluded.image_url`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, sec := range sections {
		if _, err := stmt.ExecContext(ctx,
			roomID, sec.SectionID, string(sec.Type), sec.Content, sec.Caption, sec.ImageURL, now,
		); err != nil {
			return fmt.Errorf("failed to upsert section %s: %w", sec.SectionID, err)
		}
	}
	return tx.Commit()
}

// DeleteSections removes the given section rows, typically ids consumed by a
// merge.
func (s *SQLiteStore) DeleteSections(ctx context.Context, roomID string, sectionIDs []string) error {
	if len(sectionIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range sectionIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM lecture_notes WHERE room_id = ? AND section_id = ?`, roomID, id,
		); err != nil {
			return fmt.Errorf("failed to delete section %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// ExistingSummaries returns one summary per stored section in insert order,
// with content truncated for prompt injection.
func (s *SQLiteStore) ExistingSummaries(ctx context.Context, roomID string) ([]models.SectionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT section_id, type, content, image_url FROM lecture_notes
		 WHERE room_id = ? ORDER BY id`, roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.SectionSummary
	for rows.Next() {
		var sum models.SectionSummary
		var content string
		if err := rows.Scan(&sum.SectionID, &sum.Type, &content, &sum.ImageURL); err != nil {
			return nil, err
		}
		sum.ContentPreview = utils.Truncate(content, previewLength)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// NotesForRoom returns the full section list with highlight counts, in insert
// order.
func (s *SQLiteStore) NotesForRoom(ctx context.Context, roomID string) ([]models.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT n.id, n.section_id, n.type, n.content, n.caption, n.image_url,
			COALESCE(h.count, 0), n.created_at
		 FROM lecture_notes n
		 LEFT JOIN highlights h ON h.room_id = n.room_id AND h.section_id = n.section_id
		 WHERE n.room_id = ? ORDER BY n.id`, roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.SectionID, &n.Type, &n.Content, &n.Caption,
			&n.ImageURL, &n.HighlightCount, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// IncrementHighlight atomically bumps the highlight count for one section and
// returns the new value. The first highlight creates the row at count 1.
func (s *SQLiteStore) IncrementHighlight(ctx context.Context, roomID, sectionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO highlights (room_id, section_id, count) VALUES (?, ?, 1)
		 ON CONFLICT(room_id, section_id) DO UPDATE SET count = count + 1
		 RETURNING count`, roomID, sectionID,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AddComment appends a comment to a section.
func (s *SQLiteStore) AddComment(ctx context.Context, roomID, sectionID, text, highlightedText string) (*models.Comment, error) {
	comment := &models.Comment{
		SectionID:       sectionID,
		Text:            text,
		HighlightedText: highlightedText,
		CreatedAt:       time.Now(),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO comments (room_id, section_id, comment, highlighted_text, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		roomID, sectionID, text, highlightedText, comment.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}
	comment.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// CommentsForRoom returns all comments for a room, oldest first.
func (s *SQLiteStore) CommentsForRoom(ctx context.Context, roomID string) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, section_id, comment, highlighted_text, created_at
		 FROM comments WHERE room_id = ? ORDER BY id`, roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.SectionID, &c.Text, &c.HighlightedText, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
