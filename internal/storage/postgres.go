package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyperjump/kokuban/internal/models"
	"github.com/hyperjump/kokuban/pkg/utils"
)

const pgUniqueViolation = "23505"

// PostgresStore implements Store against a hosted Postgres database (e.g. a
// Supabase project). Schema management is external; see migrations/.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and verifies the connection.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("postgres: database url required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) CreateRoom(ctx context.Context, name string) (*models.Room, error) {
	for attempt := 0; attempt < 5; attempt++ {
		room := &models.Room{
			ID:        uuid.NewString(),
			Code:      newRoomCode(),
			Name:      name,
			Active:    true,
			CreatedAt: time.Now(),
		}
		_, err := s.pool.Exec(ctx,
			`INSERT INTO rooms (id, code, name, is_active, created_at) VALUES ($1, $2, $3, TRUE, $4)`,
			room.ID, room.Code, room.Name, room.CreatedAt,
		)
		if err == nil {
			return room, nil
		}
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to create room: code collisions exhausted retries")
}

func (s *PostgresStore) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	err := s.pool.QueryRow(ctx,
		`SELECT id, code, name, is_active, created_at FROM rooms WHERE code = $1 AND is_active`,
		strings.ToUpper(strings.TrimSpace(code)),
	).Scan(&room.ID, &room.Code, &room.Name, &room.Active, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *PostgresStore) ListRooms(ctx context.Context) ([]*models.Room, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.code, r.name, r.is_active, r.created_at, COUNT(n.id)
		 FROM rooms r LEFT JOIN lecture_notes n ON n.room_id = r.id
		 WHERE r.is_active
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

func (s *PostgresStore) UpsertSections(ctx context.Context, roomID string, sections []models.Section) error {
	if len(sections) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	for _, sec := range sections {
		if _, err := tx.Exec(ctx,
			`INSERT INTO lecture_notes (room_id, section_id, type, content, caption, image_url, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (room_id, section_id) DO UPDATE SET
				type = EXCLUDED.type,
				content = EXCLUDED.content,
				caption = EXCLUDED.caption,
				image_url = EXCLUDED.image_url`,
			roomID, sec.SectionID, string(sec.Type), sec.Content, sec.Caption, sec.ImageURL, now,
		); err != nil {
			return fmt.Errorf("failed to upsert section %s: %w", sec.SectionID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) DeleteSections(ctx context.Context, roomID string, sectionIDs []string) error {
	if len(sectionIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM lecture_notes WHERE room_id = $1 AND section_id = ANY($2)`,
		roomID, sectionIDs,
	)
	return err
}

func (s *PostgresStore) ExistingSummaries(ctx context.Context, roomID string) ([]models.SectionSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT section_id, type, content, image_url FROM lecture_notes
		 WHERE room_id = $1 ORDER BY id`, roomID,
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

func (s *PostgresStore) NotesForRoom(ctx context.Context, roomID string) ([]models.Note, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT n.id, n.section_id, n.type, n.content, n.caption, n.image_url,
			COALESCE(h.count, 0), n.created_at
		 FROM lecture_notes n
		 LEFT JOIN highlights h ON h.room_id = n.room_id AND h.section_id = n.section_id
		 WHERE n.room_id = $1 ORDER BY n.id`, roomID,
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

func (s *PostgresStore) IncrementHighlight(ctx context.Context, roomID, sectionID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO highlights (room_id, section_id, count) VALUES ($1, $2, 1)
		 ON CONFLICT (room_id, section_id) DO UPDATE SET count = highlights.count + 1
		 RETURNING count`, roomID, sectionID,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *PostgresStore) AddComment(ctx context.Context, roomID, sectionID, text, highlightedText string) (*models.Comment, error) {
	comment := &models.Comment{
		SectionID:       sectionID,
		Text:            text,
		HighlightedText: highlightedText,
		CreatedAt:       time.Now(),
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO comments (room_id, section_id, comment, highlighted_text, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		roomID, sectionID, text, highlightedText, comment.CreatedAt,
	).Scan(&comment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}
	return comment, nil
}

func (s *PostgresStore) CommentsForRoom(ctx context.Context, roomID string) ([]models.Comment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, section_id, comment, highlighted_text, created_at
		 FROM comments WHERE room_id = $1 ORDER BY id`, roomID,
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

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
