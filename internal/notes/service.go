package notes

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kokuban/internal/models"
	"github.com/hyperjump/kokuban/internal/notesearch"
	"github.com/hyperjump/kokuban/internal/objectstore"
	"github.com/hyperjump/kokuban/internal/storage"
	"github.com/hyperjump/kokuban/internal/vision"
)

// extractor is the orchestrator's surface, split out so the service can be
// tested without a model endpoint.
type extractor interface {
	Run(ctx context.Context, in Input) (*Output, error)
}

// Service owns room-scoped note operations and the upload pipeline. All
// reconciliation for one room runs under that room's lock: the next upload's
// existing-summary read always observes the previous upload's committed
// result, including merge deletions.
type Service struct {
	store            storage.Store
	search           *notesearch.Index
	objects          objectstore.Store
	orch             extractor
	locks            *lockRegistry
	logger           *zap.Logger
	generateDiagrams bool

	frameMu sync.Mutex
	// Last accepted frame per room, attached to the next extraction so the
	// model can see past a professor blocking the board.
	prevFrames map[string]vision.Image
}

// NewService wires the upload pipeline and room operations.
func NewService(store storage.Store, search *notesearch.Index, objects objectstore.Store,
	orch extractor, logger *zap.Logger, generateDiagrams bool) *Service {
	return &Service{
		store:            store,
		search:           search,
		objects:          objects,
		orch:             orch,
		locks:            newLockRegistry(),
		logger:           logger,
		generateDiagrams: generateDiagrams,
		prevFrames:       make(map[string]vision.Image),
	}
}

// CreateRoom creates a lecture room with a fresh join code.
func (s *Service) CreateRoom(ctx context.Context, name string) (*models.Room, error) {
	return s.store.CreateRoom(ctx, name)
}

// RoomByCode resolves a join code.
func (s *Service) RoomByCode(ctx context.Context, code string) (*models.Room, error) {
	return s.store.GetRoomByCode(ctx, code)
}

// ListRooms returns all rooms with note counts.
func (s *Service) ListRooms(ctx context.Context) ([]*models.Room, error) {
	return s.store.ListRooms(ctx)
}

// Notes returns the stored section list for a room.
func (s *Service) Notes(ctx context.Context, code string) ([]models.Note, error) {
	room, err := s.store.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.store.NotesForRoom(ctx, room.ID)
}

// Highlight bumps the highlight count for one section and returns the new
// count. A non-empty comment is stored alongside the highlight.
func (s *Service) Highlight(ctx context.Context, code, sectionID, comment, highlightedText string) (int, error) {
	room, err := s.store.GetRoomByCode(ctx, code)
	if err != nil {
		return 0, err
	}
	count, err := s.store.IncrementHighlight(ctx, room.ID, sectionID)
	if err != nil {
		return 0, err
	}
	if comment != "" {
		if _, err := s.store.AddComment(ctx, room.ID, sectionID, comment, highlightedText); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// Comment appends a comment to one section.
func (s *Service) Comment(ctx context.Context, code, sectionID, text, highlightedText string) (*models.Comment, error) {
	room, err := s.store.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.store.AddComment(ctx, room.ID, sectionID, text, highlightedText)
}

// Comments returns all comments for a room.
func (s *Service) Comments(ctx context.Context, code string) ([]models.Comment, error) {
	room, err := s.store.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.store.CommentsForRoom(ctx, room.ID)
}

// Search runs a full-text query over a room's stored sections.
func (s *Service) Search(ctx context.Context, code, query string, limit int) ([]notesearch.Result, error) {
	room, err := s.store.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.search.Search(ctx, room.ID, query, limit)
}

// ProcessUpload runs the full pipeline for one captured frame: lock the room,
// read existing summaries, extract, upload fresh diagram images, persist the
// reconciled sections, and read back the updated note list.
func (s *Service) ProcessUpload(ctx context.Context, code string, image vision.Image) (*models.UploadResult, error) {
	room, err := s.store.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	lock := s.locks.forRoom(room.ID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.store.ExistingSummaries(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("read existing sections: %w", err)
	}

	out, err := s.orch.Run(ctx, Input{
		Current:          image,
		Previous:         s.previousFrame(room.ID),
		Existing:         existing,
		GenerateDiagrams: s.generateDiagrams,
	})
	if err != nil {
		return nil, err
	}

	s.resolveDiagramImages(ctx, out.Sections, existing)

	if err := s.store.UpsertSections(ctx, room.ID, out.Sections); err != nil {
		return nil, fmt.Errorf("persist sections: %w", err)
	}
	if err := s.store.DeleteSections(ctx, room.ID, out.Consumed); err != nil {
		return nil, fmt.Errorf("delete merged sections: %w", err)
	}
	if err := s.search.IndexSections(ctx, room.ID, out.Sections); err != nil {
		s.logger.Warn("search indexing failed", zap.String("room", room.Code), zap.Error(err))
	}
	if err := s.search.DeleteSections(ctx, room.ID, out.Consumed); err != nil {
		s.logger.Warn("search deletion failed", zap.String("room", room.Code), zap.Error(err))
	}

	s.rememberFrame(room.ID, image)

	notes, err := s.store.NotesForRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("read back notes: %w", err)
	}
	s.logger.Info("upload processed",
		zap.String("room", room.Code),
		zap.Int("sections", len(out.Sections)),
		zap.Int("merged_away", len(out.Consumed)),
		zap.Int("total_notes", len(notes)))
	return &models.UploadResult{Sections: out.Sections, Notes: notes}, nil
}

// resolveDiagramImages uploads freshly generated diagram bytes and fills
// fallback URLs. A failed upload or a generation miss falls back to the
// previously stored image for that id; the overall upload never aborts over
// one diagram.
func (s *Service) resolveDiagramImages(ctx context.Context, sections []models.Section, existing []models.SectionSummary) {
	existingImages := make(map[string]string, len(existing))
	for _, sum := range existing {
		if sum.ImageURL != "" {
			existingImages[sum.SectionID] = sum.ImageURL
		}
	}

	for i := range sections {
		sec := &sections[i]
		if sec.Type != models.TypeDiagram {
			continue
		}
		if sec.HasGeneratedImage() {
			filename := fmt.Sprintf("diagram_%s.%s", uuid.NewString(), sec.ImageExt)
			url, err := s.objects.Upload(ctx, filename, sec.ImageBytes, mimeForExt(sec.ImageExt))
			if err == nil {
				sec.ImageURL = url
				continue
			}
			s.logger.Warn("diagram upload failed, falling back to stored image",
				zap.String("section_id", sec.SectionID), zap.Error(err))
		}
		if sec.ImageURL == "" {
			sec.ImageURL = existingImages[sec.SectionID]
		}
	}
}

func (s *Service) previousFrame(roomID string) *vision.Image {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if frame, ok := s.prevFrames[roomID]; ok {
		return &frame
	}
	return nil
}

func (s *Service) rememberFrame(roomID string, frame vision.Image) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	s.prevFrames[roomID] = frame
}

func mimeForExt(ext string) string {
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	default:
		return "image/png"
	}
}
