package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kokuban/internal/models"
	"github.com/hyperjump/kokuban/internal/storage"
	"github.com/hyperjump/kokuban/internal/vision"
)

// maxUploadBytes caps one chalkboard photo.
const maxUploadBytes = 32 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name string `json:"name"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	room, err := s.notes.CreateRoom(r.Context(), input.Name)
	if err != nil {
		s.logger.Error("create room failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, room)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.notes.ListRooms(r.Context())
	if err != nil {
		s.logger.Error("list rooms failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rooms == nil {
		rooms = []*models.Room{}
	}
	s.respondJSON(w, http.StatusOK, rooms)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.notes.RoomByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, room)
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	mime := header.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}

	s.logger.Info("upload received",
		zap.String("room", code),
		zap.String("filename", header.Filename),
		zap.Int("bytes", len(data)))

	result, err := s.notes.ProcessUpload(r.Context(), code, vision.Image{Bytes: data, MIME: mime})
	if err != nil {
		if errors.Is(err, storage.ErrRoomNotFound) {
			s.respondError(w, http.StatusNotFound, "room not found")
			return
		}
		s.logger.Error("upload processing failed", zap.String("room", code), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.notes.Notes(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if notes == nil {
		notes = []models.Note{}
	}
	s.respondJSON(w, http.StatusOK, notes)
}

func (s *Server) handleSearchNotes(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "missing q parameter")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	hits, err := s.notes.Search(r.Context(), chi.URLParam(r, "code"), query, limit)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"query": query, "results": hits})
}

func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	var input struct {
		SectionID       string `json:"section_id"`
		Comment         string `json:"comment"`
		HighlightedText string `json:"highlighted_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(input.SectionID) == "" {
		s.respondError(w, http.StatusBadRequest, "section_id is required")
		return
	}
	count, err := s.notes.Highlight(r.Context(), chi.URLParam(r, "code"),
		input.SectionID, strings.TrimSpace(input.Comment), input.HighlightedText)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"section_id":      input.SectionID,
		"highlight_count": count,
	})
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var input struct {
		SectionID       string `json:"section_id"`
		Comment         string `json:"comment"`
		HighlightedText string `json:"highlighted_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(input.SectionID) == "" || strings.TrimSpace(input.Comment) == "" {
		s.respondError(w, http.StatusBadRequest, "section_id and comment are required")
		return
	}
	comment, err := s.notes.Comment(r.Context(), chi.URLParam(r, "code"),
		input.SectionID, input.Comment, input.HighlightedText)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, comment)
}

func (s *Server) handleGetComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.notes.Comments(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	s.respondJSON(w, http.StatusOK, comments)
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if s.speech == nil {
		s.respondError(w, http.StatusServiceUnavailable, "speech is not configured")
		return
	}
	var input struct {
		Text    string `json:"text"`
		VoiceID string `json:"voice_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(input.Text) == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	audio, err := s.speech.Synthesize(r.Context(), input.Text, input.VoiceID)
	if err != nil {
		s.logger.Error("tts failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

// respondStoreError maps store lookup failures to client-visible statuses.
func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrRoomNotFound):
		s.respondError(w, http.StatusNotFound, "room not found")
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
