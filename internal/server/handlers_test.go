package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kokuban/internal/config"
	"github.com/hyperjump/kokuban/internal/models"
	"github.com/hyperjump/kokuban/internal/notes"
	"github.com/hyperjump/kokuban/internal/notesearch"
	"github.com/hyperjump/kokuban/internal/objectstore"
	"github.com/hyperjump/kokuban/internal/storage"
)

type fakeExtractor struct {
	run func(ctx context.Context, in notes.Input) (*notes.Output, error)
}

func (f *fakeExtractor) Run(ctx context.Context, in notes.Input) (*notes.Output, error) {
	return f.run(ctx, in)
}

type fakeSynthesizer struct {
	synthesize func(ctx context.Context, text, voiceID string) ([]byte, error)
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	return f.synthesize(ctx, text, voiceID)
}

func newTestServer(t *testing.T, orch *fakeExtractor, speech Synthesizer) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	index, err := notesearch.NewIndex(filepath.Join(dir, "notes.bleve"))
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(func() { index.Close() })
	objects, err := objectstore.NewDiskStore(filepath.Join(dir, "diagrams"))
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	svc := notes.NewService(store, index, objects, orch, zap.NewNop(), true)
	srv := NewServer(svc, speech, &config.ServerConfig{Host: "localhost", Port: 0}, zap.NewNop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func defaultExtractor() *fakeExtractor {
	return &fakeExtractor{run: func(ctx context.Context, in notes.Input) (*notes.Output, error) {
		return &notes.Output{Sections: []models.Section{
			{SectionID: "block-1", Type: models.TypeDefinition, Content: "Eigenvalue definition."},
		}}, nil
	}}
}

func createRoom(t *testing.T, ts *httptest.Server, name string) models.Room {
	t.Helper()
	body := strings.NewReader(`{"name":"` + name + `"}`)
	resp, err := http.Post(ts.URL+"/api/v1/rooms", "application/json", body)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create room status %d", resp.StatusCode)
	}
	var room models.Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		t.Fatalf("decode room: %v", err)
	}
	return room
}

func uploadImage(t *testing.T, ts *httptest.Server, code string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "board.jpg")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	mw.Close()

	resp, err := http.Post(ts.URL+"/api/v1/rooms/"+code+"/upload-image", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, defaultExtractor(), nil)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status %d", resp.StatusCode)
	}
}

func TestRoomLifecycle(t *testing.T) {
	ts := newTestServer(t, defaultExtractor(), nil)
	room := createRoom(t, ts, "Calculus II")
	if len(room.Code) != 6 {
		t.Errorf("room code %q", room.Code)
	}

	resp, err := http.Get(ts.URL + "/api/v1/rooms/" + room.Code)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get room status %d", resp.StatusCode)
	}

	resp2, err := http.Get(ts.URL + "/api/v1/rooms/ZZZZZZ")
	if err != nil {
		t.Fatalf("get missing room: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("missing room status %d", resp2.StatusCode)
	}

	resp3, err := http.Get(ts.URL + "/api/v1/rooms")
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	defer resp3.Body.Close()
	var rooms []models.Room
	if err := json.NewDecoder(resp3.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if len(rooms) != 1 {
		t.Errorf("rooms %+v", rooms)
	}
}

func TestUploadImage(t *testing.T) {
	ts := newTestServer(t, defaultExtractor(), nil)
	room := createRoom(t, ts, "")

	resp := uploadImage(t, ts, room.Code)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status %d: %s", resp.StatusCode, body)
	}
	var result models.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Sections) != 1 || len(result.Notes) != 1 {
		t.Errorf("result %+v", result)
	}
}

func TestUploadImage_errors(t *testing.T) {
	t.Run("unknown room", func(t *testing.T) {
		ts := newTestServer(t, defaultExtractor(), nil)
		resp := uploadImage(t, ts, "ZZZZZZ")
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status %d", resp.StatusCode)
		}
	})
	t.Run("extraction failure maps to bad gateway", func(t *testing.T) {
		orch := &fakeExtractor{run: func(ctx context.Context, in notes.Input) (*notes.Output, error) {
			return nil, errors.New("model output unparseable")
		}}
		ts := newTestServer(t, orch, nil)
		room := createRoom(t, ts, "")
		resp := uploadImage(t, ts, room.Code)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("status %d", resp.StatusCode)
		}
	})
	t.Run("missing file field", func(t *testing.T) {
		ts := newTestServer(t, defaultExtractor(), nil)
		room := createRoom(t, ts, "")
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("other", "x")
		mw.Close()
		resp, err := http.Post(ts.URL+"/api/v1/rooms/"+room.Code+"/upload-image", mw.FormDataContentType(), &buf)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status %d", resp.StatusCode)
		}
	})
}

func TestGetNotes_emptyIsArray(t *testing.T) {
	ts := newTestServer(t, defaultExtractor(), nil)
	room := createRoom(t, ts, "")
	resp, err := http.Get(ts.URL + "/api/v1/rooms/" + room.Code + "/notes")
	if err != nil {
		t.Fatalf("get notes: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("empty notes body %q, want []", body)
	}
}

func TestHighlightAndComments(t *testing.T) {
	ts := newTestServer(t, defaultExtractor(), nil)
	room := createRoom(t, ts, "")
	uploadImage(t, ts, room.Code).Body.Close()

	resp, err := http.Post(ts.URL+"/api/v1/rooms/"+room.Code+"/highlight", "application/json",
		strings.NewReader(`{"section_id":"block-1"}`))
	if err != nil {
		t.Fatalf("highlight: %v", err)
	}
	defer resp.Body.Close()
	var highlight struct {
		SectionID string `json:"section_id"`
		Count     int    `json:"highlight_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&highlight); err != nil {
		t.Fatalf("decode highlight: %v", err)
	}
	if highlight.SectionID != "block-1" || highlight.Count != 1 {
		t.Errorf("first highlight %+v, want block-1 at count 1", highlight)
	}

	resp2, err := http.Post(ts.URL+"/api/v1/rooms/"+room.Code+"/highlight", "application/json",
		strings.NewReader(`{"comment":"no section id"}`))
	if err != nil {
		t.Fatalf("highlight without section: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("missing section_id status %d", resp2.StatusCode)
	}

	commentBody := strings.NewReader(`{"section_id":"block-1","comment":"why?","highlighted_text":"Eigenvalue"}`)
	resp3, err := http.Post(ts.URL+"/api/v1/rooms/"+room.Code+"/comments", "application/json", commentBody)
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusCreated {
		t.Errorf("comment status %d", resp3.StatusCode)
	}

	badBody := strings.NewReader(`{"comment":"no section"}`)
	resp4, err := http.Post(ts.URL+"/api/v1/rooms/"+room.Code+"/comments", "application/json", badBody)
	if err != nil {
		t.Fatalf("bad comment: %v", err)
	}
	defer resp4.Body.Close()
	if resp4.StatusCode != http.StatusBadRequest {
		t.Errorf("bad comment status %d", resp4.StatusCode)
	}

	resp5, err := http.Get(ts.URL + "/api/v1/rooms/" + room.Code + "/comments")
	if err != nil {
		t.Fatalf("get comments: %v", err)
	}
	defer resp5.Body.Close()
	var comments []models.Comment
	if err := json.NewDecoder(resp5.Body).Decode(&comments); err != nil {
		t.Fatalf("decode comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Text != "why?" {
		t.Errorf("comments %+v", comments)
	}
}

func TestHighlight_withComment(t *testing.T) {
	ts := newTestServer(t, defaultExtractor(), nil)
	room := createRoom(t, ts, "")
	uploadImage(t, ts, room.Code).Body.Close()

	body := strings.NewReader(`{"section_id":"block-1","comment":"key step","highlighted_text":"Eigenvalue"}`)
	resp, err := http.Post(ts.URL+"/api/v1/rooms/"+room.Code+"/highlight", "application/json", body)
	if err != nil {
		t.Fatalf("highlight: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("highlight status %d", resp.StatusCode)
	}

	resp2, err := http.Get(ts.URL + "/api/v1/rooms/" + room.Code + "/comments")
	if err != nil {
		t.Fatalf("get comments: %v", err)
	}
	defer resp2.Body.Close()
	var comments []models.Comment
	if err := json.NewDecoder(resp2.Body).Decode(&comments); err != nil {
		t.Fatalf("decode comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Text != "key step" || comments[0].HighlightedText != "Eigenvalue" {
		t.Errorf("comments %+v, want the piggybacked comment", comments)
	}
}

func TestSearchNotes(t *testing.T) {
	ts := newTestServer(t, defaultExtractor(), nil)
	room := createRoom(t, ts, "")
	uploadImage(t, ts, room.Code).Body.Close()

	resp, err := http.Get(ts.URL + "/api/v1/rooms/" + room.Code + "/search?q=eigenvalue")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Query   string              `json:"query"`
		Results []notesearch.Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(out.Results) != 1 || out.Results[0].SectionID != "block-1" {
		t.Errorf("results %+v", out.Results)
	}

	resp2, err := http.Get(ts.URL + "/api/v1/rooms/" + room.Code + "/search")
	if err != nil {
		t.Fatalf("search without q: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("missing q status %d", resp2.StatusCode)
	}
}

func TestTTS(t *testing.T) {
	var gotVoice string
	speech := &fakeSynthesizer{synthesize: func(ctx context.Context, text, voiceID string) ([]byte, error) {
		gotVoice = voiceID
		return []byte("mp3"), nil
	}}
	ts := newTestServer(t, defaultExtractor(), speech)

	resp, err := http.Post(ts.URL+"/api/v1/tts", "application/json", strings.NewReader(`{"text":"$x^2$"}`))
	if err != nil {
		t.Fatalf("tts: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("content type %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "mp3" {
		t.Errorf("body %q", body)
	}
	if gotVoice != "" {
		t.Errorf("voice %q, want default", gotVoice)
	}

	resp2, err := http.Post(ts.URL+"/api/v1/tts", "application/json",
		strings.NewReader(`{"text":"$x^2$","voice_id":"voice-9"}`))
	if err != nil {
		t.Fatalf("tts with voice: %v", err)
	}
	resp2.Body.Close()
	if gotVoice != "voice-9" {
		t.Errorf("voice %q, want voice-9", gotVoice)
	}
}

func TestTTS_unconfigured(t *testing.T) {
	ts := newTestServer(t, defaultExtractor(), nil)
	resp, err := http.Post(ts.URL+"/api/v1/tts", "application/json", strings.NewReader(`{"text":"x"}`))
	if err != nil {
		t.Fatalf("tts: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, defaultExtractor(), nil)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/rooms", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
