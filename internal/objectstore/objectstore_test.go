package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSupabaseStore_upload(t *testing.T) {
	var gotPath, gotAuth, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"Key":"diagrams/diagram_1.png"}`))
	}))
	defer srv.Close()

	store, err := NewSupabaseStore(srv.URL, "service-key", "diagrams")
	if err != nil {
		t.Fatalf("NewSupabaseStore: %v", err)
	}
	url, err := store.Upload(context.Background(), "diagram_1.png", []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if gotPath != "/storage/v1/object/diagrams/diagram_1.png" {
		t.Errorf("path %q", gotPath)
	}
	if gotAuth != "Bearer service-key" {
		t.Errorf("auth %q", gotAuth)
	}
	if gotType != "image/png" {
		t.Errorf("content type %q", gotType)
	}
	if string(gotBody) != "png-bytes" {
		t.Errorf("body %q", gotBody)
	}
	want := srv.URL + "/storage/v1/object/public/diagrams/diagram_1.png"
	if url != want {
		t.Errorf("url %q, want %q", url, want)
	}
}

func TestSupabaseStore_uploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bucket not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	store, _ := NewSupabaseStore(srv.URL, "k", "missing")
	_, err := store.Upload(context.Background(), "a.png", []byte("x"), "image/png")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected http error, got %v", err)
	}
}

func TestSupabaseStore_requiresSettings(t *testing.T) {
	if _, err := NewSupabaseStore("", "k", "b"); err == nil {
		t.Error("missing url must fail")
	}
	if _, err := NewSupabaseStore("http://x", "", "b"); err == nil {
		t.Error("missing key must fail")
	}
	if _, err := NewSupabaseStore("http://x", "k", ""); err == nil {
		t.Error("missing bucket must fail")
	}
}

func TestDiskStore_upload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	url, err := store.Upload(context.Background(), "diagram_1.png", []byte("data"), "image/png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	path := filepath.Join(dir, "diagram_1.png")
	if url != "file://"+path {
		t.Errorf("url %q", url)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "data" {
		t.Errorf("content %q", data)
	}
}

func TestDiskStore_stripsPathComponents(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewDiskStore(dir)
	if _, err := store.Upload(context.Background(), "../escape.png", []byte("x"), "image/png"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.png")); err != nil {
		t.Errorf("file not written inside the store dir: %v", err)
	}
}
