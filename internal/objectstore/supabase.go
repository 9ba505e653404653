package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SupabaseStore uploads blobs to a Supabase Storage bucket over its REST API
// and serves them back through the bucket's public URL.
type SupabaseStore struct {
	baseURL    string
	apiKey     string
	bucket     string
	httpClient *http.Client
}

// NewSupabaseStore validates the project settings and returns a store for the
// given bucket. The bucket must exist and be public.
func NewSupabaseStore(projectURL, apiKey, bucket string) (*SupabaseStore, error) {
	projectURL = strings.TrimRight(strings.TrimSpace(projectURL), "/")
	if projectURL == "" {
		return nil, errors.New("supabase store: project url required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("supabase store: api key required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("supabase store: bucket required")
	}
	return &SupabaseStore{
		baseURL:    projectURL,
		apiKey:     apiKey,
		bucket:     bucket,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Upload writes data to the bucket under filename and returns the public URL.
// An existing object with the same name is overwritten.
func (s *SupabaseStore) Upload(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("supabase upload: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("supabase upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("supabase upload: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, filename), nil
}
