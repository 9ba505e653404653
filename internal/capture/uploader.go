package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Uploader posts captured frames to the backend's upload endpoint for one
// room.
type Uploader struct {
	backendURL string
	roomCode   string
	httpClient *http.Client
}

// NewUploader targets backendURL's upload endpoint for roomCode. The client
// timeout is generous because the backend holds the request open through the
// vision call.
func NewUploader(backendURL, roomCode string) *Uploader {
	return &Uploader{
		backendURL: strings.TrimRight(backendURL, "/"),
		roomCode:   roomCode,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Upload sends one frame as a multipart file field.
func (u *Uploader) Upload(ctx context.Context, filename string, data []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("upload: create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("upload: write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("upload: close form: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/rooms/%s/upload-image", u.backendURL, u.roomCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return fmt.Errorf("upload: new request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
