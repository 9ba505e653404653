// Package capture grabs chalkboard frames from a classroom camera, or from a
// watched directory, and feeds them to the backend's upload endpoint.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// maxFrameBytes bounds how much of an MJPEG stream is buffered while looking
// for one complete frame.
const maxFrameBytes = 16 << 20

// Camera grabs single JPEG frames from an IP camera. Both plain snapshot
// endpoints and MJPEG streams are supported; for a stream, one frame is cut
// out of the multipart body.
type Camera struct {
	url        string
	username   string
	password   string
	httpClient *http.Client
}

// NewCamera returns a camera client for the given snapshot or stream URL.
func NewCamera(url, username, password string) *Camera {
	return &Camera{
		url:      url,
		username: username,
		password: password,
		// No overall timeout: MJPEG endpoints stream forever. Reads are
		// bounded by the caller's context instead.
		httpClient: &http.Client{},
	}
}

// Grab fetches one JPEG frame.
func (c *Camera) Grab(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("camera: new request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("camera: http %d", resp.StatusCode)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "multipart/x-mixed-replace") {
		return readMJPEGFrame(resp.Body)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, fmt.Errorf("camera: read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("camera: empty snapshot")
	}
	return data, nil
}

// readMJPEGFrame buffers the stream until one complete JPEG (SOI through EOI)
// has been seen and returns it.
func readMJPEGFrame(r io.Reader) ([]byte, error) {
	buf := make([]byte, 0, 64<<10)
	chunk := make([]byte, 32<<10)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if frame, ok := cutJPEGFrame(buf); ok {
				return frame, nil
			}
			if len(buf) > maxFrameBytes {
				return nil, errors.New("camera: no frame boundary within buffer limit")
			}
		}
		if err != nil {
			return nil, fmt.Errorf("camera: stream ended without a complete frame: %w", err)
		}
	}
}

// cutJPEGFrame extracts the first complete JPEG from buf.
func cutJPEGFrame(buf []byte) ([]byte, bool) {
	start := indexOf(buf, jpegSOI)
	if start < 0 {
		return nil, false
	}
	end := indexOf(buf[start+2:], jpegEOI)
	if end < 0 {
		return nil, false
	}
	end += start + 2 + 2
	frame := make([]byte, end-start)
	copy(frame, buf[start:end])
	return frame, true
}

func indexOf(buf, marker []byte) int {
	for i := 0; i+len(marker) <= len(buf); i++ {
		if buf[i] == marker[0] && buf[i+1] == marker[1] {
			return i
		}
	}
	return -1
}

// retryAfter is how long the poller waits after a failed grab or upload
// before trying again, shorter than the regular interval so a blip does not
// cost a full cycle.
const retryAfter = 3 * time.Second
