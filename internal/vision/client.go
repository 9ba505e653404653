// Package vision wraps the OpenRouter chat completion API for the two model
// calls the pipeline makes: chalkboard extraction (vision model, text out) and
// diagram illustration (image model, image out), plus a plain text completion
// used by the speech layer.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Vision responses routinely take minutes for a full chalkboard, so the
// default timeout is generous.
const defaultHTTPTimeout = 180 * time.Second

// Config captures the runtime settings required to talk to the model API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	ImageModel     string
	TimeoutSeconds int
}

// Client issues chat completion requests against an OpenRouter-compatible
// endpoint. Extraction calls are never retried internally: the capture
// collaborator's next scheduled poll is the retry.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a vision client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			ImageModel:     strings.TrimSpace(cfg.ImageModel),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = "https://openrouter.ai/api/v1/chat/completions"
	}
	return client
}

// Image is one inline-encoded photo attached to a model request.
type Image struct {
	Bytes []byte
	MIME  string
}

// DataURL renders the image as a base64 data URL for the chat payload.
func (img Image) DataURL() string {
	return "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Bytes)
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("vision request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Extract sends the prompt plus one or two chalkboard photos to the vision
// model and returns its raw text response. Callers strip fencing, repair and
// parse; this method makes no attempt to interpret the payload.
func (c *Client) Extract(ctx context.Context, prompt string, images []Image) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("vision extract: prompt required")
	}
	if len(images) == 0 {
		return "", errors.New("vision extract: at least one image required")
	}
	if c.cfg.APIKey == "" {
		return "", errors.New("vision extract: api key required")
	}

	parts := make([]contentPart, 0, len(images)+1)
	parts = append(parts, contentPart{Type: "text", Text: prompt})
	for _, img := range images {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: img.DataURL()},
		})
	}
	payload := chatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: parts}},
	}
	completion, err := c.sendChatRequest(ctx, payload)
	if err != nil {
		return "", err
	}
	content := completionText(completion)
	if content == "" {
		return "", errors.New("vision extract: empty content in response")
	}
	return content, nil
}

// GenerateImage asks the image model to render an illustration of one diagram,
// using the original chalkboard photo as the reference. A response without an
// image is a recoverable miss: nil bytes, nil error. The returned extension
// has no leading dot.
func (c *Client) GenerateImage(ctx context.Context, prompt string, reference Image) ([]byte, string, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, "", errors.New("vision generate: prompt required")
	}
	if c.cfg.APIKey == "" {
		return nil, "", errors.New("vision generate: api key required")
	}

	payload := chatCompletionRequest{
		Model: c.cfg.ImageModel,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: reference.DataURL()}},
			},
		}},
		Modalities: []string{"image", "text"},
	}
	completion, err := c.sendChatRequest(ctx, payload)
	if err != nil {
		return nil, "", err
	}
	for _, choice := range completion.Choices {
		for _, img := range choice.Message.Images {
			data, ext, err := decodeDataURL(img.ImageURL.URL)
			if err != nil {
				return nil, "", fmt.Errorf("vision generate: %w", err)
			}
			return data, ext, nil
		}
	}
	return nil, "", nil
}

// Complete issues a plain text chat completion. The speech layer uses it to
// rewrite LaTeX content into spoken form.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", errors.New("vision complete: user prompt required")
	}
	if c.cfg.APIKey == "" {
		return "", errors.New("vision complete: api key required")
	}

	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})
	completion, err := c.sendChatRequest(ctx, chatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	content := completionText(completion)
	if content == "" {
		return "", errors.New("vision complete: empty content in response")
	}
	return content, nil
}

type chatCompletionRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Modalities []string      `json:"modalities,omitempty"`
}

// chatMessage carries either a plain string or a multi-part content array.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Images  []struct {
				Type     string   `json:"type"`
				ImageURL imageURL `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) sendChatRequest(ctx context.Context, payload chatCompletionRequest) (chatCompletionResponse, error) {
	var completion chatCompletionResponse
	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, fmt.Errorf("vision request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return completion, fmt.Errorf("vision request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion, fmt.Errorf("vision request: http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return completion, fmt.Errorf("vision request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return completion, &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, fmt.Errorf("vision request: decode response: %w", err)
	}
	if completion.Error != nil {
		return completion, fmt.Errorf("vision request: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	return completion, nil
}

func completionText(completion chatCompletionResponse) string {
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content
		}
	}
	return ""
}

// decodeDataURL splits a "data:image/png;base64,..." URL into raw bytes and a
// file extension derived from the media type.
func decodeDataURL(dataURL string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data url: %.40s", dataURL)
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("malformed data url: missing payload")
	}
	mediaType := strings.TrimSuffix(meta, ";base64")
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("decode data url payload: %w", err)
	}
	return data, extensionForMIME(mediaType), nil
}

func extensionForMIME(mediaType string) string {
	switch mediaType {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}

// StripCodeFence removes a surrounding markdown code fence from a model
// response, tolerating a "json" language tag. Text without a fence comes back
// trimmed but otherwise unchanged.
func StripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := trimmed[3:]
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
		body = strings.TrimLeft(body, " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}
