// Package speech turns section content into spoken audio. LaTeX markup is
// first rewritten into plain spoken English by the language model, then the
// result is synthesized through the ElevenLabs API.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kokuban/internal/config"
)

const defaultBaseURL = "https://api.elevenlabs.io"

const spokenFormPrompt = `Rewrite the user's lecture note so it reads naturally when spoken aloud.
Convert all LaTeX into spoken English: "$\frac{1}{2}$" becomes "one half", "$x^2$" becomes "x squared".
Strip the $ delimiters and every remaining markup character.
Return only the rewritten text.`

// completer is the slice of the model client the speech service needs.
type completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Service synthesizes spoken audio for note content.
type Service struct {
	model      completer
	apiKey     string
	voiceID    string
	modelID    string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithBaseURL overrides the ElevenLabs endpoint.
func WithBaseURL(baseURL string) Option {
	return func(s *Service) {
		if baseURL != "" {
			s.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewService wires a speech service from configuration.
func NewService(model completer, cfg config.SpeechConfig, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		model:      model,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		voiceID:    cfg.VoiceID,
		modelID:    cfg.ModelID,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize returns MP3 audio for the given note content. An empty voiceID
// selects the configured default voice. A failed spoken-form rewrite falls
// back to the raw text; a failed synthesis call is an error.
func (s *Service) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("speech: text required")
	}
	if s.apiKey == "" {
		return nil, errors.New("speech: api key required")
	}
	voice := s.voiceID
	if v := strings.TrimSpace(voiceID); v != "" {
		voice = v
	}

	spoken, err := s.model.Complete(ctx, spokenFormPrompt, text)
	if err != nil {
		s.logger.Warn("spoken-form rewrite failed, using raw text", zap.Error(err))
		spoken = text
	}

	payload, err := json.Marshal(map[string]string{
		"text":     spoken,
		"model_id": s.modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("speech: encode body: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", s.baseURL, voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("speech: new request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("speech: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("speech: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("speech: empty audio response")
	}
	return audio, nil
}
