// Package transcriber calls a Whisper-compatible transcription service
// over HTTP.
package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/common"
	"github.com/ternarybob/threadforge/internal/interfaces"
)

// Service implements the Transcriber collaborator.
type Service struct {
	endpoint   string
	httpClient *http.Client
	logger     arbor.ILogger
}

// transcribeResponse is the service's JSON response shape.
type transcribeResponse struct {
	Text            string   `json:"text"`
	WordCount       int      `json:"word_count"`
	DurationSeconds float64  `json:"duration_seconds"`
	Summary         string   `json:"summary"`
	Topics          []string `json:"topics"`
}

// NewService creates a new transcriber client
func NewService(config *common.TranscriberConfig, logger arbor.ILogger) (*Service, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("transcriber endpoint is required")
	}
	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid transcriber timeout: %w", err)
	}

	return &Service{
		endpoint:   config.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Transcribe uploads the artifact and returns the transcription result.
func (s *Service) Transcribe(ctx context.Context, artifactRef string) (*interfaces.Transcript, error) {
	file, err := os.Open(artifactRef)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(artifactRef))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/transcribe", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("transcription service returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var result transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode transcription response: %w", err)
	}
	if result.Text == "" {
		return nil, fmt.Errorf("transcription produced no text")
	}

	s.logger.Debug().
		Str("artifact", filepath.Base(artifactRef)).
		Int("word_count", result.WordCount).
		Dur("elapsed", time.Since(start)).
		Msg("Transcription complete")

	return &interfaces.Transcript{
		Text:            result.Text,
		WordCount:       result.WordCount,
		DurationSeconds: result.DurationSeconds,
		Summary:         result.Summary,
		Topics:          result.Topics,
	}, nil
}

var _ interfaces.Transcriber = (*Service)(nil)
