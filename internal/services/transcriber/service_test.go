package transcriber

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/common"
)

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recording.mp3")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewService(&common.TranscriberConfig{
		Endpoint: server.URL,
		Timeout:  "5s",
	}, arbor.NewLogger())
	require.NoError(t, err)
	return svc
}

func TestNewServiceValidatesConfig(t *testing.T) {
	_, err := NewService(&common.TranscriberConfig{Timeout: "5s"}, arbor.NewLogger())
	assert.Error(t, err, "endpoint is required")

	_, err = NewService(&common.TranscriberConfig{Endpoint: "http://localhost:9000", Timeout: "not-a-duration"}, arbor.NewLogger())
	assert.Error(t, err)
}

func TestTranscribeUploadsArtifact(t *testing.T) {
	artifact := writeArtifact(t, "fake audio bytes")

	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transcribe", r.URL.Path)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "recording.mp3", header.Filename)
		body, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "fake audio bytes", string(body))

		w.Write([]byte(`{
			"text": "the quick brown fox",
			"word_count": 4,
			"duration_seconds": 12.5,
			"summary": "a fox",
			"topics": ["animals"]
		}`))
	}))

	transcript, err := svc.Transcribe(context.Background(), artifact)
	require.NoError(t, err)
	assert.Equal(t, "the quick brown fox", transcript.Text)
	assert.Equal(t, 4, transcript.WordCount)
	assert.Equal(t, 12.5, transcript.DurationSeconds)
	assert.Equal(t, []string{"animals"}, transcript.Topics)
}

func TestTranscribeMissingArtifact(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for a missing artifact")
	}))

	_, err := svc.Transcribe(context.Background(), filepath.Join(t.TempDir(), "absent.mp3"))
	assert.Error(t, err)
}

func TestTranscribeServiceFailure(t *testing.T) {
	artifact := writeArtifact(t, "bytes")

	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))

	_, err := svc.Transcribe(context.Background(), artifact)
	assert.ErrorContains(t, err, "HTTP 503")
}

func TestTranscribeRejectsEmptyText(t *testing.T) {
	artifact := writeArtifact(t, "bytes")

	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text": "", "word_count": 0}`))
	}))

	_, err := svc.Transcribe(context.Background(), artifact)
	assert.ErrorContains(t, err, "no text")
}
