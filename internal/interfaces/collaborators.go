package interfaces

import (
	"context"

	"github.com/ternarybob/threadforge/internal/models"
)

// Artifact is the result of resolving a content source to a local file.
type Artifact struct {
	Ref             string  `json:"ref"` // local path of the transient artifact
	DurationSeconds float64 `json:"duration_seconds"`
}

// Fetcher resolves an upload reference or remote URL to a local artifact.
type Fetcher interface {
	// Fetch fails when the source is oversized, of the wrong type, or
	// exceeds the duration limit.
	Fetch(ctx context.Context, sourceRef string, durationLimitSeconds int) (*Artifact, error)
}

// Transcript is the output of transcribing an artifact.
type Transcript struct {
	Text            string   `json:"text"`
	WordCount       int      `json:"word_count"`
	DurationSeconds float64  `json:"duration_seconds"`
	Summary         string   `json:"summary"`
	Topics          []string `json:"topics"`
}

// Transcriber converts a fetched artifact into text.
type Transcriber interface {
	Transcribe(ctx context.Context, artifactRef string) (*Transcript, error)
}

// Generator produces thread candidates from transcript text or a topic.
type Generator interface {
	Generate(ctx context.Context, input string, instructions string) ([]models.Thread, error)
}

// FeatureGate answers tier-based feature entitlement questions.
type FeatureGate interface {
	HasFeature(ctx context.Context, ownerID string, feature string) (bool, error)
}

// FileStorage deletes transient source artifacts.
type FileStorage interface {
	Delete(ctx context.Context, artifactRef string) error
}
