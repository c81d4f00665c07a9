// Package files provides local filesystem storage for transient source
// artifacts.
package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/interfaces"
)

// Storage deletes artifacts under a dedicated artifact directory.
type Storage struct {
	dir    string
	logger arbor.ILogger
}

// NewStorage creates artifact file storage rooted at dir.
func NewStorage(dir string, logger arbor.ILogger) (*Storage, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &Storage{dir: abs, logger: logger}, nil
}

// Dir returns the absolute artifact directory.
func (s *Storage) Dir() string {
	return s.dir
}

// Delete removes one artifact. Paths outside the artifact directory are
// rejected; a missing file is not an error.
func (s *Storage) Delete(ctx context.Context, artifactRef string) error {
	abs, err := filepath.Abs(artifactRef)
	if err != nil {
		return fmt.Errorf("invalid artifact path: %w", err)
	}
	if !strings.HasPrefix(abs, s.dir+string(os.PathSeparator)) {
		return fmt.Errorf("artifact path outside artifact directory: %s", artifactRef)
	}

	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

var _ interfaces.FileStorage = (*Storage)(nil)
