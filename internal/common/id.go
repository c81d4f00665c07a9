package common

import "github.com/google/uuid"

// NewID returns a new random identifier for jobs, posts, and tasks.
func NewID() string {
	return uuid.New().String()
}
