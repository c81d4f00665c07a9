package interfaces

import (
	"context"
	"fmt"
	"time"
)

// SocialErrorKind tags platform failures so callers never have to
// classify upstream error strings.
type SocialErrorKind string

const (
	SocialErrRateLimited  SocialErrorKind = "rate_limited"
	SocialErrAccessDenied SocialErrorKind = "access_denied"
	SocialErrAuthFailure  SocialErrorKind = "auth_failure"
	SocialErrUnknown      SocialErrorKind = "unknown"
)

// SocialError is a typed error returned by the social platform client.
type SocialError struct {
	Kind       SocialErrorKind
	Message    string
	RetryAfter time.Duration // populated for rate_limited when known
}

func (e *SocialError) Error() string {
	return fmt.Sprintf("social platform error (%s): %s", e.Kind, e.Message)
}

// PostMetrics holds engagement counts for a set of remote messages.
type PostMetrics struct {
	Impressions int `json:"impressions"`
	Likes       int `json:"likes"`
	Shares      int `json:"shares"`
	Replies     int `json:"replies"`
}

// SocialClient is the social platform collaborator.
// All failures are returned as *SocialError.
type SocialClient interface {
	// PostMessage publishes one message. replyToID is empty for the first
	// message of a thread and the preceding remote id for every other.
	PostMessage(ctx context.Context, text string, replyToID string) (string, error)

	// FetchMetrics returns engagement counts summed across the given remote ids.
	FetchMetrics(ctx context.Context, remoteIDs []string) (*PostMetrics, error)
}
