// Package publisher posts generated threads to the social platform under
// a sliding-window rate limit.
//
// Messages are posted serially: the first standalone, each subsequent one
// as a reply to the previous message's remote id, with a fixed delay
// between them. The first failure aborts the remainder with no rollback
// of already-posted messages. A Post record is created, and the rate
// window charged, only after the full thread succeeds.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/common"
	"github.com/ternarybob/threadforge/internal/interfaces"
	"github.com/ternarybob/threadforge/internal/models"
	"github.com/ternarybob/threadforge/internal/services/features"
)

// RateLimitedError rejects a publish attempt that would exceed the window.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("publish rate limit reached, retry in %s", e.RetryAfter.Round(time.Second))
}

// ErrPublishNotEntitled is returned when the owner's tier lacks publishing.
var ErrPublishNotEntitled = errors.New("publishing requires a tier with the publish feature")

// Service publishes threads and records successful publications.
type Service struct {
	jobs    interfaces.JobStorage
	posts   interfaces.PostStorage
	social  interfaces.SocialClient
	gate    interfaces.FeatureGate
	window  *rateWindow
	logger  arbor.ILogger
	clock   common.Clock

	messageDelay     time.Duration
	maxMessages      int
	maxMessageLength int
}

// NewService creates a new publisher service
func NewService(
	jobs interfaces.JobStorage,
	posts interfaces.PostStorage,
	social interfaces.SocialClient,
	gate interfaces.FeatureGate,
	config *common.PublisherConfig,
	clock common.Clock,
	logger arbor.ILogger,
) (*Service, error) {
	window, err := time.ParseDuration(config.WindowDuration)
	if err != nil {
		return nil, fmt.Errorf("invalid window duration: %w", err)
	}
	delay, err := time.ParseDuration(config.MessageDelay)
	if err != nil {
		return nil, fmt.Errorf("invalid message delay: %w", err)
	}

	return &Service{
		jobs:             jobs,
		posts:            posts,
		social:           social,
		gate:             gate,
		window:           newRateWindow(window, config.MaxActions, clock),
		clock:            clock,
		logger:           logger,
		messageDelay:     delay,
		maxMessages:      config.MaxMessages,
		maxMessageLength: config.MaxMessageLength,
	}, nil
}

// PublishThread publishes one thread of a completed job.
//
// Validation failures, entitlement failures and rate rejections occur
// before the first message is posted, so they never leave partial state.
func (s *Service) PublishThread(ctx context.Context, ownerID, jobID string, threadIndex int) (*models.Post, error) {
	entitled, err := s.gate.HasFeature(ctx, ownerID, features.FeaturePublish)
	if err != nil {
		return nil, fmt.Errorf("failed to check publish entitlement: %w", err)
	}
	if !entitled {
		return nil, ErrPublishNotEntitled
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, interfaces.ErrForbidden
	}
	if job.Status != models.JobStatusCompleted || job.Result == nil {
		return nil, fmt.Errorf("job %s has no publishable result (%s)", jobID, job.Status)
	}
	if threadIndex < 0 || threadIndex >= len(job.Result.Threads) {
		return nil, fmt.Errorf("thread index %d out of range", threadIndex)
	}

	messages := job.Result.Threads[threadIndex].Messages
	if err := s.validateMessages(messages); err != nil {
		return nil, err
	}

	if !s.window.CanAdmit(len(messages)) {
		return nil, &RateLimitedError{RetryAfter: s.window.RetryAfter()}
	}

	remoteIDs, err := s.postSerially(ctx, messages)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		ID:          common.NewID(),
		OwnerID:     ownerID,
		JobID:       jobID,
		ThreadIndex: threadIndex,
		RemoteIDs:   remoteIDs,
		Permalink:   permalink(remoteIDs[0]),
		PostedAt:    s.clock.Now(),
	}
	if err := s.posts.SavePost(ctx, post); err != nil {
		return nil, fmt.Errorf("thread published but post record failed: %w", err)
	}

	s.window.Record(len(messages))

	s.logger.Info().
		Str("owner_id", ownerID).
		Str("job_id", jobID).
		Int("messages", len(messages)).
		Str("permalink", post.Permalink).
		Msg("Thread published")
	return post, nil
}

// validateMessages enforces message count and length caps up front.
func (s *Service) validateMessages(messages []string) error {
	if len(messages) == 0 {
		return fmt.Errorf("thread has no messages")
	}
	if len(messages) > s.maxMessages {
		return fmt.Errorf("thread has %d messages, maximum is %d", len(messages), s.maxMessages)
	}
	for i, msg := range messages {
		if length := len([]rune(msg)); length > s.maxMessageLength {
			return fmt.Errorf("message %d is %d characters, maximum is %d", i+1, length, s.maxMessageLength)
		}
	}
	return nil
}

// postSerially publishes the messages in order, chaining replies. The
// first failure aborts immediately; already-posted messages are not
// rolled back.
func (s *Service) postSerially(ctx context.Context, messages []string) ([]string, error) {
	remoteIDs := make([]string, 0, len(messages))
	replyTo := ""

	for i, msg := range messages {
		if i > 0 {
			time.Sleep(s.messageDelay)
		}

		remoteID, err := s.social.PostMessage(ctx, msg, replyTo)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Int("position", i+1).
				Int("posted", len(remoteIDs)).
				Msg("Thread publication aborted")
			return nil, fmt.Errorf("failed to post message %d of %d: %w", i+1, len(messages), err)
		}

		remoteIDs = append(remoteIDs, remoteID)
		replyTo = remoteID
	}
	return remoteIDs, nil
}

func permalink(firstRemoteID string) string {
	return fmt.Sprintf("https://x.com/i/status/%s", firstRemoteID)
}
