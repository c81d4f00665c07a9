// Package analytics computes and caches aggregate engagement metrics
// for an owner's published posts.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/common"
	"github.com/ternarybob/threadforge/internal/interfaces"
	"github.com/ternarybob/threadforge/internal/models"
)

// Service serves cached aggregates with a fixed TTL.
//
// Cache read and write failures degrade to a recompute or a skipped
// store; they never surface to the caller.
type Service struct {
	posts   interfaces.PostStorage
	cache   interfaces.AnalyticsStorage
	social  interfaces.SocialClient
	clock   common.Clock
	logger  arbor.ILogger

	ttl         time.Duration
	concurrency int
	topPosts    int
}

// NewService creates a new analytics service
func NewService(
	posts interfaces.PostStorage,
	cache interfaces.AnalyticsStorage,
	social interfaces.SocialClient,
	config *common.AnalyticsConfig,
	clock common.Clock,
	logger arbor.ILogger,
) (*Service, error) {
	ttl, err := time.ParseDuration(config.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid cache TTL: %w", err)
	}

	topPosts := config.TopPosts
	if topPosts <= 0 {
		topPosts = 5
	}

	return &Service{
		posts:       posts,
		cache:       cache,
		social:      social,
		clock:       clock,
		logger:      logger,
		ttl:         ttl,
		concurrency: config.Concurrency,
		topPosts:    topPosts,
	}, nil
}

// GetAnalytics returns the owner's engagement aggregate, using the cached
// entry when fresh unless forceRefresh is set.
func (s *Service) GetAnalytics(ctx context.Context, ownerID string, forceRefresh bool) (*models.Aggregate, error) {
	now := s.clock.Now()

	if !forceRefresh {
		entry, err := s.cache.GetEntry(ctx, ownerID)
		if err != nil && err != interfaces.ErrNotFound {
			s.logger.Warn().Err(err).Str("owner_id", ownerID).Msg("Analytics cache read failed, recomputing")
		}
		if entry != nil && entry.Fresh(now) {
			return &entry.Aggregate, nil
		}
	}

	aggregate, err := s.compute(ctx, ownerID, now)
	if err != nil {
		return nil, err
	}

	entry := &models.AnalyticsEntry{
		OwnerID:   ownerID,
		Aggregate: *aggregate,
		CachedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.cache.SaveEntry(ctx, entry); err != nil {
		// A failed store never fails the read.
		s.logger.Warn().Err(err).Str("owner_id", ownerID).Msg("Failed to store analytics cache entry")
	}

	return aggregate, nil
}

// ClearCache deletes the owner's cache entry unconditionally.
func (s *Service) ClearCache(ctx context.Context, ownerID string) error {
	return s.cache.DeleteEntry(ctx, ownerID)
}

// compute loads the owner's posts, fans out metric fetches with bounded
// parallelism and builds the aggregate. A failed fetch contributes zero
// for that post instead of aborting the whole computation.
func (s *Service) compute(ctx context.Context, ownerID string, now time.Time) (*models.Aggregate, error) {
	posts, err := s.posts.ListPostsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load posts: %w", err)
	}

	engagements := make([]models.PostEngagement, len(posts))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for i, post := range posts {
		wg.Add(1)
		go func(i int, post *models.Post) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			engagement := models.PostEngagement{
				PostID:    post.ID,
				Permalink: post.Permalink,
				PostedAt:  post.PostedAt,
			}
			metrics, err := s.social.FetchMetrics(ctx, post.RemoteIDs)
			if err != nil {
				s.logger.Debug().
					Err(err).
					Str("post_id", post.ID).
					Msg("Metrics fetch failed, counting post as zero")
			} else {
				engagement.Totals = models.EngagementTotals{
					Impressions: metrics.Impressions,
					Likes:       metrics.Likes,
					Shares:      metrics.Shares,
					Replies:     metrics.Replies,
				}
			}
			engagements[i] = engagement
		}(i, post)
	}
	wg.Wait()

	aggregate := &models.Aggregate{
		OwnerID:   ownerID,
		PostCount: len(posts),
	}

	var current, previous models.EngagementTotals
	weekAgo := now.Add(-7 * 24 * time.Hour)
	twoWeeksAgo := now.Add(-14 * 24 * time.Hour)

	for _, e := range engagements {
		aggregate.Totals.Impressions += e.Totals.Impressions
		aggregate.Totals.Likes += e.Totals.Likes
		aggregate.Totals.Shares += e.Totals.Shares
		aggregate.Totals.Replies += e.Totals.Replies

		switch {
		case !e.PostedAt.Before(weekAgo) && e.PostedAt.Before(now):
			addTotals(&current, e.Totals)
		case !e.PostedAt.Before(twoWeeksAgo) && e.PostedAt.Before(weekAgo):
			addTotals(&previous, e.Totals)
		}
	}

	aggregate.Growth = models.EngagementGrowth{
		Impressions: GrowthPercent(previous.Impressions, current.Impressions),
		Likes:       GrowthPercent(previous.Likes, current.Likes),
		Shares:      GrowthPercent(previous.Shares, current.Shares),
		Replies:     GrowthPercent(previous.Replies, current.Replies),
	}

	sort.Slice(engagements, func(i, j int) bool {
		return engagements[i].Totals.Total() > engagements[j].Totals.Total()
	})
	if len(engagements) > s.topPosts {
		engagements = engagements[:s.topPosts]
	}
	aggregate.TopPosts = engagements

	return aggregate, nil
}

func addTotals(dst *models.EngagementTotals, src models.EngagementTotals) {
	dst.Impressions += src.Impressions
	dst.Likes += src.Likes
	dst.Shares += src.Shares
	dst.Replies += src.Replies
}

// GrowthPercent computes week-over-week growth: 0 when both periods are
// zero, 100 when only the previous period is zero, otherwise the rounded
// percentage change.
func GrowthPercent(previous, current int) int {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	return int(math.Round(float64(current-previous) / float64(previous) * 100))
}
