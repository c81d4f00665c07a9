package models

import "time"

// EngagementTotals sums raw engagement counts across posts.
type EngagementTotals struct {
	Impressions int `json:"impressions"`
	Likes       int `json:"likes"`
	Shares      int `json:"shares"`
	Replies     int `json:"replies"`
}

// Total returns the combined engagement count.
func (t EngagementTotals) Total() int {
	return t.Impressions + t.Likes + t.Shares + t.Replies
}

// EngagementGrowth holds week-over-week growth percentages per metric.
type EngagementGrowth struct {
	Impressions int `json:"impressions"`
	Likes       int `json:"likes"`
	Shares      int `json:"shares"`
	Replies     int `json:"replies"`
}

// PostEngagement pairs a published post with its fetched metrics.
type PostEngagement struct {
	PostID    string           `json:"post_id"`
	Permalink string           `json:"permalink"`
	PostedAt  time.Time        `json:"posted_at"`
	Totals    EngagementTotals `json:"totals"`
}

// Aggregate is the computed engagement summary for one owner.
type Aggregate struct {
	OwnerID   string           `json:"owner_id"`
	PostCount int              `json:"post_count"`
	Totals    EngagementTotals `json:"totals"`
	Growth    EngagementGrowth `json:"growth"`
	TopPosts  []PostEngagement `json:"top_posts"` // top 5 by total engagement
}

// AnalyticsEntry is a TTL-bounded cache record for one owner's aggregate.
// Recomputed on miss, expiry, or forced refresh; overwritten in place.
type AnalyticsEntry struct {
	OwnerID   string    `json:"owner_id"`
	Aggregate Aggregate `json:"aggregate"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Fresh reports whether the entry is still valid at the given time.
func (e *AnalyticsEntry) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}
