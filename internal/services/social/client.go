// Package social implements the social platform collaborator against the
// X API v2. Failures are returned as typed *interfaces.SocialError values
// mapped from HTTP status codes, never classified from message text.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/threadforge/internal/common"
	"github.com/ternarybob/threadforge/internal/interfaces"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultTimeout applies to each platform request.
const DefaultTimeout = 30 * time.Second

// Client is an X API v2 client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewClient creates a new platform client. The access token is carried by
// an oauth2 transport; requestsPerSecond paces calls to stay polite to
// the upstream independent of the publish window.
func NewClient(config *common.SocialConfig, logger arbor.ILogger) (*Client, error) {
	if config.AccessToken == "" {
		return nil, fmt.Errorf("social access token is required (set THREADFORGE_SOCIAL_TOKEN or social.access_token)")
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.AccessToken})
	httpClient := oauth2.NewClient(context.Background(), source)
	httpClient.Timeout = DefaultTimeout

	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	return &Client{
		baseURL:    config.BaseURL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		logger:     logger,
	}, nil
}

// tweetRequest is the POST /tweets payload.
type tweetRequest struct {
	Text  string `json:"text"`
	Reply *struct {
		InReplyToTweetID string `json:"in_reply_to_tweet_id"`
	} `json:"reply,omitempty"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// PostMessage publishes one message, optionally as a reply.
func (c *Client) PostMessage(ctx context.Context, text string, replyToID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &interfaces.SocialError{Kind: interfaces.SocialErrUnknown, Message: err.Error()}
	}

	payload := tweetRequest{Text: text}
	if replyToID != "" {
		payload.Reply = &struct {
			InReplyToTweetID string `json:"in_reply_to_tweet_id"`
		}{InReplyToTweetID: replyToID}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &interfaces.SocialError{Kind: interfaces.SocialErrUnknown, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tweets", bytes.NewReader(body))
	if err != nil {
		return "", &interfaces.SocialError{Kind: interfaces.SocialErrUnknown, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &interfaces.SocialError{Kind: interfaces.SocialErrUnknown, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp)
	}

	var result tweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &interfaces.SocialError{Kind: interfaces.SocialErrUnknown, Message: "failed to decode response: " + err.Error()}
	}
	if result.Data.ID == "" {
		return "", &interfaces.SocialError{Kind: interfaces.SocialErrUnknown, Message: "response carried no message id"}
	}

	return result.Data.ID, nil
}

// metricsResponse is the GET /tweets lookup payload with public metrics.
type metricsResponse struct {
	Data []struct {
		PublicMetrics struct {
			ImpressionCount int `json:"impression_count"`
			LikeCount       int `json:"like_count"`
			RetweetCount    int `json:"retweet_count"`
			ReplyCount      int `json:"reply_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

// FetchMetrics returns engagement counts summed across the given remote ids.
func (c *Client) FetchMetrics(ctx context.Context, remoteIDs []string) (*interfaces.PostMetrics, error) {
	if len(remoteIDs) == 0 {
		return &interfaces.PostMetrics{}, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &interfaces.SocialError{Kind: interfaces.SocialErrUnknown, Message: err.Error()}
	}

	url := fmt.Sprintf("%s/tweets?ids=%s&tweet.fields=public_metrics", c.baseURL, strings.Join(remoteIDs, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &interfaces.SocialError{Kind: interfaces.SocialErrUnknown, Message: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &interfaces.SocialError{Kind: interfaces.SocialErrUnknown, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var result metricsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &interfaces.SocialError{Kind: interfaces.SocialErrUnknown, Message: "failed to decode metrics: " + err.Error()}
	}

	metrics := &interfaces.PostMetrics{}
	for _, item := range result.Data {
		metrics.Impressions += item.PublicMetrics.ImpressionCount
		metrics.Likes += item.PublicMetrics.LikeCount
		metrics.Shares += item.PublicMetrics.RetweetCount
		metrics.Replies += item.PublicMetrics.ReplyCount
	}
	return metrics, nil
}

// statusError maps an HTTP failure to a typed social error.
func (c *Client) statusError(resp *http.Response) *interfaces.SocialError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	message := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body))

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		retryAfter := time.Minute
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &interfaces.SocialError{Kind: interfaces.SocialErrRateLimited, Message: message, RetryAfter: retryAfter}
	case http.StatusUnauthorized:
		return &interfaces.SocialError{Kind: interfaces.SocialErrAuthFailure, Message: message}
	case http.StatusForbidden:
		return &interfaces.SocialError{Kind: interfaces.SocialErrAccessDenied, Message: message}
	default:
		return &interfaces.SocialError{Kind: interfaces.SocialErrUnknown, Message: message}
	}
}

var _ interfaces.SocialClient = (*Client)(nil)
