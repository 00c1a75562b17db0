package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/campaignkit/socialscrape/internal/logging"
	"github.com/campaignkit/socialscrape/internal/models"
)

const (
	sessionTimeout = 15 * time.Second

	// Public web-client bearer token; the private timeline API requires it
	// alongside the operator's session cookie.
	webBearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs=1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

	userLookupURL   = "https://x.com/i/api/graphql/sLVLhk0bGj3MVFEKTdax1w/UserByScreenName"
	userTimelineURL = "https://x.com/i/api/graphql/V7H0Ap3_Hh2FyS75OCDO3Q/UserTweets"
)

// SessionChannel calls the upstream's private timeline API with an
// operator-supplied authenticated session. A stale session cannot be fixed
// by waiting, so nothing here retries.
type SessionChannel struct {
	client  *http.Client
	logger  *logging.Logger
	metrics *Metrics
}

func NewSessionChannel(logger *logging.Logger, metrics *Metrics) *SessionChannel {
	return &SessionChannel{
		client:  newHTTPClient(sessionTimeout),
		logger:  logger,
		metrics: metrics,
	}
}

func (c *SessionChannel) Name() string { return "session" }

func (c *SessionChannel) Available(creds Credentials) bool { return creds.HasSession() }

func (c *SessionChannel) Fetch(ctx context.Context, req models.ScrapeRequest, creds Credentials) ([]models.Post, string, error) {
	userID, err := c.resolveUserID(ctx, req.Handle, creds)
	if err != nil {
		return nil, "", err
	}

	payload, err := c.fetchTimeline(ctx, userID, req.MaxItems, creds)
	if err != nil {
		return nil, "", err
	}

	posts := extractTimelinePosts(payload, req.Handle)
	if len(posts) == 0 {
		return nil, "", fmt.Errorf("timeline contained no extractable posts")
	}

	c.logger.Debug("Session timeline fetched", logging.WithFields(map[string]interface{}{
		"handle": req.Handle,
		"count":  len(posts),
	}))

	return Filter(posts, req), "session", nil
}

func (c *SessionChannel) resolveUserID(ctx context.Context, handle string, creds Credentials) (string, error) {
	variables, _ := json.Marshal(map[string]interface{}{"screen_name": handle})
	reqURL := userLookupURL + "?variables=" + url.QueryEscape(string(variables))

	payload, err := c.authorizedGet(ctx, reqURL, creds)
	if err != nil {
		return "", fmt.Errorf("user lookup failed: %w", err)
	}

	userID, ok := digString(payload, "data", "user", "result", "rest_id")
	if !ok || userID == "" {
		return "", fmt.Errorf("user lookup response missing account id for %q", handle)
	}
	return userID, nil
}

func (c *SessionChannel) fetchTimeline(ctx context.Context, userID string, count int, creds Credentials) (map[string]interface{}, error) {
	variables, _ := json.Marshal(map[string]interface{}{
		"userId":                 userID,
		"count":                  count,
		"includePromotedContent": false,
	})
	reqURL := userTimelineURL + "?variables=" + url.QueryEscape(string(variables))

	payload, err := c.authorizedGet(ctx, reqURL, creds)
	if err != nil {
		return nil, fmt.Errorf("timeline request failed: %w", err)
	}
	return payload, nil
}

func (c *SessionChannel) authorizedGet(ctx context.Context, reqURL string, creds Credentials) (map[string]interface{}, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	cookie := creds.SessionCookie
	if !strings.Contains(cookie, "=") {
		cookie = "auth_token=" + cookie
	}
	if creds.CSRFToken != "" {
		cookie += "; ct0=" + creds.CSRFToken
		httpReq.Header.Set("x-csrf-token", creds.CSRFToken)
	}
	httpReq.Header.Set("Authorization", "Bearer "+webBearerToken)
	httpReq.Header.Set("Cookie", cookie)
	httpReq.Header.Set("User-Agent", desktopUserAgent)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return payload, nil
}

// extractTimelinePosts walks the deeply nested instruction -> entries ->
// item tree. Every entry is shape-checked before extraction; malformed
// entries are skipped, never aborted on.
func extractTimelinePosts(payload map[string]interface{}, handle string) []models.Post {
	instructions, ok := digSlice(payload, "data", "user", "result", "timeline_v2", "timeline", "instructions")
	if !ok {
		return nil
	}

	var posts []models.Post
	for _, rawInstruction := range instructions {
		instruction, ok := rawInstruction.(map[string]interface{})
		if !ok {
			continue
		}
		if kind, _ := digString(instruction, "type"); !strings.Contains(kind, "AddEntries") {
			continue
		}
		entries, ok := digSlice(instruction, "entries")
		if !ok {
			continue
		}

		for _, rawEntry := range entries {
			entry, ok := rawEntry.(map[string]interface{})
			if !ok {
				continue
			}
			entryID, _ := digString(entry, "entryId")
			if !strings.HasPrefix(entryID, "tweet-") {
				continue
			}
			result, ok := digMap(entry, "content", "itemContent", "tweet_results", "result")
			if !ok {
				continue
			}
			if post, ok := timelineResultToPost(result, handle); ok {
				posts = append(posts, post)
			}
		}
	}
	return posts
}

func timelineResultToPost(result map[string]interface{}, handle string) (models.Post, bool) {
	legacy, ok := digMap(result, "legacy")
	if !ok {
		// Sensitive posts get wrapped in an extra visibility layer.
		result, ok = digMap(result, "tweet")
		if !ok {
			return models.Post{}, false
		}
		legacy, ok = digMap(result, "legacy")
		if !ok {
			return models.Post{}, false
		}
	}

	id, _ := digString(result, "rest_id")
	if id == "" {
		id, _ = digString(legacy, "id_str")
	}
	if id == "" {
		return models.Post{}, false
	}

	authorHandle, _ := digString(result, "core", "user_results", "result", "legacy", "screen_name")
	if authorHandle == "" {
		authorHandle = handle
	}
	authorName, _ := digString(result, "core", "user_results", "result", "legacy", "name")

	text, _ := digString(legacy, "full_text")

	post := models.Post{
		ID:           id,
		URL:          postURL(authorHandle, id),
		Content:      cleanContent(text),
		AuthorHandle: authorHandle,
		AuthorName:   authorName,
		Metrics: models.Metrics{
			Likes:    digCount(legacy, "favorite_count"),
			Retweets: digCount(legacy, "retweet_count"),
			Replies:  digCount(legacy, "reply_count"),
			Quotes:   digCount(legacy, "quote_count"),
		},
	}

	createdAt, _ := digString(legacy, "created_at")
	post.PostedAt, post.PostedAtGuessed = parsePostTime(createdAt, time.RubyDate)

	if views, ok := digString(result, "views", "count"); ok {
		post.Metrics.Views = parseMetricCount(views)
	}

	if _, ok := digMap(legacy, "retweeted_status_result"); ok || strings.HasPrefix(text, "RT @") {
		post.IsRetweet = true
	}
	if quoted, ok := digString(legacy, "quoted_status_permalink", "expanded"); ok && quoted != "" {
		post.IsQuote = true
		post.QuotedURL = quoted
	}

	if media, ok := digSlice(legacy, "extended_entities", "media"); ok {
		for _, rawItem := range media {
			item, ok := rawItem.(map[string]interface{})
			if !ok {
				continue
			}
			if u, ok := digString(item, "media_url_https"); ok && u != "" {
				post.MediaURLs = append(post.MediaURLs, u)
			}
		}
	}

	return post, true
}

// dig walks nested map[string]interface{} values one key at a time,
// reporting failure instead of panicking on unexpected shapes.
func dig(value interface{}, path ...string) (interface{}, bool) {
	current := value
	for _, key := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func digString(value interface{}, path ...string) (string, bool) {
	v, ok := dig(value, path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func digMap(value interface{}, path ...string) (map[string]interface{}, bool) {
	v, ok := dig(value, path...)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

func digSlice(value interface{}, path ...string) ([]interface{}, bool) {
	v, ok := dig(value, path...)
	if !ok {
		return nil, false
	}
	s, ok := v.([]interface{})
	return s, ok
}

// digCount reads a numeric field decoded from JSON, clamping to zero.
func digCount(value interface{}, path ...string) int {
	v, ok := dig(value, path...)
	if !ok {
		return 0
	}
	f, ok := v.(float64)
	if !ok || f < 0 {
		return 0
	}
	return int(f)
}
