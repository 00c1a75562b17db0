package scraper

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/campaignkit/socialscrape/internal/logging"
	"github.com/campaignkit/socialscrape/internal/models"
	"github.com/campaignkit/socialscrape/internal/ratelimit"
)

const feedTimeout = 15 * time.Second

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// FeedChannel reads the mirror hosts' RSS endpoints. RSS carries no
// engagement metrics, so posts come back with zero counts; the orchestrator
// backfills them best-effort through enrichment.
type FeedChannel struct {
	hosts   []string
	parser  *gofeed.Parser
	client  *http.Client
	limiter *ratelimit.Limiter
	logger  *logging.Logger
	metrics *Metrics
}

func NewFeedChannel(limiter *ratelimit.Limiter, logger *logging.Logger, metrics *Metrics) *FeedChannel {
	return &FeedChannel{
		hosts:   defaultMirrorHosts,
		parser:  gofeed.NewParser(),
		client:  newHTTPClient(feedTimeout),
		limiter: limiter,
		logger:  logger,
		metrics: metrics,
	}
}

func (c *FeedChannel) Name() string { return "rss" }

func (c *FeedChannel) Available(creds Credentials) bool { return true }

func (c *FeedChannel) Fetch(ctx context.Context, req models.ScrapeRequest, creds Credentials) ([]models.Post, string, error) {
	var reasons []string
	for _, host := range c.hosts {
		if err := ctx.Err(); err != nil {
			return nil, "", fmt.Errorf("rss channel canceled: %w", err)
		}
		if err := c.limiter.WaitContext(ctx, host); err != nil {
			return nil, "", fmt.Errorf("rss channel canceled: %w", err)
		}

		posts, err := c.fetchHost(ctx, host, req.Handle)
		if err != nil {
			c.logger.Debug("RSS host failed", logging.WithFields(map[string]interface{}{
				"host":  host,
				"error": err.Error(),
			}))
			reasons = append(reasons, fmt.Sprintf("%s: %v", host, err))
			continue
		}

		return Filter(posts, req), "rss:" + host, nil
	}

	return nil, "", fmt.Errorf("all RSS hosts failed (%s)", strings.Join(reasons, "; "))
}

func (c *FeedChannel) fetchHost(ctx context.Context, host, handle string) ([]models.Post, error) {
	feedURL := fmt.Sprintf("https://%s/%s/rss", host, handle)

	httpReq, err := http.NewRequestWithContext(ctx, "GET", feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", desktopUserAgent)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	feed, err := c.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	authorName := feedAuthorName(feed.Title)

	posts := make([]models.Post, 0, len(feed.Items))
	for _, item := range feed.Items {
		id := extractStatusID(item.GUID)
		if id == "" {
			id = extractStatusID(item.Link)
		}
		if id == "" {
			continue
		}

		content := item.Title
		if content == "" {
			content = item.Description
		}
		content = cleanContent(html.UnescapeString(htmlTagPattern.ReplaceAllString(content, "")))

		post := models.Post{
			ID:           id,
			URL:          postURL(handle, id),
			Content:      content,
			AuthorHandle: handle,
			AuthorName:   authorName,
		}

		if item.PublishedParsed != nil {
			post.PostedAt = *item.PublishedParsed
		} else {
			post.PostedAt = time.Now()
			post.PostedAtGuessed = true
		}

		creator := feedItemCreator(item)
		if creator != "" && !strings.EqualFold(creator, handle) {
			post.IsRetweet = true
		}
		if strings.HasPrefix(item.Title, "RT by") || strings.HasPrefix(content, "RT @") {
			post.IsRetweet = true
		}

		posts = append(posts, post)
	}

	if len(posts) == 0 {
		return nil, fmt.Errorf("feed contained no items")
	}
	return posts, nil
}

// feedAuthorName extracts the display name from a "Name / @handle" feed
// title.
func feedAuthorName(title string) string {
	if idx := strings.Index(title, " / @"); idx > 0 {
		return strings.TrimSpace(title[:idx])
	}
	return strings.TrimSpace(title)
}

func feedItemCreator(item *gofeed.Item) string {
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		return strings.TrimPrefix(strings.TrimSpace(item.DublinCoreExt.Creator[0]), "@")
	}
	if item.Author != nil {
		return strings.TrimPrefix(strings.TrimSpace(item.Author.Name), "@")
	}
	return ""
}
