package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/campaignkit/socialscrape/internal/logging"
	"github.com/campaignkit/socialscrape/internal/models"
	"github.com/campaignkit/socialscrape/internal/ratelimit"
)

const mirrorTimeout = 15 * time.Second

// defaultMirrorHosts lists independently operated read-only mirrors. Any
// single instance can be down, rate limited, or running a different mirror
// software version at any time; the list is long on purpose.
var defaultMirrorHosts = []string{
	"nitter.net",
	"nitter.privacydev.net",
	"nitter.poast.org",
	"nitter.1d4.us",
	"nitter.kavin.rocks",
	"nitter.unixfox.eu",
	"nitter.moomoo.me",
	"nitter.fdn.fr",
	"nitter.pussthecat.org",
	"nitter.namazso.eu",
}

// extractionPattern is one known way mirror software renders a profile
// timeline. Sub-selector slices are candidate lists tried in order; the
// first one that matches wins for that field.
type extractionPattern struct {
	Name          string
	Container     string
	Link          []string
	Content       []string
	Date          []string
	FullName      []string
	Stat          []string
	RetweetMarker []string
	QuoteMarker   []string
	QuoteLink     []string
	Media         []string
}

// timelinePatterns covers the markup variants seen across mirror versions,
// newest first.
var timelinePatterns = []extractionPattern{
	{
		Name:          "timeline-item",
		Container:     ".timeline > .timeline-item",
		Link:          []string{"a.tweet-link"},
		Content:       []string{".tweet-content", ".tweet-content.media-body"},
		Date:          []string{"span.tweet-date a", ".tweet-date a"},
		FullName:      []string{"a.fullname", ".fullname"},
		Stat:          []string{".tweet-stats .tweet-stat", ".tweet-stat"},
		RetweetMarker: []string{".retweet-header"},
		QuoteMarker:   []string{".quote"},
		QuoteLink:     []string{".quote a.quote-link", ".quote-link"},
		Media:         []string{".attachments img", ".attachments video"},
	},
	{
		Name:          "tweet-card",
		Container:     ".tweet-card",
		Link:          []string{"a.tweet-link", "a.status-link"},
		Content:       []string{".tweet-content", ".content"},
		Date:          []string{".tweet-date a", ".date a"},
		FullName:      []string{".fullname"},
		Stat:          []string{".tweet-stat"},
		RetweetMarker: []string{".retweet-header", ".rt-header"},
		QuoteMarker:   []string{".quote"},
		QuoteLink:     []string{".quote a"},
		Media:         []string{".attachments img"},
	},
	{
		Name:          "status-el",
		Container:     "article.status-el, div.status-el",
		Link:          []string{"a.status__relative-time", "a.u-url"},
		Content:       []string{".status__content", ".status-content"},
		Date:          []string{"a.status__relative-time"},
		FullName:      []string{".display-name", ".status__display-name"},
		Stat:          []string{".status__action-bar .detailed-status__link"},
		RetweetMarker: []string{".status__prepend"},
		QuoteMarker:   []string{".status__quote"},
		QuoteLink:     []string{".status__quote a"},
		Media:         []string{".media-gallery img"},
	},
}

// Timestamp layouts observed across mirror versions.
var mirrorDateLayouts = []string{
	"Jan 2, 2006 · 3:04 PM UTC",
	"Jan 2, 2006 · 15:04 UTC",
	"2/1/2006, 15:04:05",
	time.RFC1123,
}

var mirrorQuotePattern = regexp.MustCompile(`^/([^/]+)/status(?:es)?/(\d+)`)

// MirrorChannel scrapes profile-timeline HTML from alternate mirror hosts,
// first host with at least one parseable post wins.
type MirrorChannel struct {
	hosts   []string
	client  *http.Client
	limiter *ratelimit.Limiter
	logger  *logging.Logger
	metrics *Metrics
}

func NewMirrorChannel(limiter *ratelimit.Limiter, logger *logging.Logger, metrics *Metrics) *MirrorChannel {
	return &MirrorChannel{
		hosts:   defaultMirrorHosts,
		client:  newHTTPClient(mirrorTimeout),
		limiter: limiter,
		logger:  logger,
		metrics: metrics,
	}
}

func (c *MirrorChannel) Name() string { return "mirror" }

func (c *MirrorChannel) Available(creds Credentials) bool { return true }

func (c *MirrorChannel) Fetch(ctx context.Context, req models.ScrapeRequest, creds Credentials) ([]models.Post, string, error) {
	var reasons []string
	for _, host := range c.hosts {
		if err := ctx.Err(); err != nil {
			return nil, "", fmt.Errorf("mirror channel canceled: %w", err)
		}
		if err := c.limiter.WaitContext(ctx, host); err != nil {
			return nil, "", fmt.Errorf("mirror channel canceled: %w", err)
		}

		posts, err := c.fetchHost(ctx, host, req.Handle)
		if err != nil {
			c.logger.Debug("Mirror host failed", logging.WithFields(map[string]interface{}{
				"host":  host,
				"error": err.Error(),
			}))
			reasons = append(reasons, fmt.Sprintf("%s: %v", host, err))
			continue
		}

		return Filter(posts, req), "mirror:" + host, nil
	}

	return nil, "", fmt.Errorf("all mirror hosts failed (%s)", strings.Join(reasons, "; "))
}

func (c *MirrorChannel) fetchHost(ctx context.Context, host, handle string) ([]models.Post, error) {
	pageURL := fmt.Sprintf("https://%s/%s", host, handle)

	httpReq, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
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

	if reason := softFailureReason(body); reason != "" {
		return nil, fmt.Errorf("%s", reason)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	for _, pattern := range timelinePatterns {
		posts := c.extractWithPattern(doc, pattern, host, handle)
		if len(posts) > 0 {
			c.logger.Debug("Mirror pattern matched", logging.WithFields(map[string]interface{}{
				"host":    host,
				"pattern": pattern.Name,
				"count":   len(posts),
			}))
			return posts, nil
		}
	}

	return nil, fmt.Errorf("no extraction pattern matched the page markup")
}

// softFailureReason recognizes mirror pages that return 200 but carry no
// usable timeline: explicit rate-limit or block notices, or a short generic
// error page.
func softFailureReason(body []byte) string {
	lower := strings.ToLower(string(body))
	if strings.Contains(lower, "rate limited") {
		return "mirror reports it is rate limited"
	}
	if strings.Contains(lower, "blocked") {
		return "mirror reports requests are blocked"
	}
	if len(body) < 1024 && strings.Contains(lower, "error") {
		return "mirror returned a generic error page"
	}
	return ""
}

func (c *MirrorChannel) extractWithPattern(doc *goquery.Document, pattern extractionPattern, host, handle string) []models.Post {
	var posts []models.Post

	doc.Find(pattern.Container).Each(func(i int, s *goquery.Selection) {
		link := firstAttr(s, pattern.Link, "href")
		id := extractStatusID(link)
		if id == "" {
			// An item without an id cannot be referenced downstream.
			return
		}

		content := cleanContent(firstText(s, pattern.Content))

		post := models.Post{
			ID:           id,
			URL:          postURL(handle, id),
			Content:      content,
			AuthorHandle: handle,
			AuthorName:   strings.TrimSpace(firstText(s, pattern.FullName)),
		}

		post.PostedAt, post.PostedAtGuessed = parseMirrorDate(firstAttrOrText(s, pattern.Date, "title"))

		post.Metrics = extractStats(s, pattern.Stat)

		if selectionExists(s, pattern.RetweetMarker) || strings.HasPrefix(content, "RT @") {
			post.IsRetweet = true
		}
		if selectionExists(s, pattern.QuoteMarker) {
			post.IsQuote = true
			post.QuotedURL = quotedStatusURL(firstAttr(s, pattern.QuoteLink, "href"))
		}

		for _, mediaSel := range pattern.Media {
			s.Find(mediaSel).Each(func(_ int, m *goquery.Selection) {
				src, ok := m.Attr("src")
				if !ok || src == "" {
					src, _ = m.Attr("poster")
				}
				if src == "" {
					return
				}
				if strings.HasPrefix(src, "/") {
					src = "https://" + host + src
				}
				post.MediaURLs = append(post.MediaURLs, src)
			})
		}

		posts = append(posts, post)
	})

	return posts
}

// extractStats reads the engagement counters. Each stat element carries an
// icon span naming the metric and a human-formatted count.
func extractStats(s *goquery.Selection, candidates []string) models.Metrics {
	var metrics models.Metrics
	for _, sel := range candidates {
		stats := s.Find(sel)
		if stats.Length() == 0 {
			continue
		}
		stats.Each(func(_ int, stat *goquery.Selection) {
			iconClass, _ := stat.Find(`span[class*="icon-"]`).Attr("class")
			count := parseMetricCount(stat.Text())
			switch {
			case strings.Contains(iconClass, "comment"):
				metrics.Replies = count
			case strings.Contains(iconClass, "retweet"):
				metrics.Retweets = count
			case strings.Contains(iconClass, "quote"):
				metrics.Quotes = count
			case strings.Contains(iconClass, "heart"):
				metrics.Likes = count
			case strings.Contains(iconClass, "play"):
				metrics.Views = count
			}
		})
		break
	}
	return metrics
}

func parseMirrorDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now(), true
	}
	for _, layout := range mirrorDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, false
		}
	}
	return time.Now(), true
}

// quotedStatusURL converts a mirror-relative quote link to the canonical
// upstream URL, or returns it untouched when it is already absolute.
func quotedStatusURL(href string) string {
	if href == "" {
		return ""
	}
	if matches := mirrorQuotePattern.FindStringSubmatch(href); len(matches) > 2 {
		return postURL(matches[1], matches[2])
	}
	return href
}

func firstText(s *goquery.Selection, candidates []string) string {
	for _, sel := range candidates {
		found := s.Find(sel)
		if found.Length() > 0 {
			return found.First().Text()
		}
	}
	return ""
}

func firstAttr(s *goquery.Selection, candidates []string, attr string) string {
	for _, sel := range candidates {
		if v, ok := s.Find(sel).First().Attr(attr); ok && v != "" {
			return v
		}
	}
	return ""
}

// firstAttrOrText prefers the attribute (mirror dates live in the title
// attribute) but falls back to the element text.
func firstAttrOrText(s *goquery.Selection, candidates []string, attr string) string {
	if v := firstAttr(s, candidates, attr); v != "" {
		return v
	}
	return firstText(s, candidates)
}

func selectionExists(s *goquery.Selection, candidates []string) bool {
	for _, sel := range candidates {
		if s.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
