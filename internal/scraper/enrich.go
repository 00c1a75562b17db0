package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/campaignkit/socialscrape/internal/logging"
)

const (
	enrichTimeout  = 10 * time.Second
	maxEnrichPosts = 10
	embedResultURL = "https://cdn.syndication.twimg.com/tweet-result"
)

// enrichedPost is the partial record the public embed endpoint returns.
// Metric fields are pointers so "present" and "zero" stay distinguishable
// during the merge.
type enrichedPost struct {
	Text         string
	AuthorName   string
	AuthorHandle string
	Likes        *int
	Replies      *int
	PostedAt     time.Time
}

type embedPayload struct {
	Text string `json:"text"`
	User struct {
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
	} `json:"user"`
	FavoriteCount     *int   `json:"favorite_count"`
	ConversationCount *int   `json:"conversation_count"`
	CreatedAt         string `json:"created_at"`
}

// Enricher backfills engagement metrics through the public single-item
// embed endpoint. Every failure is silent: enrichment never degrades a
// scrape that already succeeded.
type Enricher struct {
	client  *http.Client
	logger  *logging.Logger
	metrics *Metrics
}

func NewEnricher(logger *logging.Logger, metrics *Metrics) *Enricher {
	return &Enricher{
		client:  newHTTPClient(enrichTimeout),
		logger:  logger,
		metrics: metrics,
	}
}

// Enrich looks up the given post ids (capped at 10) and returns whatever
// partial records came back, keyed by id.
func (e *Enricher) Enrich(ctx context.Context, ids []string) map[string]enrichedPost {
	if len(ids) > maxEnrichPosts {
		ids = ids[:maxEnrichPosts]
	}

	enriched := make(map[string]enrichedPost, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		record, err := e.lookup(ctx, id)
		if err != nil {
			e.logger.Debug("Enrichment lookup failed", logging.WithFields(map[string]interface{}{
				"id":    id,
				"error": err.Error(),
			}))
			continue
		}
		enriched[id] = record
	}
	return enriched
}

func (e *Enricher) lookup(ctx context.Context, id string) (enrichedPost, error) {
	reqURL := fmt.Sprintf("%s?id=%s&token=%s", embedResultURL, id, embedToken(id))

	httpReq, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return enrichedPost{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return enrichedPost{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return enrichedPost{}, fmt.Errorf("returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return enrichedPost{}, fmt.Errorf("failed to read response: %w", err)
	}

	var payload embedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return enrichedPost{}, fmt.Errorf("failed to decode response: %w", err)
	}

	record := enrichedPost{
		Text:         payload.Text,
		AuthorName:   payload.User.Name,
		AuthorHandle: payload.User.ScreenName,
		Likes:        payload.FavoriteCount,
		Replies:      payload.ConversationCount,
	}
	record.PostedAt, _ = parsePostTime(payload.CreatedAt, time.RFC3339)
	return record, nil
}

// embedToken derives the access token the embed endpoint expects from the
// post id: (id / 1e15 * pi) rendered in base 36 with zeros and the radix
// point stripped.
func embedToken(id string) string {
	n, err := strconv.ParseFloat(id, 64)
	if err != nil {
		return "a"
	}

	v := n / 1e15 * math.Pi
	intPart := int64(v)
	frac := v - float64(intPart)

	token := strconv.FormatInt(intPart, 36)
	for i := 0; i < 10 && frac > 0; i++ {
		frac *= 36
		digit := int64(frac)
		token += strconv.FormatInt(digit, 36)
		frac -= float64(digit)
	}

	token = strings.ReplaceAll(token, "0", "")
	token = strings.ReplaceAll(token, ".", "")
	if token == "" {
		return "a"
	}
	return token
}
