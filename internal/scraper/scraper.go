package scraper

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/campaignkit/socialscrape/internal/cache"
	"github.com/campaignkit/socialscrape/internal/logging"
	"github.com/campaignkit/socialscrape/internal/models"
	"github.com/campaignkit/socialscrape/internal/ratelimit"
)

const (
	defaultBatchSize  = 2
	defaultBatchDelay = 2 * time.Second
	defaultOutcomeTTL = 5 * time.Minute
)

// Scraper sequences the acquisition channels, aggregates their diagnostics,
// and exposes the single and batch scrape APIs. Credential state lives here
// behind a mutex: operators set it once, concurrent scrapes read consistent
// snapshots.
type Scraper struct {
	mu    sync.RWMutex
	creds Credentials

	channels []Channel
	enricher *Enricher
	avatar   *AvatarResolver
	cache    cache.Cache
	logger   *logging.Logger
	metrics  *Metrics

	sleep      func(time.Duration)
	batchSize  int
	batchDelay time.Duration
	outcomeTTL time.Duration
}

// New wires the four channels in priority order: API providers, direct
// session, HTML mirrors, RSS feeds.
func New(initial Credentials, limiter *ratelimit.Limiter, c cache.Cache, logger *logging.Logger) *Scraper {
	metrics := NewMetrics()

	return &Scraper{
		creds: initial,
		channels: []Channel{
			NewAPIChannel(logger, metrics),
			NewSessionChannel(logger, metrics),
			NewMirrorChannel(limiter, logger, metrics),
			NewFeedChannel(limiter, logger, metrics),
		},
		enricher:   NewEnricher(logger, metrics),
		avatar:     NewAvatarResolver(c, logger, metrics),
		cache:      c,
		logger:     logger,
		metrics:    metrics,
		sleep:      time.Sleep,
		batchSize:  defaultBatchSize,
		batchDelay: defaultBatchDelay,
		outcomeTTL: defaultOutcomeTTL,
	}
}

// Metrics exposes the engine's Prometheus registry for the /metrics
// endpoint.
func (s *Scraper) Metrics() *Metrics { return s.metrics }

// SetCredential configures the API provider credential.
func (s *Scraper) SetCredential(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.APIKey = strings.TrimSpace(key)
}

// ClearCredential removes the API provider credential.
func (s *Scraper) ClearCredential() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.APIKey = ""
}

// HasCredential reports whether an API credential is configured.
func (s *Scraper) HasCredential() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.HasAPIKey()
}

// SetSession configures the authenticated session cookie and optional CSRF
// token for the direct-session channel.
func (s *Scraper) SetSession(cookie, csrfToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.SessionCookie = strings.TrimSpace(cookie)
	s.creds.CSRFToken = strings.TrimSpace(csrfToken)
}

// ClearSession removes the session configuration.
func (s *Scraper) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.SessionCookie = ""
	s.creds.CSRFToken = ""
}

// HasSession reports whether a session cookie is configured.
func (s *Scraper) HasSession() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.HasSession()
}

func (s *Scraper) credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Scrape retrieves an account's recent posts through the first channel that
// works. It never returns an error; total failure comes back as a
// structured outcome whose Error aggregates every channel's reason.
func (s *Scraper) Scrape(ctx context.Context, req models.ScrapeRequest) models.Outcome {
	start := time.Now()
	defer func() {
		s.metrics.ScrapeDuration.Observe(time.Since(start).Seconds())
	}()

	req.Handle = strings.TrimPrefix(strings.TrimSpace(req.Handle), "@")
	if req.Handle == "" {
		s.metrics.ScrapesTotal.WithLabelValues("invalid").Inc()
		return models.Outcome{Success: false, Error: "handle is required"}
	}
	if req.MaxItems <= 0 {
		req.MaxItems = 50
	}

	cacheKey := outcomeCacheKey(req)
	if !req.Fresh {
		if outcome, ok := s.cachedOutcome(cacheKey); ok {
			s.metrics.CacheHits.Inc()
			return outcome
		}
	}

	creds := s.credentials()

	var diagnostics []string
	for _, channel := range s.channels {
		if !channel.Available(creds) {
			continue
		}

		posts, used, err := channel.Fetch(ctx, req, creds)
		if err != nil {
			s.metrics.ChannelFailures.WithLabelValues(channel.Name()).Inc()
			diagnostics = append(diagnostics, fmt.Sprintf("%s: %v", channel.Name(), err))
			continue
		}
		if len(posts) == 0 {
			diagnostics = append(diagnostics, fmt.Sprintf("%s: no posts matched the requested filters", channel.Name()))
			continue
		}

		if strings.HasPrefix(used, "mirror:") || strings.HasPrefix(used, "rss:") {
			posts = s.enrichPosts(ctx, posts)
		}

		s.metrics.ScrapesTotal.WithLabelValues("success").Inc()
		s.metrics.PostsScraped.Add(float64(len(posts)))
		s.logger.Info("Scrape succeeded", logging.WithFields(map[string]interface{}{
			"handle":  req.Handle,
			"channel": used,
			"posts":   len(posts),
		}))

		outcome := models.Outcome{
			Success:     true,
			Posts:       posts,
			ChannelUsed: used,
			Error:       strings.Join(diagnostics, "; "),
		}
		s.storeOutcome(cacheKey, outcome)
		return outcome
	}

	s.metrics.ScrapesTotal.WithLabelValues("failure").Inc()

	message := "all channels failed"
	if len(diagnostics) > 0 {
		message = strings.Join(diagnostics, "; ")
	}
	if hint := configurationHint(creds, diagnostics); hint != "" {
		message += "; " + hint
	}

	s.logger.Warn("Scrape failed on every channel", logging.WithFields(map[string]interface{}{
		"handle": req.Handle,
		"error":  message,
	}))

	return models.Outcome{Success: false, Error: message}
}

// configurationHint turns the failure pattern into actionable operator
// advice appended to the aggregated diagnostic.
func configurationHint(creds Credentials, diagnostics []string) string {
	if !creds.HasAPIKey() && !creds.HasSession() {
		return "hint: no API credential or session cookie is configured; configure one to enable the authenticated channels"
	}
	if creds.HasAPIKey() {
		for _, d := range diagnostics {
			if strings.HasPrefix(d, "api:") {
				return "hint: verify the API credential is valid and pace requests to avoid rate limits"
			}
		}
	}
	return ""
}

// enrichPosts backfills metrics for posts that came from a metrics-poor
// channel. Enrichment failures leave the originals untouched.
func (s *Scraper) enrichPosts(ctx context.Context, posts []models.Post) []models.Post {
	ids := make([]string, 0, maxEnrichPosts)
	for _, post := range posts {
		if len(ids) == maxEnrichPosts {
			break
		}
		ids = append(ids, post.ID)
	}

	enriched := s.enricher.Enrich(ctx, ids)
	if len(enriched) == 0 {
		return posts
	}

	for i := range posts {
		record, ok := enriched[posts[i].ID]
		if !ok {
			continue
		}
		if record.Likes != nil {
			posts[i].Metrics.Likes = clampCount(*record.Likes)
		}
		if record.Replies != nil {
			posts[i].Metrics.Replies = clampCount(*record.Replies)
		}
		if posts[i].AuthorName == "" && record.AuthorName != "" {
			posts[i].AuthorName = record.AuthorName
		}
	}
	return posts
}

// ScrapeMany scrapes several handles, running groups of batchSize
// concurrently with a fixed delay between groups to bound the outbound
// request rate.
func (s *Scraper) ScrapeMany(ctx context.Context, handles []string, keywords []string, maxPerHandle int) map[string]models.Outcome {
	batchID := uuid.NewString()
	results := make(map[string]models.Outcome, len(handles))
	var resultsMu sync.Mutex

	s.logger.Info("Batch scrape starting", logging.WithFields(map[string]interface{}{
		"batch":   batchID,
		"handles": len(handles),
	}))

	for start := 0; start < len(handles); start += s.batchSize {
		if start > 0 {
			s.sleep(s.batchDelay)
		}

		end := start + s.batchSize
		if end > len(handles) {
			end = len(handles)
		}

		var g errgroup.Group
		for _, handle := range handles[start:end] {
			handle := handle
			g.Go(func() error {
				req := models.NewRequest(handle)
				req.Keywords = keywords
				if maxPerHandle > 0 {
					req.MaxItems = maxPerHandle
				}

				outcome := s.Scrape(ctx, req)

				resultsMu.Lock()
				results[handle] = outcome
				resultsMu.Unlock()
				return nil
			})
		}
		g.Wait()
	}

	s.logger.Info("Batch scrape finished", logging.WithField("batch", batchID))
	return results
}

// ResolveAvatar finds a profile image URL for handle; an empty URL means
// every lookup step failed.
func (s *Scraper) ResolveAvatar(ctx context.Context, handle string) models.AvatarResult {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return models.AvatarResult{}
	}
	return s.avatar.Resolve(ctx, handle, s.credentials())
}

func (s *Scraper) cachedOutcome(key string) (models.Outcome, bool) {
	if s.cache == nil {
		return models.Outcome{}, false
	}
	cached, ok := s.cache.Get(key)
	if !ok {
		return models.Outcome{}, false
	}

	if outcome, ok := cached.(models.Outcome); ok {
		return outcome, true
	}

	// Redis round-trips values through JSON; re-decode into the typed form.
	raw, err := json.Marshal(cached)
	if err != nil {
		return models.Outcome{}, false
	}
	var outcome models.Outcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return models.Outcome{}, false
	}
	if !outcome.Success {
		return models.Outcome{}, false
	}
	return outcome, true
}

func (s *Scraper) storeOutcome(key string, outcome models.Outcome) {
	if s.cache == nil || !outcome.Success {
		return
	}
	s.cache.SetWithTTL(key, outcome, s.outcomeTTL)
}

// outcomeCacheKey derives a stable key from every request field that
// changes the result set.
func outcomeCacheKey(req models.ScrapeRequest) string {
	raw := fmt.Sprintf("%s|%s|%d|%t|%t|%d",
		strings.ToLower(req.Handle),
		strings.ToLower(strings.Join(req.Keywords, ",")),
		req.MaxItems,
		req.IncludeReplies,
		req.IncludeRetweets,
		req.SinceDate.Unix(),
	)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("outcome:%x", sum[:8])
}
