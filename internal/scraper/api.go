package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/campaignkit/socialscrape/internal/logging"
	"github.com/campaignkit/socialscrape/internal/models"
)

const (
	apiTimeout     = 20 * time.Second
	rateLimitWait  = 6 * time.Second
	maxRateRetries = 2
)

var waitHintPattern = regexp.MustCompile(`(?i)wait\s+(\d+)\s+seconds?`)

// APIChannel walks an ordered registry of third-party API providers,
// skipping the ones incompatible with the configured credential's format.
// Rate limiting (429) is retried on the same provider with backoff; every
// other failure falls through to the next provider.
type APIChannel struct {
	providers []ProviderDescriptor
	client    *http.Client
	logger    *logging.Logger
	metrics   *Metrics
	sleep     func(time.Duration)
}

func NewAPIChannel(logger *logging.Logger, metrics *Metrics) *APIChannel {
	return &APIChannel{
		providers: defaultProviders(),
		client:    newHTTPClient(apiTimeout),
		logger:    logger,
		metrics:   metrics,
		sleep:     time.Sleep,
	}
}

func (c *APIChannel) Name() string { return "api" }

func (c *APIChannel) Available(creds Credentials) bool { return creds.HasAPIKey() }

func (c *APIChannel) Fetch(ctx context.Context, req models.ScrapeRequest, creds Credentials) ([]models.Post, string, error) {
	keyKind := classifyAPIKey(creds.APIKey)

	var reasons []string
	attempted := 0
	for _, provider := range c.providers {
		if provider.KeyKind != keyKind {
			continue
		}
		attempted++

		if err := ctx.Err(); err != nil {
			return nil, "", fmt.Errorf("api channel canceled: %w", err)
		}

		posts, err := c.tryProvider(ctx, provider, req, creds)
		if err != nil {
			c.metrics.ProviderFailures.WithLabelValues(provider.Name).Inc()
			c.logger.Debug("API provider failed", logging.WithFields(map[string]interface{}{
				"provider": provider.Name,
				"error":    err.Error(),
			}))
			reasons = append(reasons, fmt.Sprintf("%s: %v", provider.Name, err))
			continue
		}

		return Filter(posts, req), "api:" + provider.Name, nil
	}

	if attempted == 0 {
		return nil, "", fmt.Errorf("no provider accepts the configured credential format")
	}
	return nil, "", fmt.Errorf("all providers failed (%s)", strings.Join(reasons, "; "))
}

func (c *APIChannel) tryProvider(ctx context.Context, provider ProviderDescriptor, req models.ScrapeRequest, creds Credentials) ([]models.Post, error) {
	for attempt := 0; ; attempt++ {
		status, body, err := c.issue(ctx, provider, req, creds)
		if err != nil {
			return nil, err
		}

		if status == http.StatusTooManyRequests {
			if attempt >= maxRateRetries {
				return nil, fmt.Errorf("rate limited after %d retries", maxRateRetries)
			}
			wait := suggestedWait(body)
			c.metrics.RateLimitHits.WithLabelValues(provider.Name).Inc()
			c.logger.Info("Provider rate limited, backing off", logging.WithFields(map[string]interface{}{
				"provider": provider.Name,
				"wait":     wait.String(),
			}))
			c.sleep(wait + time.Second)
			continue
		}

		if status < 200 || status > 299 {
			return nil, fmt.Errorf("returned status %d", status)
		}

		posts, err := parsePayload(provider.Parser, body, req.Handle)
		if err != nil {
			return nil, err
		}
		if len(posts) == 0 {
			return nil, fmt.Errorf("returned no posts")
		}
		return posts, nil
	}
}

func (c *APIChannel) issue(ctx context.Context, provider ProviderDescriptor, req models.ScrapeRequest, creds Credentials) (int, []byte, error) {
	var bodyReader io.Reader
	if provider.BuildBody != nil {
		bodyReader = bytes.NewReader(provider.BuildBody(req.Handle, req.MaxItems))
	}

	httpReq, err := http.NewRequestWithContext(ctx, provider.Method, provider.BuildURL(req.Handle, req.MaxItems), bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range provider.BuildHeaders(creds.APIKey) {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// suggestedWait parses a "wait N seconds" hint out of a 429 body, defaulting
// when the provider gives none.
func suggestedWait(body []byte) time.Duration {
	matches := waitHintPattern.FindSubmatch(body)
	if len(matches) > 1 {
		if n, err := strconv.Atoi(string(matches[1])); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return rateLimitWait
}
