package scraper

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the acquisition engine.
type Metrics struct {
	Registry         *prometheus.Registry
	ScrapesTotal     *prometheus.CounterVec
	ChannelFailures  *prometheus.CounterVec
	ProviderFailures *prometheus.CounterVec
	RateLimitHits    *prometheus.CounterVec
	PostsScraped     prometheus.Counter
	CacheHits        prometheus.Counter
	ScrapeDuration   prometheus.Histogram
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	scrapes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialscrape_scrapes_total",
			Help: "Total scrape calls by outcome.",
		},
		[]string{"result"},
	)
	channelFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialscrape_channel_failures_total",
			Help: "Channel attempts that produced no posts, by channel.",
		},
		[]string{"channel"},
	)
	providerFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialscrape_provider_failures_total",
			Help: "API provider attempts that failed, by provider.",
		},
		[]string{"provider"},
	)
	rateLimitHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialscrape_rate_limit_hits_total",
			Help: "HTTP 429 responses received, by provider.",
		},
		[]string{"provider"},
	)
	postsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "socialscrape_posts_total",
			Help: "Total canonical posts returned to callers.",
		},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "socialscrape_outcome_cache_hits_total",
			Help: "Scrapes served from the outcome cache.",
		},
	)
	scrapeDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "socialscrape_scrape_duration_seconds",
			Help:    "End-to-end scrape latency including channel fallback.",
			Buckets: prometheus.DefBuckets,
		},
	)

	registry.MustRegister(scrapes, channelFailures, providerFailures, rateLimitHits, postsScraped, cacheHits, scrapeDuration)

	return &Metrics{
		Registry:         registry,
		ScrapesTotal:     scrapes,
		ChannelFailures:  channelFailures,
		ProviderFailures: providerFailures,
		RateLimitHits:    rateLimitHits,
		PostsScraped:     postsScraped,
		CacheHits:        cacheHits,
		ScrapeDuration:   scrapeDuration,
	}
}
