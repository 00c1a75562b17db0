package models

import "time"

// Post is the canonical representation of one upstream post, regardless of
// which channel produced it. IDs are source-native and unique within a
// source; metric counts are never negative.
type Post struct {
	ID              string    `json:"id"`
	URL             string    `json:"url"`
	Content         string    `json:"content"`
	AuthorHandle    string    `json:"authorHandle"`
	AuthorName      string    `json:"authorName,omitempty"`
	PostedAt        time.Time `json:"postedAt"`
	PostedAtGuessed bool      `json:"postedAtGuessed,omitempty"`
	Metrics         Metrics   `json:"metrics"`
	MediaURLs       []string  `json:"mediaUrls,omitempty"`
	IsRetweet       bool      `json:"isRetweet"`
	IsQuote         bool      `json:"isQuote"`
	QuotedURL       string    `json:"quotedUrl,omitempty"`
}

// Metrics holds engagement counts for a post.
type Metrics struct {
	Likes    int `json:"likes"`
	Retweets int `json:"retweets"`
	Replies  int `json:"replies"`
	Quotes   int `json:"quotes"`
	Views    int `json:"views"`
}

// ScrapeRequest describes one account-timeline fetch. Use NewRequest to get
// the documented defaults; a zero SinceDate means no lower bound.
type ScrapeRequest struct {
	Handle          string    `json:"handle"`
	Keywords        []string  `json:"keywords,omitempty"`
	MaxItems        int       `json:"maxItems"`
	IncludeReplies  bool      `json:"includeReplies"`
	IncludeRetweets bool      `json:"includeRetweets"`
	SinceDate       time.Time `json:"sinceDate,omitempty"`
	// Fresh bypasses the outcome cache and always hits the upstreams.
	Fresh bool `json:"fresh,omitempty"`
}

// NewRequest returns a ScrapeRequest with defaults applied: 50 items,
// replies excluded, retweets included.
func NewRequest(handle string) ScrapeRequest {
	return ScrapeRequest{
		Handle:          handle,
		MaxItems:        50,
		IncludeReplies:  false,
		IncludeRetweets: true,
	}
}

// Outcome is the structured result of a scrape. Error is human-readable and
// meant to be shown to an operator as-is; it is populated when Success is
// false and aggregates every attempted channel's failure reason.
type Outcome struct {
	Success     bool   `json:"success"`
	Posts       []Post `json:"posts"`
	Error       string `json:"error,omitempty"`
	ChannelUsed string `json:"channelUsed,omitempty"`
}

// AvatarResult is the outcome of a profile-image lookup. An empty URL means
// every resolution step failed.
type AvatarResult struct {
	URL    string `json:"url"`
	Source string `json:"source,omitempty"`
}
