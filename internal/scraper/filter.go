package scraper

import (
	"strings"

	"github.com/campaignkit/socialscrape/internal/models"
)

// Filter applies the request's post-processing rules in a fixed order:
// replies, retweets, keywords, since-date, then truncation. Order matters:
// truncation must reflect the filtered set, not the raw fetch. The function
// is pure and preserves the relative order of survivors.
func Filter(posts []models.Post, req models.ScrapeRequest) []models.Post {
	filtered := make([]models.Post, 0, len(posts))

	keywords := make([]string, 0, len(req.Keywords))
	for _, k := range req.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keywords = append(keywords, k)
		}
	}

	for _, post := range posts {
		if !req.IncludeReplies && strings.HasPrefix(strings.TrimSpace(post.Content), "@") {
			continue
		}

		if !req.IncludeRetweets && post.IsRetweet {
			continue
		}

		if len(keywords) > 0 && !matchesAnyKeyword(post.Content, keywords) {
			continue
		}

		if !req.SinceDate.IsZero() && post.PostedAt.Before(req.SinceDate) {
			continue
		}

		filtered = append(filtered, post)
	}

	if req.MaxItems > 0 && len(filtered) > req.MaxItems {
		filtered = filtered[:req.MaxItems]
	}

	return filtered
}

func matchesAnyKeyword(content string, keywords []string) bool {
	content = strings.ToLower(content)
	for _, k := range keywords {
		if strings.Contains(content, k) {
			return true
		}
	}
	return false
}
