package scraper

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/campaignkit/socialscrape/internal/models"
)

// Key kinds distinguish the first-party bearer token format from generic
// third-party aggregator keys so incompatible providers are skipped rather
// than attempted and failed.
const (
	keyKindBearer = "bearer"
	keyKindAPIKey = "apikey"
)

// classifyAPIKey determines which provider family a credential fits.
// First-party application bearer tokens carry the well-known AAAA prefix;
// everything else is treated as a third-party aggregator key.
func classifyAPIKey(key string) string {
	if strings.HasPrefix(key, "AAAA") {
		return keyKindBearer
	}
	return keyKindAPIKey
}

// ProviderDescriptor configures one third-party API provider. The registry
// is ordered; earlier entries win when several could serve a request.
type ProviderDescriptor struct {
	Name         string
	Method       string
	KeyKind      string
	BuildURL     func(handle string, count int) string
	BuildHeaders func(cred string) map[string]string
	BuildBody    func(handle string, count int) []byte
	Parser       string
}

// defaultProviders is the static provider registry, in fallback order.
func defaultProviders() []ProviderDescriptor {
	return []ProviderDescriptor{
		{
			Name:    "twitter-v2",
			Method:  "GET",
			KeyKind: keyKindBearer,
			BuildURL: func(handle string, count int) string {
				q := url.Values{}
				q.Set("query", "from:"+handle)
				q.Set("max_results", fmt.Sprintf("%d", count))
				q.Set("tweet.fields", "created_at,public_metrics,referenced_tweets")
				return "https://api.twitter.com/2/tweets/search/recent?" + q.Encode()
			},
			BuildHeaders: func(cred string) map[string]string {
				return map[string]string{"Authorization": "Bearer " + cred}
			},
			Parser: "v2",
		},
		{
			Name:    "socialdata",
			Method:  "GET",
			KeyKind: keyKindAPIKey,
			BuildURL: func(handle string, count int) string {
				return fmt.Sprintf("https://api.socialdata.tools/twitter/user/%s/tweets?limit=%d", url.PathEscape(handle), count)
			},
			BuildHeaders: func(cred string) map[string]string {
				return map[string]string{"Authorization": "Bearer " + cred}
			},
			Parser: "socialdata",
		},
		{
			Name:    "twitterapi-io",
			Method:  "GET",
			KeyKind: keyKindAPIKey,
			BuildURL: func(handle string, count int) string {
				q := url.Values{}
				q.Set("userName", handle)
				q.Set("limit", fmt.Sprintf("%d", count))
				return "https://api.twitterapi.io/twitter/user/last_tweets?" + q.Encode()
			},
			BuildHeaders: func(cred string) map[string]string {
				return map[string]string{"X-API-Key": cred}
			},
			Parser: "twitterapi",
		},
		{
			Name:    "tweetfetch",
			Method:  "POST",
			KeyKind: keyKindAPIKey,
			BuildURL: func(handle string, count int) string {
				return "https://api.tweetfetch.dev/v1/timeline"
			},
			BuildHeaders: func(cred string) map[string]string {
				return map[string]string{
					"Authorization": "Bearer " + cred,
					"Content-Type":  "application/json",
				}
			},
			BuildBody: func(handle string, count int) []byte {
				body, _ := json.Marshal(map[string]interface{}{
					"handle": handle,
					"count":  count,
				})
				return body
			},
			Parser: "socialdata",
		},
	}
}

// parsePayload dispatches a decoded provider response to the normalizer the
// descriptor declares. Unknown parser ids are a registry bug, reported as an
// error rather than a panic.
func parsePayload(parser string, body []byte, handle string) ([]models.Post, error) {
	switch parser {
	case "v2":
		return parseV2Payload(body, handle)
	case "socialdata":
		return parseSocialDataPayload(body, handle)
	case "twitterapi":
		return parseTwitterAPIPayload(body, handle)
	default:
		return nil, fmt.Errorf("unknown parser %q", parser)
	}
}

type v2Payload struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		CreatedAt     string `json:"created_at"`
		PublicMetrics struct {
			RetweetCount    int `json:"retweet_count"`
			ReplyCount      int `json:"reply_count"`
			LikeCount       int `json:"like_count"`
			QuoteCount      int `json:"quote_count"`
			ImpressionCount int `json:"impression_count"`
		} `json:"public_metrics"`
		ReferencedTweets []struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"referenced_tweets"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func parseV2Payload(body []byte, handle string) ([]models.Post, error) {
	var payload v2Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode v2 response: %w", err)
	}
	if len(payload.Errors) > 0 {
		return nil, fmt.Errorf("v2 API error: %s", payload.Errors[0].Message)
	}
	if payload.Title != "" && len(payload.Data) == 0 {
		return nil, fmt.Errorf("v2 API error: %s: %s", payload.Title, payload.Detail)
	}

	posts := make([]models.Post, 0, len(payload.Data))
	for _, item := range payload.Data {
		if item.ID == "" {
			continue
		}

		post := models.Post{
			ID:           item.ID,
			URL:          postURL(handle, item.ID),
			Content:      cleanContent(item.Text),
			AuthorHandle: handle,
			Metrics: models.Metrics{
				Likes:    clampCount(item.PublicMetrics.LikeCount),
				Retweets: clampCount(item.PublicMetrics.RetweetCount),
				Replies:  clampCount(item.PublicMetrics.ReplyCount),
				Quotes:   clampCount(item.PublicMetrics.QuoteCount),
				Views:    clampCount(item.PublicMetrics.ImpressionCount),
			},
		}
		post.PostedAt, post.PostedAtGuessed = parsePostTime(item.CreatedAt, time.RFC3339)

		for _, ref := range item.ReferencedTweets {
			switch ref.Type {
			case "retweeted":
				post.IsRetweet = true
			case "quoted":
				post.IsQuote = true
				post.QuotedURL = "https://x.com/i/status/" + ref.ID
			}
		}

		posts = append(posts, post)
	}
	return posts, nil
}

type socialDataTweet struct {
	IDStr          string `json:"id_str"`
	FullText       string `json:"full_text"`
	Text           string `json:"text"`
	TweetCreatedAt string `json:"tweet_created_at"`
	User           struct {
		ScreenName string `json:"screen_name"`
		Name       string `json:"name"`
	} `json:"user"`
	RetweetCount  int  `json:"retweet_count"`
	FavoriteCount int  `json:"favorite_count"`
	ReplyCount    int  `json:"reply_count"`
	QuoteCount    int  `json:"quote_count"`
	ViewsCount    int  `json:"views_count"`
	Retweeted     bool `json:"retweeted"`
	Entities      struct {
		Media []struct {
			MediaURLHTTPS string `json:"media_url_https"`
		} `json:"media"`
	} `json:"entities"`
	RetweetedStatus *json.RawMessage `json:"retweeted_status"`
	QuotedStatus    *struct {
		IDStr string `json:"id_str"`
		User  struct {
			ScreenName string `json:"screen_name"`
		} `json:"user"`
	} `json:"quoted_status"`
}

type socialDataPayload struct {
	Tweets  []socialDataTweet `json:"tweets"`
	Posts   []socialDataTweet `json:"posts"`
	Status  string            `json:"status"`
	Message string            `json:"message"`
}

func parseSocialDataPayload(body []byte, handle string) ([]models.Post, error) {
	var payload socialDataPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	if payload.Status == "error" {
		return nil, fmt.Errorf("provider error: %s", payload.Message)
	}

	tweets := payload.Tweets
	if len(tweets) == 0 {
		tweets = payload.Posts
	}

	posts := make([]models.Post, 0, len(tweets))
	for _, item := range tweets {
		if item.IDStr == "" {
			continue
		}

		text := item.FullText
		if text == "" {
			text = item.Text
		}

		authorHandle := item.User.ScreenName
		if authorHandle == "" {
			authorHandle = handle
		}

		post := models.Post{
			ID:           item.IDStr,
			URL:          postURL(authorHandle, item.IDStr),
			Content:      cleanContent(text),
			AuthorHandle: authorHandle,
			AuthorName:   item.User.Name,
			Metrics: models.Metrics{
				Likes:    clampCount(item.FavoriteCount),
				Retweets: clampCount(item.RetweetCount),
				Replies:  clampCount(item.ReplyCount),
				Quotes:   clampCount(item.QuoteCount),
				Views:    clampCount(item.ViewsCount),
			},
			IsRetweet: item.RetweetedStatus != nil || strings.HasPrefix(text, "RT @"),
		}
		post.PostedAt, post.PostedAtGuessed = parsePostTime(item.TweetCreatedAt, time.RubyDate)

		if item.QuotedStatus != nil && item.QuotedStatus.IDStr != "" {
			post.IsQuote = true
			post.QuotedURL = postURL(item.QuotedStatus.User.ScreenName, item.QuotedStatus.IDStr)
		}

		for _, media := range item.Entities.Media {
			if media.MediaURLHTTPS != "" {
				post.MediaURLs = append(post.MediaURLs, media.MediaURLHTTPS)
			}
		}

		posts = append(posts, post)
	}
	return posts, nil
}

type twitterAPIPayload struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
	Data   struct {
		Tweets []struct {
			ID           string `json:"id"`
			URL          string `json:"url"`
			Text         string `json:"text"`
			CreatedAt    string `json:"createdAt"`
			RetweetCount int    `json:"retweetCount"`
			ReplyCount   int    `json:"replyCount"`
			LikeCount    int    `json:"likeCount"`
			QuoteCount   int    `json:"quoteCount"`
			ViewCount    int    `json:"viewCount"`
			Author       struct {
				UserName string `json:"userName"`
				Name     string `json:"name"`
			} `json:"author"`
			RetweetedTweet *json.RawMessage `json:"retweeted_tweet"`
			QuotedTweet    *struct {
				URL string `json:"url"`
			} `json:"quoted_tweet"`
		} `json:"tweets"`
	} `json:"data"`
}

func parseTwitterAPIPayload(body []byte, handle string) ([]models.Post, error) {
	var payload twitterAPIPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	if payload.Status == "error" {
		return nil, fmt.Errorf("provider error: %s", payload.Msg)
	}

	posts := make([]models.Post, 0, len(payload.Data.Tweets))
	for _, item := range payload.Data.Tweets {
		if item.ID == "" {
			continue
		}

		authorHandle := item.Author.UserName
		if authorHandle == "" {
			authorHandle = handle
		}

		postLink := item.URL
		if postLink == "" {
			postLink = postURL(authorHandle, item.ID)
		}

		post := models.Post{
			ID:           item.ID,
			URL:          postLink,
			Content:      cleanContent(item.Text),
			AuthorHandle: authorHandle,
			AuthorName:   item.Author.Name,
			Metrics: models.Metrics{
				Likes:    clampCount(item.LikeCount),
				Retweets: clampCount(item.RetweetCount),
				Replies:  clampCount(item.ReplyCount),
				Quotes:   clampCount(item.QuoteCount),
				Views:    clampCount(item.ViewCount),
			},
			IsRetweet: item.RetweetedTweet != nil || strings.HasPrefix(item.Text, "RT @"),
		}
		post.PostedAt, post.PostedAtGuessed = parsePostTime(item.CreatedAt, time.RubyDate)

		if item.QuotedTweet != nil && item.QuotedTweet.URL != "" {
			post.IsQuote = true
			post.QuotedURL = item.QuotedTweet.URL
		}

		posts = append(posts, post)
	}
	return posts, nil
}

// parsePostTime parses an upstream timestamp, falling back to "now" with
// the guessed flag set when the value is absent or unparseable.
func parsePostTime(value, layout string) (time.Time, bool) {
	if value == "" {
		return time.Now(), true
	}
	if t, err := time.Parse(layout, value); err == nil {
		return t, false
	}
	return time.Now(), true
}

func clampCount(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
